package emv

import "testing"

func TestBCDNumericRoundTrip(t *testing.T) {
	cases := []struct {
		digits string
		raw    []byte
	}{
		{"000000012345", []byte{0x00, 0x00, 0x00, 0x01, 0x23, 0x45}},
		{"00", []byte{0x00}},
	}
	for _, tc := range cases {
		if got := DecodeBCDNumeric(tc.raw); got != tc.digits {
			t.Fatalf("decode: got %s, want %s", got, tc.digits)
		}
		if got := EncodeBCDNumeric(tc.digits); string(got) != string(tc.raw) {
			t.Fatalf("encode: got %x, want %x", got, tc.raw)
		}
	}
}

func TestEncodeBCDNumericOddLength(t *testing.T) {
	got := EncodeBCDNumeric("123")
	want := []byte{0x12, 0x30}
	if string(got) != string(want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestDecodeYYMMDD(t *testing.T) {
	got, err := DecodeYYMMDD([]byte{0x26, 0x07, 0x31})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "2026-07-31" {
		t.Fatalf("got %s", got)
	}
}

func TestDecodeYYMMDDWrongLength(t *testing.T) {
	_, err := DecodeYYMMDD([]byte{0x26, 0x07})
	if err == nil || err.Code != ErrMalformedDate {
		t.Fatalf("got %v, want ErrMalformedDate", err)
	}
}

func TestDecodeASCIITextTrimsAndFilters(t *testing.T) {
	got := DecodeASCIIText([]byte{' ', 'V', 'I', 'S', 'A', ' ', 0x00, ' '})
	if got != "VISA" {
		t.Fatalf("got %q", got)
	}
}
