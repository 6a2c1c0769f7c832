package emv

import (
	"encoding/hex"
	"testing"
)

func TestReadLength(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		wantLen int
		wantInd bool
		wantErr ErrorCode
	}{
		{"short_form", "05", 5, false, ""},
		{"short_form_max", "7F", 0x7F, false, ""},
		{"long_form_one_byte", "8105", 5, false, ""},
		{"long_form_two_byte", "820100", 256, false, ""},
		{"indefinite", "80", 0, true, ""},
		{"len_of_len_too_big", "85", 0, false, ErrLengthTooLong},
		{"truncated_long_form", "82", 0, false, ErrTruncatedLength},
		{"truncated_empty", "", 0, false, ErrTruncatedLength},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := hex.DecodeString(tc.in)
			if err != nil {
				t.Fatalf("bad fixture: %v", err)
			}
			c := &cursor{b: raw}
			n, indefinite, perr := readLength(c)
			if tc.wantErr != "" {
				if perr == nil || perr.Code != tc.wantErr {
					t.Fatalf("got err=%v, want code=%s", perr, tc.wantErr)
				}
				return
			}
			if perr != nil {
				t.Fatalf("unexpected error: %v", perr)
			}
			if n != tc.wantLen || indefinite != tc.wantInd {
				t.Fatalf("got (len=%d, indefinite=%v), want (len=%d, indefinite=%v)", n, indefinite, tc.wantLen, tc.wantInd)
			}
		})
	}
}

func TestEncodeLengthRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 127, 128, 255, 256, 65535, 65536} {
		enc := encodeLength(n)
		c := &cursor{b: enc}
		got, indefinite, err := readLength(c)
		if err != nil {
			t.Fatalf("n=%d: decode error: %v", n, err)
		}
		if indefinite {
			t.Fatalf("n=%d: unexpected indefinite", n)
		}
		if got != n {
			t.Fatalf("n=%d: round-trip got %d", n, got)
		}
	}
}
