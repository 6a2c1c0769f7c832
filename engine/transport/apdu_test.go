package transport

import (
	"encoding/hex"
	"testing"
)

func TestSelectPPSE(t *testing.T) {
	got := hex.EncodeToString(SelectPPSE())
	expected := "00a404000e325041592e5359532e444446303100"
	if got != expected {
		t.Fatalf("got %s, want %s", got, expected)
	}
}

func TestBuildGPOWithData(t *testing.T) {
	got := hex.EncodeToString(BuildGPO([]byte{0x9F, 0x37, 0x04}))
	expected := "80a800000583039f370400"
	if got != expected {
		t.Fatalf("got %s, want %s", got, expected)
	}
}

func TestBuildGPOEmpty(t *testing.T) {
	got := hex.EncodeToString(BuildGPO(nil))
	expected := "80a80000028300"
	if got != expected {
		t.Fatalf("got %s, want %s", got, expected)
	}
}

func TestBuildReadRecord(t *testing.T) {
	got := hex.EncodeToString(BuildReadRecord(1, 1))
	expected := "00b2010c00"
	if got != expected {
		t.Fatalf("got %s, want %s", got, expected)
	}
}

func TestBuildGenerateACMinimal(t *testing.T) {
	got := hex.EncodeToString(BuildGenerateAC(RefControlARQC, nil))
	expected := "80ae800000"
	if got != expected {
		t.Fatalf("got %s, want %s", got, expected)
	}
}

func TestDecodeStatusWord(t *testing.T) {
	cases := []struct {
		sw1, sw2 byte
		wantOK   bool
	}{
		{0x90, 0x00, true},
		{0x6A, 0x83, false},
		{0xFF, 0xFF, false},
	}
	for _, tc := range cases {
		sw := DecodeStatusWord(tc.sw1, tc.sw2)
		if sw.OK() != tc.wantOK {
			t.Fatalf("sw %s: OK()=%v, want %v", sw.Hex(), sw.OK(), tc.wantOK)
		}
	}
}

func TestSplitResponse(t *testing.T) {
	resp, _ := hex.DecodeString("6F2A9000")
	data, sw, err := SplitResponse(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hex.EncodeToString(data) != "6f2a" {
		t.Fatalf("got data %x", data)
	}
	if !sw.OK() {
		t.Fatalf("expected SW 9000, got %s", sw.Hex())
	}
}

func TestSplitResponseTooShort(t *testing.T) {
	_, _, err := SplitResponse([]byte{0x90})
	if err == nil {
		t.Fatalf("expected error for short response")
	}
}
