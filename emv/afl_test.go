package emv

import (
	"encoding/hex"
	"testing"
)

func TestParseAFL(t *testing.T) {
	raw, err := hex.DecodeString("08010100100201011803030100")
	if err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	entries, perr := ParseAFL(raw)
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	want := []AFLEntry{
		{SFI: 1, FirstRecord: 1, LastRecord: 1, OfflineRecords: 0},
		{SFI: 2, FirstRecord: 1, LastRecord: 1, OfflineRecords: 0},
		{SFI: 3, FirstRecord: 3, LastRecord: 3, OfflineRecords: 1},
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e != want[i] {
			t.Fatalf("entry %d: got %+v, want %+v", i, e, want[i])
		}
	}
}

func TestParseAFLRejectsNonMultipleOfFour(t *testing.T) {
	_, perr := ParseAFL([]byte{0x08, 0x01, 0x01})
	if perr == nil || perr.Code != ErrMalformedAFL {
		t.Fatalf("got %v, want ErrMalformedAFL", perr)
	}
}

func TestParseAFLRejectsInvertedRange(t *testing.T) {
	_, perr := ParseAFL([]byte{0x08, 0x05, 0x01, 0x00})
	if perr == nil || perr.Code != ErrMalformedAFL {
		t.Fatalf("got %v, want ErrMalformedAFL", perr)
	}
}
