package emv

import (
	"encoding/hex"
	"testing"
)

func TestResolveDOL(t *testing.T) {
	dol := []DOLEntry{
		{Tag: newTag([]byte{0x9F, 0x02}), Length: 6},
		{Tag: newTag([]byte{0x9F, 0x1A}), Length: 2},
		{Tag: newTag([]byte{0x95}), Length: 5},
		{Tag: newTag([]byte{0x9F, 0x37}), Length: 4},
	}
	env := Environment{
		AmountAuthorizedBCD: []byte{0x00, 0x00, 0x00, 0x01, 0x00, 0x00},
		TerminalCountryCode: []byte{0x08, 0x40},
		TVR:                 make([]byte, 5),
		UnpredictableNumber: []byte{0xDE, 0xAD, 0xBE, 0xEF},
	}
	got := ResolveDOL(dol, env)
	want := "000000010000" + "0840" + "0000000000" + "deadbeef"
	if hex.EncodeToString(got) != want {
		t.Fatalf("got %x, want %s", got, want)
	}
}

func TestResolveDOLUnknownTagZeroFills(t *testing.T) {
	dol := []DOLEntry{{Tag: newTag([]byte{0xDF, 0x99}), Length: 3}}
	got := ResolveDOL(dol, Environment{})
	if len(got) != 3 {
		t.Fatalf("got length %d, want 3", len(got))
	}
	for _, b := range got {
		if b != 0 {
			t.Fatalf("expected zero-fill, got %x", got)
		}
	}
}
