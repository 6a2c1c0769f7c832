package emv

import "testing"

func TestParseCVMList(t *testing.T) {
	// amount_x=0, amount_y=0, rules: (enciphered PIN online, continue-on-fail, always) / (signature, always)
	raw := []byte{
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x42, 0x03, // 0x42 = 0x40|0x02 -> method=EncipheredPINOnline, continue on fail
		0x06, 0x03, // method=Signature, no continue on fail
	}
	list, perr := ParseCVMList(raw)
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if list.AmountX != 0 || list.AmountY != 0 {
		t.Fatalf("unexpected amounts: %+v", list)
	}
	if len(list.Rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(list.Rules))
	}
	if list.Rules[0].Method != CVMEncipheredPINOnline || !list.Rules[0].ApplyNextOnFail {
		t.Fatalf("rule 0 mismatch: %+v", list.Rules[0])
	}
	if list.Rules[1].Method != CVMSignature || list.Rules[1].ApplyNextOnFail {
		t.Fatalf("rule 1 mismatch: %+v", list.Rules[1])
	}
}

func TestParseCVMListRejectsShortHeader(t *testing.T) {
	_, perr := ParseCVMList([]byte{0x00, 0x00, 0x00})
	if perr == nil || perr.Code != ErrMalformedCVM {
		t.Fatalf("got %v, want ErrMalformedCVM", perr)
	}
}
