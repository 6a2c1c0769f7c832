package emv

import "testing"

func TestDecodeCID(t *testing.T) {
	cases := []struct {
		name string
		b    byte
		want CID
	}{
		{"aac", 0x00, CID{Type: ACTypeAAC}},
		{"tc", 0x40, CID{Type: ACTypeTC}},
		{"arqc", 0x80, CID{Type: ACTypeARQC}},
		{"arqc_with_advice_and_reason", 0x8B, CID{Type: ACTypeARQC, Advice: true, Reason: 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DecodeCID(tc.b)
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestACTypeString(t *testing.T) {
	if ACTypeARQC.String() != "ARQC" {
		t.Fatalf("got %s", ACTypeARQC.String())
	}
	if ACTypeRFU.String() != "RFU" {
		t.Fatalf("got %s", ACTypeRFU.String())
	}
}
