package emv

import "testing"

func TestDecodeAIP(t *testing.T) {
	cases := []struct {
		name string
		raw  []byte
		want AIPCapabilities
	}{
		{
			name: "sda_only",
			raw:  []byte{0x40, 0x00},
			want: AIPCapabilities{SDA: true},
		},
		{
			name: "dda_and_cda",
			raw:  []byte{0x21, 0x00},
			want: AIPCapabilities{DDA: true, CDA: true},
		},
		{
			name: "msd_only",
			raw:  []byte{0x00, 0x80},
			want: AIPCapabilities{MSDSupported: true},
		},
		{
			name: "truncated_one_byte",
			raw:  []byte{0x10},
			want: AIPCapabilities{CardholderVerifySupported: true},
		},
		{
			name: "empty",
			raw:  nil,
			want: AIPCapabilities{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DecodeAIP(tc.raw)
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestAIPIsWeak(t *testing.T) {
	if !(AIPCapabilities{}).IsWeak() {
		t.Fatalf("no auth methods should be weak")
	}
	if (AIPCapabilities{SDA: true}).IsWeak() {
		t.Fatalf("SDA present should not be weak")
	}
}
