package emv

// AIPCapabilities is the bit-decoded form of the two-byte Application
// Interchange Profile (tag 82). Bit assignments follow EMV Book 3
// table 3: byte 0 carries the five authentication/verification flags
// plus CDA, byte 1's top bit flags MSD support.
type AIPCapabilities struct {
	SDA                          bool
	DDA                          bool
	CDA                          bool
	CardholderVerifySupported    bool
	TerminalRiskManagementReqd   bool
	IssuerAuthenticationSupport  bool
	MSDSupported                 bool
}

// DecodeAIP decodes a two-byte AIP value. A shorter value zero-pads the
// missing byte rather than erroring, since callers may have a truncated
// or partially-read tag during forensic recovery.
func DecodeAIP(raw []byte) AIPCapabilities {
	var b0, b1 byte
	if len(raw) > 0 {
		b0 = raw[0]
	}
	if len(raw) > 1 {
		b1 = raw[1]
	}
	return AIPCapabilities{
		SDA:                         b0&0x40 != 0,
		DDA:                         b0&0x20 != 0,
		CardholderVerifySupported:   b0&0x10 != 0,
		TerminalRiskManagementReqd:  b0&0x08 != 0,
		IssuerAuthenticationSupport: b0&0x04 != 0,
		CDA:                         b0&0x01 != 0,
		MSDSupported:                b1&0x80 != 0,
	}
}

// IsWeak reports whether none of the three authentication methods
// (SDA/DDA/CDA) is offered.
func (a AIPCapabilities) IsWeak() bool {
	return !a.SDA && !a.DDA && !a.CDA
}
