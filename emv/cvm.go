package emv

import "encoding/binary"

// CVMMethod enumerates the method codes carried in bits 1-6 of a CVM
// rule's first byte.
type CVMMethod byte

const (
	CVMFail                   CVMMethod = 0
	CVMPlaintextPIN           CVMMethod = 1
	CVMEncipheredPINOnline    CVMMethod = 2
	CVMPlaintextPINAndSig     CVMMethod = 3
	CVMEncipheredPINOffline   CVMMethod = 4
	CVMEncipheredPINAndSig    CVMMethod = 5
	CVMSignature              CVMMethod = 6
	CVMNoCVMRequired          CVMMethod = 7
)

// CVMRule is one (method, condition, continue-on-fail) rule.
type CVMRule struct {
	Method          CVMMethod
	ApplyNextOnFail bool
	Condition       byte
}

// CVMList is the decoded cardholder verification method list (tag 8E).
type CVMList struct {
	AmountX uint32
	AmountY uint32
	Rules   []CVMRule
}

// ParseCVMList decodes the 8-byte header (two big-endian 32-bit
// amounts) followed by 2-byte rules. A value shorter than the header
// is rejected.
func ParseCVMList(raw []byte) (*CVMList, *ParseError) {
	if len(raw) < 8 {
		return nil, parseErr(ErrMalformedCVM, "CVM list shorter than amount header")
	}
	list := &CVMList{
		AmountX: binary.BigEndian.Uint32(raw[0:4]),
		AmountY: binary.BigEndian.Uint32(raw[4:8]),
	}
	rest := raw[8:]
	for i := 0; i+1 < len(rest); i += 2 {
		methodByte := rest[i]
		list.Rules = append(list.Rules, CVMRule{
			Method:          CVMMethod(methodByte & 0x3F),
			ApplyNextOnFail: methodByte&0x40 != 0,
			Condition:       rest[i+1],
		})
	}
	return list, nil
}
