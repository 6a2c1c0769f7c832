package emv

// ACType is the cryptogram type selected by CID bits 8-7.
type ACType byte

const (
	ACTypeAAC  ACType = 0
	ACTypeTC   ACType = 1
	ACTypeARQC ACType = 2
	ACTypeRFU  ACType = 3
)

func (t ACType) String() string {
	switch t {
	case ACTypeAAC:
		return "AAC"
	case ACTypeTC:
		return "TC"
	case ACTypeARQC:
		return "ARQC"
	default:
		return "RFU"
	}
}

// CID is the decoded Cryptogram Information Data (tag 9F27).
type CID struct {
	Type   ACType
	Advice bool
	Reason byte
}

// DecodeCID decodes a single Cryptogram Information Data byte.
func DecodeCID(b byte) CID {
	return CID{
		Type:   ACType(b >> 6),
		Advice: b&0x08 != 0,
		Reason: b & 0x07,
	}
}
