package emv

import "fmt"

// DecodeBCDNumeric renders a BCD-encoded numeric field as a decimal
// digit string, left to right, one digit per nibble; used for amounts
// and counters.
func DecodeBCDNumeric(raw []byte) string {
	digits := make([]byte, 0, len(raw)*2)
	for _, b := range raw {
		hi := b >> 4
		lo := b & 0x0F
		digits = append(digits, '0'+hi, '0'+lo)
	}
	return string(digits)
}

// EncodeBCDNumeric packs a decimal digit string into BCD nibbles,
// right-padding with a trailing zero nibble if the digit count is odd.
func EncodeBCDNumeric(digits string) []byte {
	if len(digits)%2 != 0 {
		digits += "0"
	}
	out := make([]byte, len(digits)/2)
	for i := 0; i < len(out); i++ {
		hi := digits[i*2] - '0'
		lo := digits[i*2+1] - '0'
		out[i] = hi<<4 | lo
	}
	return out
}

// DecodeYYMMDD renders a 3-byte BCD date (tag 9A / 5F24 / 5F25) as
// "20YY-MM-DD".
func DecodeYYMMDD(raw []byte) (string, *ParseError) {
	if len(raw) != 3 {
		return "", parseErr(ErrMalformedDate, "BCD date must be exactly 3 bytes")
	}
	digits := DecodeBCDNumeric(raw)
	return fmt.Sprintf("20%s-%s-%s", digits[0:2], digits[2:4], digits[4:6]), nil
}

// DecodeASCIIText trims a byte slice to its printable ASCII content
// (0x20..0x7E), used for application labels and
// cardholder names.
func DecodeASCIIText(raw []byte) string {
	out := make([]byte, 0, len(raw))
	for _, b := range raw {
		if b >= 0x20 && b <= 0x7E {
			out = append(out, b)
		}
	}
	start, end := 0, len(out)
	for start < end && out[start] == ' ' {
		start++
	}
	for end > start && out[end-1] == ' ' {
		end--
	}
	return string(out[start:end])
}
