package emv

// readLength consumes a BER length field. Short form (< 0x80) is the
// value itself. Long form (0x81..0x84) gives the count of following
// length octets, big-endian. 0x80 is indefinite length and is reported
// back to the caller as "rest of container". A length-of-length of
// 5 or more (0x85+) is rejected, as
// is a length field truncated by the end of the buffer.
func readLength(c *cursor) (length int, indefinite bool, err *ParseError) {
	first, ok := c.readByte()
	if !ok {
		return 0, false, parseErr(ErrTruncatedLength, "no bytes left for length")
	}
	if first == 0x80 {
		return 0, true, nil
	}
	if first < 0x80 {
		return int(first), false, nil
	}
	lenOfLen := int(first &^ 0x80)
	if lenOfLen > 4 {
		return 0, false, parseErr(ErrLengthTooLong, "length-of-length exceeds 4")
	}
	lenBytes, ok := c.readExact(lenOfLen)
	if !ok {
		return 0, false, parseErr(ErrTruncatedLength, "truncated long-form length")
	}
	n := 0
	for _, b := range lenBytes {
		n = n<<8 | int(b)
	}
	return n, false, nil
}

// encodeLength renders n in the shortest legal BER form.
func encodeLength(n int) []byte {
	if n < 0 {
		n = 0
	}
	if n < 0x80 {
		return []byte{byte(n)}
	}
	var octets []byte
	v := n
	for v > 0 {
		octets = append([]byte{byte(v)}, octets...)
		v >>= 8
	}
	out := make([]byte, 0, len(octets)+1)
	out = append(out, 0x80|byte(len(octets)))
	out = append(out, octets...)
	return out
}
