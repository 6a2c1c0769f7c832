package emv

// DOLEntry is one (tag, length) pair from a Data Object List (PDOL,
// CDOL1/2, DDOL).
type DOLEntry struct {
	Tag    Tag
	Length int
}

// ParseDOL repeatedly reads a BER tag followed by a single literal
// length byte (0-255): a DOL entry never carries a value of its own,
// and never uses BER long-form length encoding — the length is the
// requested size. It stops cleanly when the input is exhausted; a
// trailing tag with no length byte is ignored rather than treated as
// an error.
func ParseDOL(raw []byte) []DOLEntry {
	c := newCursor(raw)
	var entries []DOLEntry
	for !c.atEnd() {
		tag, terr := readTag(c)
		if terr != nil {
			break
		}
		length, ok := c.readByte()
		if !ok {
			break // trailing tag with no usable length field: ignored
		}
		entries = append(entries, DOLEntry{Tag: tag, Length: int(length)})
	}
	return entries
}
