package emv

// AFLEntry is one Application File Locator record range.
type AFLEntry struct {
	SFI            byte
	FirstRecord    byte
	LastRecord     byte
	OfflineRecords byte
}

// ParseAFL splits raw into 4-byte entries. A length that isn't a
// positive multiple of 4 is malformed: the whole AFL is rejected and no
// records are read from it; the extended-record scan remains the
// sole source of record data in that case.
func ParseAFL(raw []byte) ([]AFLEntry, *ParseError) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, parseErr(ErrMalformedAFL, "AFL length not a positive multiple of 4")
	}
	entries := make([]AFLEntry, 0, len(raw)/4)
	for i := 0; i < len(raw); i += 4 {
		sfi := raw[i] >> 3
		first := raw[i+1]
		last := raw[i+2]
		offline := raw[i+3]
		if sfi == 0 || sfi > 30 || first > last {
			return nil, parseErr(ErrMalformedAFL, "AFL entry out of range")
		}
		entries = append(entries, AFLEntry{
			SFI:            sfi,
			FirstRecord:    first,
			LastRecord:     last,
			OfflineRecords: offline,
		})
	}
	return entries, nil
}
