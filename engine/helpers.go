package engine

import (
	"encoding/hex"
	"sort"
	"strings"

	"github.com/nfcforensics/emvscan/crypto"
	"github.com/nfcforensics/emvscan/emv"
)

// aidsDiscoveredSnapshot returns an owned copy of the discovered-AID
// list, safe to range over without holding the record's lock.
func (s *SessionRecord) aidsDiscoveredSnapshot() []DiscoveredAID {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]DiscoveredAID(nil), s.aidsDiscovered...)
}

// findTagNodes walks a decoded TLV tree (depth-first, left to right)
// collecting every node — primitive or constructed — whose tag matches
// tagHex, regardless of nesting depth. Used to pull "61" application
// templates out from under whatever FCI wrapper the card used.
func findTagNodes(nodes []emv.Node, tagHex string) []emv.Node {
	var out []emv.Node
	for _, n := range nodes {
		if n.Tag.Hex == tagHex {
			out = append(out, n)
		}
		if n.Constructed {
			out = append(out, findTagNodes(n.Children, tagHex)...)
		}
	}
	return out
}

// recordROCAFindings fingerprints every ROCA-bearing tag present in
// result against the session record.
// Each tag's whole value (the certificate bytes as read) is passed to
// emv.FingerprintROCA as its modulus argument; no RSA modulus is
// recovered from the certificate first, and no factorisation is
// attempted.
func recordROCAFindings(rec *SessionRecord, result *emv.ParseResult, hasher crypto.Provider) {
	for tagHex, raw := range result.Tags {
		if !emv.IsROCABearing(tagHex) {
			continue
		}
		finding := emv.FingerprintROCA(raw, hasher)
		rec.setROCAFinding(tagHex, ROCAFindingView{
			Confidence:  finding.Confidence,
			ModulusLen:  finding.ModulusLen,
			Fingerprint: finding.Fingerprint,
		})
	}
}

// aflKey identifies one (sfi, record) pair already read via the AFL,
// so the extended scan can skip it.
type aflKey struct {
	sfi    byte
	record byte
}

func aflRecordSet(entries []emv.AFLEntry) map[aflKey]bool {
	set := make(map[aflKey]bool)
	for _, e := range entries {
		for r := e.FirstRecord; r <= e.LastRecord; r++ {
			set[aflKey{sfi: e.SFI, record: r}] = true
		}
	}
	return set
}

// sortByPriority orders discovered AIDs ascending by priority (lower
// value = higher priority), stable on discovery order for ties.
func sortByPriority(aids []DiscoveredAID) {
	sort.SliceStable(aids, func(i, j int) bool { return aids[i].Priority < aids[j].Priority })
}

func upperHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

func hexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// transactionTypeByte is tag 9C's value: goods/services purchase for
// every recognised transaction type; there is no per-type variation
// for this tag.
func transactionTypeByte(_ emv.TransactionType) byte {
	return 0x00
}

// canonicalisePAN fills DerivedFields.PAN/Expiry/CardholderName from
// whatever the AFL or extended scan has produced so far: tag 5A wins
// outright; otherwise a 57 Track 2 value supplies both, split on its
// 'D' separator nibble. Tag 5F24 (Application Expiration Date), when
// present, supplies the expiry's YYMM prefix only if no expiry has been
// set yet, so a Track 2 expiry takes precedence over it. Tag 5F20 (Cardholder Name), when present, supplies
// the cardholder name.
func canonicalisePAN(rec *SessionRecord) {
	if raw, ok := rec.getTag("5A"); ok {
		pan := strings.TrimRight(upperHex(raw), "F")
		rec.setDerived(func(d *DerivedFields) {
			if d.PAN == "" {
				d.PAN = pan
			}
		})
	} else if raw, ok := rec.getTag("57"); ok {
		track2 := upperHex(raw)
		if idx := strings.IndexByte(track2, 'D'); idx >= 0 {
			pan := track2[:idx]
			var expiry string
			if idx+5 <= len(track2) {
				expiry = track2[idx+1 : idx+5]
			}
			rec.setDerived(func(d *DerivedFields) {
				if d.PAN == "" {
					d.PAN = pan
				}
				if d.Expiry == "" && expiry != "" {
					d.Expiry = expiry
				}
			})
		}
	}

	if raw, ok := rec.getTag("5F24"); ok && len(raw) == 3 {
		digits := emv.DecodeBCDNumeric(raw)
		if len(digits) >= 4 {
			expiry := digits[:4]
			rec.setDerived(func(d *DerivedFields) {
				if d.Expiry == "" {
					d.Expiry = expiry
				}
			})
		}
	}

	if raw, ok := rec.getTag("5F20"); ok {
		name := emv.DecodeASCIIText(raw)
		rec.setDerived(func(d *DerivedFields) {
			if d.CardholderName == "" {
				d.CardholderName = name
			}
		})
	}
}
