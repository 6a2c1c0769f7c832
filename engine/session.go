package engine

import (
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/nfcforensics/emvscan/emv"
	"github.com/nfcforensics/emvscan/engine/transport"
)

// DiscoveredAID is one application template entry from a PPSE/PSE
// response.
type DiscoveredAID struct {
	AID      string // hex
	Label    string
	Priority int
}

// DerivedFields holds the human-facing values extracted and
// canonicalised from the raw tag map.
type DerivedFields struct {
	PAN              string
	Expiry           string // YYMM
	CardholderName   string
	ApplicationLabel string
	AIPHex           string
	AFLHex           string
	CryptogramHex    string
	CIDHex           string
	ATCHex           string
}

// ROCAFindingView is the wire-shaped form of an emv.ROCAFinding.
type ROCAFindingView struct {
	Confidence  emv.ROCAConfidence
	ModulusLen  int
	Fingerprint string
}

// SessionRecord is the engine's mutable working state for one card
// scan. It is exclusively owned by the running engine; every access
// outside the engine goroutine must go through Snapshot. Records are
// built with newSessionRecord: the zero value has nil tag and ROCA maps,
// so writing a tag or finding to it panics. Nil-receiver accessor calls
// return zero values rather than panicking.
type SessionRecord struct {
	mu sync.RWMutex

	cardUID        string
	aidsDiscovered []DiscoveredAID
	tags           map[string][]byte
	derived        DerivedFields
	apduLog        []transport.LogEntry
	aipCaps        emv.AIPCapabilities
	aflEntries     []emv.AFLEntry
	rocaFindings   map[string]ROCAFindingView

	completed    bool
	errorMessage string
}

func newSessionRecord() *SessionRecord {
	return &SessionRecord{
		tags:         make(map[string][]byte),
		rocaFindings: make(map[string]ROCAFindingView),
	}
}

func (s *SessionRecord) setCardUID(uid string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cardUID = uid
}

func (s *SessionRecord) addDiscoveredAID(a DiscoveredAID) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aidsDiscovered = append(s.aidsDiscovered, a)
}

// mergeTags writes hexTag -> value, last write wins, matching the TLV
// codec's own flattening rule.
func (s *SessionRecord) mergeTags(tags map[string][]byte) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range tags {
		s.tags[k] = append([]byte(nil), v...)
	}
}

func (s *SessionRecord) setTag(hexTag string, value []byte) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[hexTag] = append([]byte(nil), value...)
}

func (s *SessionRecord) getTag(hexTag string) ([]byte, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.tags[hexTag]
	return v, ok
}

func (s *SessionRecord) hasTags(hexTags ...string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range hexTags {
		if _, ok := s.tags[t]; !ok {
			return false
		}
	}
	return true
}

func (s *SessionRecord) missingTags(hexTags ...string) []string {
	if s == nil {
		return hexTags
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var missing []string
	for _, t := range hexTags {
		if _, ok := s.tags[t]; !ok {
			missing = append(missing, t)
		}
	}
	return missing
}

func (s *SessionRecord) appendAPDU(entry transport.LogEntry) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apduLog = append(s.apduLog, entry)
}

func (s *SessionRecord) setAIPCapabilities(c emv.AIPCapabilities) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aipCaps = c
}

func (s *SessionRecord) setAFLEntries(entries []emv.AFLEntry) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aflEntries = append([]emv.AFLEntry(nil), entries...)
}

func (s *SessionRecord) aflEntriesSnapshot() []emv.AFLEntry {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]emv.AFLEntry(nil), s.aflEntries...)
}

func (s *SessionRecord) setROCAFinding(hexTag string, f ROCAFindingView) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rocaFindings[hexTag] = f
}

func (s *SessionRecord) setDerived(update func(*DerivedFields)) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.derived)
}

func (s *SessionRecord) finish(err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.completed = false
		s.errorMessage = err.Error()
		return
	}
	s.completed = true
}

// Snapshot is the immutable, wire-shaped view of a SessionRecord,
// safe to hand to listeners, the store, or a JSON encoder.
type Snapshot struct {
	CardUID         string                     `json:"card_uid,omitempty"`
	AIDsDiscovered  []DiscoveredAID            `json:"aids_discovered"`
	Tags            map[string]string          `json:"tags"`
	Derived         DerivedFields              `json:"derived"`
	APDULog         []transport.LogEntry       `json:"apdu_log"`
	AIPCapabilities emv.AIPCapabilities        `json:"aip_capabilities"`
	AFLEntries      []emv.AFLEntry             `json:"afl_entries"`
	ROCAFindings    map[string]ROCAFindingView `json:"roca_findings"`
	Completed       bool                       `json:"completed"`
	ErrorMessage    string                     `json:"error_message,omitempty"`
	CapturedAt      time.Time                  `json:"-"`
}

// Snapshot clones the current state under the read lock. Callers never
// observe a record mutating underneath them.
func (s *SessionRecord) Snapshot() *Snapshot {
	if s == nil {
		return &Snapshot{Tags: map[string]string{}, ROCAFindings: map[string]ROCAFindingView{}}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	tags := make(map[string]string, len(s.tags))
	for k, v := range s.tags {
		tags[k] = strings.ToUpper(hex.EncodeToString(v))
	}
	roca := make(map[string]ROCAFindingView, len(s.rocaFindings))
	for k, v := range s.rocaFindings {
		roca[k] = v
	}
	return &Snapshot{
		CapturedAt:      time.Now(),
		CardUID:         s.cardUID,
		AIDsDiscovered:  append([]DiscoveredAID(nil), s.aidsDiscovered...),
		Tags:            tags,
		Derived:         s.derived,
		APDULog:         append([]transport.LogEntry(nil), s.apduLog...),
		AIPCapabilities: s.aipCaps,
		AFLEntries:      append([]emv.AFLEntry(nil), s.aflEntries...),
		ROCAFindings:    roca,
		Completed:       s.completed,
		ErrorMessage:    s.errorMessage,
	}
}
