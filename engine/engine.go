package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nfcforensics/emvscan/crypto"
	"github.com/nfcforensics/emvscan/emv"
	"github.com/nfcforensics/emvscan/engine/transport"
)

// PhaseErrorKind classifies a failure at the phase level.
type PhaseErrorKind string

const (
	PhaseErrorTransport PhaseErrorKind = "transport"
	PhaseErrorProtocol  PhaseErrorKind = "protocol"
	PhaseErrorFatal     PhaseErrorKind = "fatal"
)

// PhaseError reports why a phase could not complete. Fatal errors end
// the scan; Transport and Protocol errors are recorded but the engine
// moves on.
type PhaseError struct {
	Kind  PhaseErrorKind
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s phase %q: %v", e.Kind, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// commonAIDs is the built-in fallback list consulted purely for
// forensics when PPSE/PSE discovery fails outright.
var commonAIDs = []DiscoveredAID{
	{AID: "A0000000031010", Label: "Visa", Priority: 1},
	{AID: "A0000000041010", Label: "Mastercard", Priority: 2},
	{AID: "A000000025010402", Label: "American Express", Priority: 3},
	{AID: "A0000001523010", Label: "Discover", Priority: 4},
}

// criticalTags gates the extended record scan.
var criticalTags = []string{"8E", "8C", "8D", "8F", "9F32", "9F47", "93"}

// Engine runs the nine-phase EMV interrogation workflow over a single
// Channel. It is not reentrant per card: a mutex rejects a concurrent
// Run call, since only one worker task may drive a given card scan.
type Engine struct {
	cfg     Config
	channel transport.Channel
	sink    *Sink
	hasher  crypto.Provider

	mu      sync.Mutex
	running bool
}

// NewEngine builds an Engine against the given transport channel. sink
// may be nil, in which case events are simply dropped. hasher may be
// nil, in which case ROCA findings carry no fingerprint.
func NewEngine(cfg Config, channel transport.Channel, sink *Sink, hasher crypto.Provider) *Engine {
	return &Engine{cfg: cfg, channel: channel, sink: sink, hasher: hasher}
}

func (e *Engine) emit(ev Event) {
	if e.sink != nil {
		e.sink.emit(ev)
	}
}

func (e *Engine) progress(step string, index, total int) {
	e.emit(Event{Kind: EventProgress, StepName: step, Index: index, Total: total})
}

// Run executes the nine phases in order against a freshly connected
// channel, releasing it on every exit path. ctx is checked between
// phases and between records within a phase.
func (e *Engine) Run(ctx context.Context) (*Snapshot, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, errors.New("engine: Run already in progress")
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	rec := newSessionRecord()
	timeout := time.Duration(e.cfg.TimeoutPerExchangeMs) * time.Millisecond

	e.emit(Event{Kind: EventReadingStarted})

	if err := e.channel.Connect(ctx); err != nil {
		rec.finish(fmt.Errorf("connect: %w", err))
		e.emit(Event{Kind: EventError, Message: err.Error()})
		e.emit(Event{Kind: EventReadingStopped})
		return rec.Snapshot(), &PhaseError{Kind: PhaseErrorFatal, Phase: "connect", Err: err}
	}
	e.emit(Event{Kind: EventCardDetected})
	defer func() { _ = e.channel.Disconnect() }()

	env := emv.DefaultTerminalProfile(e.cfg.TransactionType)
	var fatal error

	steps := []struct {
		name string
		run  func() error
	}{
		{"discover", func() error { return e.phaseDiscover(ctx, rec, timeout) }},
		{"select_applications", func() error { return e.phaseSelectApplications(ctx, rec, timeout) }},
		{"init_environment", func() error { return e.phaseInitEnvironment(&env) }},
		{"gpo", func() error { return e.phaseGPO(ctx, rec, timeout, &env) }},
		{"read_records", func() error { return e.phaseReadRecords(ctx, rec, timeout) }},
		{"extended_scan", func() error { return e.phaseExtendedScan(ctx, rec, timeout) }},
		{"get_data", func() error { return e.phaseGetData(ctx, rec, timeout) }},
		{"generate_ac", func() error { return e.phaseGenerateAC(ctx, rec, timeout, &env) }},
		{"transaction_log", func() error { return e.phaseTransactionLog(ctx, rec, timeout) }},
	}

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			fatal = err
			break
		}
		e.progress(step.name, i+1, len(steps))
		if err := step.run(); err != nil {
			var pe *PhaseError
			if errors.As(err, &pe) && pe.Kind == PhaseErrorFatal {
				fatal = err
				break
			}
			// Transport/Protocol errors are recorded in the APDU log
			// already; the engine proceeds to the next phase.
			e.emit(Event{Kind: EventError, Message: err.Error()})
		}
	}

	rec.finish(fatal)
	snap := rec.Snapshot()
	e.emit(Event{Kind: EventCardRead, Session: snap})
	e.emit(Event{Kind: EventReadingStopped})
	if fatal != nil {
		return snap, &PhaseError{Kind: PhaseErrorFatal, Phase: "scan", Err: fatal}
	}
	return snap, nil
}

// exchange wraps transport.Exchange, appends the log entry to rec, and
// emits apdu_exchanged.
func (e *Engine) exchange(ctx context.Context, rec *SessionRecord, command []byte, description string, timeout time.Duration) ([]byte, transport.StatusWord) {
	data, sw, entry := transport.Exchange(ctx, e.channel, command, description, timeout)
	rec.appendAPDU(entry)
	e.emit(Event{Kind: EventAPDUExchanged, APDU: entry})
	return data, sw
}

// phaseDiscover selects PPSE (or PSE, under force_contact) and lists
// the discovered applications.
func (e *Engine) phaseDiscover(ctx context.Context, rec *SessionRecord, timeout time.Duration) error {
	var data []byte
	var sw transport.StatusWord

	if e.cfg.ForceContact {
		data, sw = e.exchange(ctx, rec, transport.SelectPSE(), "SELECT PSE", timeout)
	} else {
		data, sw = e.exchange(ctx, rec, transport.SelectPPSE(), "SELECT PPSE", timeout)
		if !sw.OK() {
			data, sw = e.exchange(ctx, rec, transport.SelectPSE(), "SELECT PSE (fallback)", timeout)
		}
	}

	if !sw.OK() {
		for _, aid := range commonAIDs {
			rec.addDiscoveredAID(aid)
		}
		return &PhaseError{Kind: PhaseErrorFatal, Phase: "discover", Err: errors.New("PSE not found")}
	}

	result := emv.Parse(data, e.cfg.ValidateTags)
	recordROCAFindings(rec, result, e.hasher)

	var aids []DiscoveredAID
	for _, tmpl := range findTagNodes(result.Roots, "61") {
		var aid, label string
		priority := 0xFF
		for _, ch := range tmpl.Children {
			switch ch.Tag.Hex {
			case "4F":
				aid = upperHex(ch.Value)
			case "50":
				label = emv.DecodeASCIIText(ch.Value)
			case "87":
				if len(ch.Value) > 0 {
					priority = int(ch.Value[0])
				}
			}
		}
		if aid != "" {
			aids = append(aids, DiscoveredAID{AID: aid, Label: label, Priority: priority})
		}
	}
	sortByPriority(aids)
	for _, a := range aids {
		rec.addDiscoveredAID(a)
	}
	return nil
}

// phaseSelectApplications selects every discovered AID in turn, not
// just the first.
func (e *Engine) phaseSelectApplications(ctx context.Context, rec *SessionRecord, timeout time.Duration) error {
	for _, discovered := range rec.aidsDiscoveredSnapshot() {
		aidBytes, err := hexDecode(discovered.AID)
		if err != nil {
			continue
		}
		data, sw := e.exchange(ctx, rec, transport.SelectByName(aidBytes), "SELECT AID "+discovered.AID, timeout)
		if !sw.OK() {
			continue
		}
		result := emv.Parse(data, e.cfg.ValidateTags)
		recordROCAFindings(rec, result, e.hasher)
		rec.mergeTags(result.Tags)
		if label, ok := result.Tags["50"]; ok {
			rec.setDerived(func(d *DerivedFields) {
				if d.ApplicationLabel == "" {
					d.ApplicationLabel = emv.DecodeASCIIText(label)
				}
			})
		}
	}
	return nil
}

// phaseInitEnvironment snapshots terminal-side data into env. The
// default profile already filled in TTQ/terminal-capabilities per
// transaction type; this adds the per-scan freshness fields.
func (e *Engine) phaseInitEnvironment(env *emv.Environment) error {
	now := time.Now().UTC()
	env.TodayBCD = emv.EncodeBCDNumeric(now.Format("060102"))
	env.TimeBCD = emv.EncodeBCDNumeric(now.Format("150405"))
	env.AmountAuthorizedBCD = emv.EncodeBCDNumeric(fmt.Sprintf("%012d", e.cfg.AmountAuthorisedMinor))
	env.AmountOtherBCD = emv.EncodeBCDNumeric("000000000000")
	env.TransactionType = transactionTypeByte(e.cfg.TransactionType)

	un, err := crypto.UnpredictableNumber(4)
	if err != nil {
		return &PhaseError{Kind: PhaseErrorFatal, Phase: "init_environment", Err: err}
	}
	env.UnpredictableNumber = un
	return nil
}

// phaseGPO builds the PDOL-driven (or minimal) GET PROCESSING OPTIONS
// command and records the resulting AIP and AFL.
func (e *Engine) phaseGPO(ctx context.Context, rec *SessionRecord, timeout time.Duration, env *emv.Environment) error {
	var pdolData []byte
	if raw, ok := rec.getTag("9F38"); ok {
		dol := emv.ParseDOL(raw)
		pdolData = emv.ResolveDOL(dol, *env)
	}

	var data []byte
	var sw transport.StatusWord
	if len(pdolData) > 0 {
		data, sw = e.exchange(ctx, rec, transport.BuildGPO(pdolData), "GPO", timeout)
	} else {
		data, sw = e.exchange(ctx, rec, transport.BuildGPO(nil), "GPO (minimal)", timeout)
	}
	if !sw.OK() {
		return &PhaseError{Kind: PhaseErrorProtocol, Phase: "gpo", Err: fmt.Errorf("GPO returned %s", sw.Hex())}
	}

	result := emv.Parse(data, e.cfg.ValidateTags)
	recordROCAFindings(rec, result, e.hasher)
	rec.mergeTags(result.Tags)

	if raw, ok := result.Tags["82"]; ok {
		caps := emv.DecodeAIP(raw)
		rec.setAIPCapabilities(caps)
		rec.setDerived(func(d *DerivedFields) { d.AIPHex = upperHex(raw) })
		if caps.IsWeak() {
			e.emit(Event{Kind: EventError, Message: "AIP offers no strong authentication method"})
		}
	}
	if raw, ok := result.Tags["94"]; ok {
		rec.setDerived(func(d *DerivedFields) { d.AFLHex = upperHex(raw) })
		entries, perr := emv.ParseAFL(raw)
		if perr == nil {
			rec.setAFLEntries(entries)
		}
	}
	if raw, ok := result.Tags["9F26"]; ok {
		rec.setDerived(func(d *DerivedFields) { d.CryptogramHex = upperHex(raw) })
	}
	return nil
}

// phaseReadRecords reads every record named by the AFL.
func (e *Engine) phaseReadRecords(ctx context.Context, rec *SessionRecord, timeout time.Duration) error {
	for _, entry := range rec.aflEntriesSnapshot() {
		for record := entry.FirstRecord; record <= entry.LastRecord; record++ {
			if err := ctx.Err(); err != nil {
				return &PhaseError{Kind: PhaseErrorFatal, Phase: "read_records", Err: err}
			}
			desc := fmt.Sprintf("READ RECORD sfi=%d rec=%d", entry.SFI, record)
			data, sw := e.exchange(ctx, rec, transport.BuildReadRecord(entry.SFI, record), desc, timeout)
			if !sw.OK() {
				continue // skip that record; a protocol error on one record should not abort the scan
			}
			result := emv.Parse(data, e.cfg.ValidateTags)
			recordROCAFindings(rec, result, e.hasher)
			rec.mergeTags(result.Tags)
		}
	}
	canonicalisePAN(rec)
	return nil
}

// phaseExtendedScan probes the configured SFI/record window when a
// critical tag is still missing after the AFL read, stopping as soon
// as every critical tag is present.
func (e *Engine) phaseExtendedScan(ctx context.Context, rec *SessionRecord, timeout time.Duration) error {
	missing := rec.missingTags(criticalTags...)
	if len(missing) == 0 {
		return nil
	}

	already := aflRecordSet(rec.aflEntriesSnapshot())
	win := e.cfg.ExtendedScanWindow
	for sfi := win.SFIMin; sfi <= win.SFIMax; sfi++ {
		for record := byte(1); record <= win.RecordMax; record++ {
			if err := ctx.Err(); err != nil {
				return &PhaseError{Kind: PhaseErrorFatal, Phase: "extended_scan", Err: err}
			}
			if already[aflKey{sfi, record}] {
				continue
			}
			desc := fmt.Sprintf("READ RECORD (extended) sfi=%d rec=%d", sfi, record)
			data, sw := e.exchange(ctx, rec, transport.BuildReadRecord(sfi, record), desc, timeout)
			if !sw.OK() {
				continue
			}
			result := emv.Parse(data, e.cfg.ValidateTags)
			recordROCAFindings(rec, result, e.hasher)
			rec.mergeTags(result.Tags)
			if len(rec.missingTags(criticalTags...)) == 0 {
				canonicalisePAN(rec)
				return nil
			}
		}
	}
	canonicalisePAN(rec)
	return nil
}

// phaseGetData issues GET DATA for the terminal-readable tags not
// reliably present in the AFL records.
func (e *Engine) phaseGetData(ctx context.Context, rec *SessionRecord, timeout time.Duration) error {
	getDataTags := []string{"9F36", "9F13", "9F17", "9F4D", "9F4F"}
	for _, tagHex := range getDataTags {
		if err := ctx.Err(); err != nil {
			return &PhaseError{Kind: PhaseErrorFatal, Phase: "get_data", Err: err}
		}
		raw, err := hexDecode(tagHex)
		if err != nil || len(raw) != 2 {
			continue
		}
		data, sw := e.exchange(ctx, rec, transport.BuildGetData(raw[0], raw[1]), "GET DATA "+tagHex, timeout)
		if !sw.OK() {
			continue // skip that tag; a protocol error here should not abort the scan
		}
		result := emv.Parse(data, e.cfg.ValidateTags)
		recordROCAFindings(rec, result, e.hasher)
		rec.mergeTags(result.Tags)
	}
	if raw, ok := rec.getTag("9F36"); ok {
		rec.setDerived(func(d *DerivedFields) { d.ATCHex = upperHex(raw) })
	}
	return nil
}

// phaseGenerateAC issues GENERATE AC with the CDOL1-resolved data (or
// the Case-1 empty form when no CDOL1 was offered).
func (e *Engine) phaseGenerateAC(ctx context.Context, rec *SessionRecord, timeout time.Duration, env *emv.Environment) error {
	var cdolData []byte
	if raw, ok := rec.getTag("8C"); ok {
		if atc, ok := rec.getTag("9F36"); ok {
			env.ATC = atc
		}
		if iad, ok := rec.getTag("9F10"); ok {
			env.IAD = iad
		}
		dol := emv.ParseDOL(raw)
		cdolData = emv.ResolveDOL(dol, *env)
	}

	refctl := transport.ReferenceControl(e.cfg.ReferenceControlByte())
	data, sw := e.exchange(ctx, rec, transport.BuildGenerateAC(refctl, cdolData), "GENERATE AC", timeout)
	if !sw.OK() {
		return &PhaseError{Kind: PhaseErrorProtocol, Phase: "generate_ac", Err: fmt.Errorf("GENERATE AC returned %s", sw.Hex())}
	}

	result := emv.Parse(data, e.cfg.ValidateTags)
	recordROCAFindings(rec, result, e.hasher)
	rec.mergeTags(result.Tags)

	if raw, ok := result.Tags["9F26"]; ok {
		rec.setDerived(func(d *DerivedFields) { d.CryptogramHex = upperHex(raw) })
	}
	if raw, ok := result.Tags["9F27"]; ok && len(raw) == 1 {
		rec.setDerived(func(d *DerivedFields) { d.CIDHex = upperHex(raw) })
	}
	if raw, ok := result.Tags["9F36"]; ok {
		rec.setDerived(func(d *DerivedFields) { d.ATCHex = upperHex(raw) })
	}
	return nil
}

// phaseTransactionLog reads the issuer transaction log, gated on tag
// 9F4F already present from the GET DATA phase.
func (e *Engine) phaseTransactionLog(ctx context.Context, rec *SessionRecord, timeout time.Duration) error {
	raw, ok := rec.getTag("9F4F")
	if !ok || len(raw) == 0 {
		return nil
	}
	if len(raw) < 2 {
		return nil
	}
	sfi := raw[0] >> 3
	count := int(raw[1])
	if count == 0 {
		return nil
	}
	if count > 10 {
		count = 10
	}
	for record := 1; record <= count; record++ {
		if err := ctx.Err(); err != nil {
			return &PhaseError{Kind: PhaseErrorFatal, Phase: "transaction_log", Err: err}
		}
		desc := fmt.Sprintf("READ RECORD (log) sfi=%d rec=%d", sfi, record)
		_, sw := e.exchange(ctx, rec, transport.BuildReadRecord(sfi, byte(record)), desc, timeout)
		_ = sw // a failed log record is not fatal to the scan
	}
	return nil
}
