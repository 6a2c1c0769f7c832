package engine

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nfcforensics/emvscan/emv"
	"github.com/nfcforensics/emvscan/engine/transport"
)

// scriptedChannel replays fixed responses for deterministic commands
// (SELECT/READ RECORD/GET DATA carry no randomness) and falls back to
// an instruction-keyed response for GPO/GENERATE AC, whose command
// bytes vary with the terminal's unpredictable number. Anything
// unscripted gets a status-appropriate "not found" answer so phases
// that scan wide windows (extended scan, GET DATA) terminate cleanly
// without a fixture for every possible record.
type scriptedChannel struct {
	exact map[string][]byte // upper-hex full command -> raw response (data+SW)
	byIns map[byte][]byte   // INS byte -> raw response, for commands with a random tail
	calls []string
}

func newScriptedChannel() *scriptedChannel {
	return &scriptedChannel{exact: map[string][]byte{}, byIns: map[byte][]byte{}}
}

func (c *scriptedChannel) Connect(ctx context.Context) error { return nil }
func (c *scriptedChannel) Disconnect() error                 { return nil }

func (c *scriptedChannel) Transceive(ctx context.Context, command []byte) ([]byte, error) {
	c.calls = append(c.calls, strings.ToUpper(hex.EncodeToString(command)))
	key := strings.ToUpper(hex.EncodeToString(command))
	if resp, ok := c.exact[key]; ok {
		return resp, nil
	}
	if len(command) >= 2 {
		if resp, ok := c.byIns[command[1]]; ok {
			return resp, nil
		}
	}
	return defaultResponseFor(command), nil
}

func defaultResponseFor(command []byte) []byte {
	if len(command) < 2 {
		return mustHex("6F00")
	}
	switch command[1] {
	case 0xA4: // SELECT
		return mustHex("6A82")
	case 0xB2: // READ RECORD
		return mustHex("6A83")
	case 0xCA: // GET DATA
		return mustHex("6A88")
	case 0xA8, 0xAE: // GPO, GENERATE AC
		return mustHex("6985")
	default:
		return mustHex("6F00")
	}
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// tlv hand-encodes one short-form BER-TLV node (every fixture value
// here is well under 128 bytes, so the long length form is never
// needed).
func tlv(tagHex string, value []byte) []byte {
	out := append([]byte(nil), mustHex(tagHex)...)
	out = append(out, byte(len(value)))
	out = append(out, value...)
	return out
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func withSW(data []byte, swHex string) []byte {
	return append(append([]byte(nil), data...), mustHex(swHex)...)
}

const visaAID = "A0000000031010"

const defaultTestTimeout = 2 * time.Second

// TestSingleAID_GPOFormat2_ReadRecord_PAN covers PPSE
// discovery, a single AID, GPO format 2, one AFL record read, and
// PAN/expiry/AIP extraction.
func TestSingleAID_GPOFormat2_ReadRecord_PAN(t *testing.T) {
	aid := mustHex(visaAID)
	ch := newScriptedChannel()

	ppseResp := withSW(tlv("6F", cat(
		tlv("84", []byte("2PAY.SYS.DDF01")),
		tlv("A5", tlv("BF0C", tlv("61", cat(
			tlv("4F", aid),
			tlv("50", []byte("VISA")),
			tlv("87", []byte{0x01}),
		)))),
	)), "9000")
	ch.exact[strings.ToUpper(hex.EncodeToString(transport.SelectPPSE()))] = ppseResp

	selectAIDResp := withSW(tlv("6F", cat(
		tlv("84", aid),
		tlv("A5", cat(
			tlv("50", []byte("VISA")),
			tlv("9F38", mustHex("9F3704")),
		)),
	)), "9000")
	ch.exact[strings.ToUpper(hex.EncodeToString(transport.SelectByName(aid)))] = selectAIDResp

	ch.byIns[0xA8] = withSW(tlv("77", cat(
		tlv("82", mustHex("6000")),
		tlv("94", mustHex("08010100")),
	)), "9000")

	readRecCmd := transport.BuildReadRecord(1, 1)
	ch.exact[strings.ToUpper(hex.EncodeToString(readRecCmd))] = withSW(tlv("70", cat(
		tlv("5A", mustHex("4761740001000010")),
		tlv("5F24", mustHex("251201")),
	)), "9000")

	eng := NewEngine(DefaultConfig(), ch, nil, nil)
	snap, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "4761740001000010", snap.Derived.PAN)
	require.Equal(t, "2512", snap.Derived.Expiry)
	require.True(t, snap.AIPCapabilities.SDA)
	require.True(t, snap.AIPCapabilities.DDA)
	require.False(t, snap.AIPCapabilities.CDA)
	require.True(t, snap.Completed)
	require.Len(t, snap.AIDsDiscovered, 1)
	require.Equal(t, visaAID, snap.AIDsDiscovered[0].AID)
}

// TestForceContact_PSENotFound covers the case where PSE
// selection fails outright under force_contact.
func TestForceContact_PSENotFound(t *testing.T) {
	ch := newScriptedChannel() // SELECT defaults to 6A82

	cfg := DefaultConfig()
	cfg.ForceContact = true
	eng := NewEngine(cfg, ch, nil, nil)

	snap, err := eng.Run(context.Background())
	require.Error(t, err)
	require.False(t, snap.Completed)
	require.Contains(t, snap.ErrorMessage, "PSE not found")
	require.Len(t, snap.APDULog, 1)
	require.Equal(t, strings.ToUpper(hex.EncodeToString(transport.SelectPSE())), ch.calls[0])
}

// TestCriticalTagMissingTriggersExtendedScan covers the
// case where the AFL pass leaves a critical tag missing: the extended
// scan probes sfi 1..3 / record 1..16, skipping pairs already
// read via the AFL, and stops the moment every critical tag is found.
func TestCriticalTagMissingTriggersExtendedScan(t *testing.T) {
	ch := newScriptedChannel()
	// sfi=1 rec=1 was already read via the AFL; the extended scan must
	// not repeat it, and must stop as soon as every critical tag is
	// present -- so only script the one record that completes the set.
	resp := withSW(cat(
		tlv("8E", mustHex("00")),
		tlv("8C", mustHex("9F02069F03069F1A0195055F2A029A039C019F3704")),
		tlv("8D", mustHex("8A029F02069F03069F1A0195055F2A029A039C019F3704")),
		tlv("8F", mustHex("01")),
		tlv("9F32", mustHex("03")),
		tlv("9F47", mustHex("03")),
		tlv("93", mustHex("00")),
	), "9000")
	ch.exact[strings.ToUpper(hex.EncodeToString(transport.BuildReadRecord(1, 2)))] = resp

	eng := NewEngine(DefaultConfig(), ch, nil, nil)
	rec := newSessionRecord()
	rec.setAFLEntries([]emv.AFLEntry{{SFI: 1, FirstRecord: 1, LastRecord: 1}})

	err := eng.phaseExtendedScan(context.Background(), rec, defaultTestTimeout)
	require.NoError(t, err)
	require.Empty(t, rec.missingTags(criticalTags...))

	for _, c := range ch.calls {
		require.NotEqual(t, strings.ToUpper(hex.EncodeToString(transport.BuildReadRecord(1, 1))), c,
			"extended scan must skip the sfi/record pair already read via the AFL")
	}
}

// TestGenerateACWithoutCDOL1 covers a card that offers no
// CDOL1, so GENERATE AC is sent in its Case-1 empty form.
func TestGenerateACWithoutCDOL1(t *testing.T) {
	ch := newScriptedChannel()
	ch.byIns[0xAE] = withSW(cat(
		tlv("9F27", mustHex("80")),
		tlv("9F36", mustHex("0001")),
		tlv("9F26", mustHex("1122334455667788")),
	), "9000")

	eng := NewEngine(DefaultConfig(), ch, nil, nil)
	rec := newSessionRecord()
	env := emv.DefaultTerminalProfile(emv.TxTypeVSDC)

	err := eng.phaseGenerateAC(context.Background(), rec, defaultTestTimeout, &env)
	require.NoError(t, err)
	require.Equal(t, "1122334455667788", rec.Snapshot().Derived.CryptogramHex)
	require.Equal(t, "80", rec.Snapshot().Derived.CIDHex)
	require.Equal(t, "0001", rec.Snapshot().Derived.ATCHex)

	require.Equal(t, strings.ToUpper(hex.EncodeToString([]byte{0x80, 0xAE, 0x80, 0x00, 0x00})), ch.calls[0])
}

// TestTransactionLogRead covers reading the transaction
// log once GET DATA 9F4F names an SFI and record count.
func TestTransactionLogRead(t *testing.T) {
	ch := newScriptedChannel()
	for rec := byte(1); rec <= 5; rec++ {
		ch.exact[strings.ToUpper(hex.EncodeToString(transport.BuildReadRecord(1, rec)))] = withSW(nil, "9000")
	}

	eng := NewEngine(DefaultConfig(), ch, nil, nil)
	rec := newSessionRecord()
	rec.setTag("9F4F", []byte{0x0A, 0x05, 0x9A, 0x03})

	err := eng.phaseTransactionLog(context.Background(), rec, defaultTestTimeout)
	require.NoError(t, err)
	require.Len(t, ch.calls, 5)
	for i, c := range ch.calls {
		require.Equal(t, strings.ToUpper(hex.EncodeToString(transport.BuildReadRecord(1, byte(i+1)))), c)
	}
}

// TestMalformedAFL covers a 3-byte AFL: it is rejected outright and
// phaseReadRecords reads no records from it.
func TestMalformedAFL(t *testing.T) {
	ch := newScriptedChannel()
	ch.byIns[0xA8] = withSW(tlv("77", cat(
		tlv("82", mustHex("2000")),
		tlv("94", mustHex("080101")), // 3 bytes: malformed
	)), "9000")

	eng := NewEngine(DefaultConfig(), ch, nil, nil)
	rec := newSessionRecord()
	env := emv.DefaultTerminalProfile(emv.TxTypeVSDC)

	err := eng.phaseGPO(context.Background(), rec, defaultTestTimeout, &env)
	require.NoError(t, err)
	require.Empty(t, rec.aflEntriesSnapshot())

	ch.calls = nil // drop the GPO command recorded above
	err = eng.phaseReadRecords(context.Background(), rec, defaultTestTimeout)
	require.NoError(t, err)
	require.Empty(t, ch.calls, "no AFL entries means no READ RECORD calls from phaseReadRecords")
}
