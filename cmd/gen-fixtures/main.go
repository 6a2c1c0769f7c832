// Command gen-fixtures writes the literal APDU exchanges from the six
// named interrogation scenarios to a JSON fixture file, so they can be
// replayed by an external tool (e.g. a mock-reader harness) without
// recompiling Go. Command bytes are built with the same
// engine/transport encoders the engine itself uses, and response TLVs
// are assembled with short-form tag/length/value concatenation (never
// hand-typed lengths). The fixtures are not byte-identical to the
// engine's scenario tests: the first scenario's AIP is 2000 here and
// 6000 there, and its GPO command carries the PDOL bytes 9F3704 as
// data in place of the random unpredictable number a real scan sends.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nfcforensics/emvscan/engine/transport"
)

// exchangeFixture is one scripted command/response pair.
type exchangeFixture struct {
	Description string `json:"description"`
	CommandHex  string `json:"command_hex"`
	ResponseHex string `json:"response_hex"`
}

// scenarioFixture is one end-to-end interrogation scenario.
type scenarioFixture struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Exchanges   []exchangeFixture `json:"exchanges"`
}

func upperHex(b []byte) string { return strings.ToUpper(hex.EncodeToString(b)) }

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("gen-fixtures: bad literal %q: %v", s, err))
	}
	return b
}

// tlv hand-assembles one short-form BER-TLV node; every value used by
// this generator is well under 128 bytes, so the long length form is
// never needed.
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

func exchange(desc string, command, response []byte) exchangeFixture {
	return exchangeFixture{Description: desc, CommandHex: upperHex(command), ResponseHex: upperHex(response)}
}

func buildScenarios() []scenarioFixture {
	aid := mustHex("A0000000031010")

	s1ppseResp := withSW(tlv("6F", cat(
		tlv("84", []byte("2PAY.SYS.DDF01")),
		tlv("A5", tlv("BF0C", tlv("61", cat(
			tlv("4F", aid),
			tlv("50", []byte("VISA")),
			tlv("87", []byte{0x01}),
		)))),
	)), "9000")

	s1selectResp := withSW(tlv("6F", cat(
		tlv("84", aid),
		tlv("A5", cat(
			tlv("50", []byte("VISA")),
			tlv("9F38", mustHex("9F3704")),
		)),
	)), "9000")

	s1gpoResp := withSW(tlv("77", cat(
		tlv("82", mustHex("2000")),
		tlv("94", mustHex("08010100")),
	)), "9000")

	s1recResp := withSW(tlv("70", cat(
		tlv("5A", mustHex("4761740001000010")),
		tlv("5F24", mustHex("251201")),
	)), "9000")

	s3recResp := withSW(cat(
		tlv("8E", mustHex("00")),
		tlv("8C", mustHex("9F02069F03069F1A0195055F2A029A039C019F3704")),
		tlv("8D", mustHex("8A029F02069F03069F1A0195055F2A029A039C019F3704")),
		tlv("8F", mustHex("01")),
		tlv("9F32", mustHex("03")),
		tlv("9F47", mustHex("03")),
		tlv("93", mustHex("00")),
	), "9000")

	s4genACResp := withSW(cat(
		tlv("9F27", mustHex("80")),
		tlv("9F36", mustHex("0001")),
		tlv("9F26", mustHex("1122334455667788")),
	), "9000")

	s6gpoResp := withSW(tlv("77", cat(
		tlv("82", mustHex("2000")),
		tlv("94", mustHex("080101")), // 3 bytes: malformed AFL
	)), "9000")

	return []scenarioFixture{
		{
			ID:          "single-aid-gpo2-read-pan",
			Description: "PPSE -> single AID -> GPO format 2 -> read one record -> extract PAN",
			Exchanges: []exchangeFixture{
				exchange("SELECT PPSE", transport.SelectPPSE(), s1ppseResp),
				exchange("SELECT AID "+upperHex(aid), transport.SelectByName(aid), s1selectResp),
				exchange("GPO", transport.BuildGPO(mustHex("9F3704")), s1gpoResp),
				exchange("READ RECORD sfi=1 rec=1", transport.BuildReadRecord(1, 1), s1recResp),
			},
		},
		{
			ID:          "force-contact-pse-not-found",
			Description: "force_contact mode: PSE not found",
			Exchanges: []exchangeFixture{
				exchange("SELECT PSE", transport.SelectPSE(), mustHex("6A82")),
			},
		},
		{
			ID:          "critical-tag-missing-extended-scan",
			Description: "critical-tag missing triggers extended scan (sfi 1..3, rec 1..16), stopping once all seven critical tags are present",
			Exchanges: []exchangeFixture{
				exchange("READ RECORD (extended) sfi=1 rec=2", transport.BuildReadRecord(1, 2), s3recResp),
			},
		},
		{
			ID:          "generate-ac-without-cdol1",
			Description: "GENERATE AC without CDOL1 uses the Case-1 form 80 AE 80 00 00",
			Exchanges: []exchangeFixture{
				exchange("GENERATE AC", transport.BuildGenerateAC(transport.RefControlARQC, nil), s4genACResp),
			},
		},
		{
			ID:          "transaction-log-read",
			Description: "transaction log read: GET DATA 9F4F yields sfi=1, count=5, then five READ RECORDs",
			Exchanges: func() []exchangeFixture {
				out := []exchangeFixture{
					exchange("GET DATA 9F4F", transport.BuildGetData(0x9F, 0x4F), withSW(tlv("9F4F", mustHex("0A059A03")), "9000")),
				}
				for rec := byte(1); rec <= 5; rec++ {
					out = append(out, exchange(fmt.Sprintf("READ RECORD (log) sfi=1 rec=%d", rec),
						transport.BuildReadRecord(1, rec), mustHex("9000")))
				}
				return out
			}(),
		},
		{
			ID:          "malformed-afl",
			Description: "malformed AFL (3 bytes): GPO still succeeds but no AFL records are read; the extended scan is the sole source of record data",
			Exchanges: []exchangeFixture{
				exchange("GPO (minimal)", transport.BuildGPO(nil), s6gpoResp),
			},
		},
	}
}

func main() {
	out := flag.String("out", "engine/testdata/scenarios.json", "output path for the generated fixture file")
	flag.Parse()

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "gen-fixtures:", err)
		os.Exit(1)
	}
	scenarios := buildScenarios()
	b, err := json.MarshalIndent(scenarios, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "gen-fixtures:", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, b, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "gen-fixtures:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d scenarios to %s\n", len(scenarios), *out)
}
