// Package transport frames ISO/IEC 7816-4 command APDUs, exchanges
// them over an external NFC/PCSC channel, and classifies the resulting
// status words. It never interprets TLV payloads — that is emv's job.
package transport

import (
	"context"
	"fmt"
)

// Channel is the external NFC driver boundary this module depends on.
// A real implementation (PCSCChannel) and a test double both satisfy
// it; the engine never talks to hardware directly.
type Channel interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Transceive(ctx context.Context, command []byte) ([]byte, error)
}

const leTrailingByte = 0x00

// PPSEName and PSEName are the raw DF names used to select the
// contactless and contact proximity environments respectively.
var (
	PPSEName = []byte("2PAY.SYS.DDF01")
	PSEName  = []byte("1PAY.SYS.DDF01")
)

// SelectByName builds a Case 4 SELECT command (`00 A4 04 00 Lc <data> 00`).
func SelectByName(name []byte) []byte {
	cmd := []byte{0x00, 0xA4, 0x04, 0x00, byte(len(name))}
	cmd = append(cmd, name...)
	cmd = append(cmd, leTrailingByte)
	return cmd
}

// SelectPPSE builds the contactless PPSE selection command.
func SelectPPSE() []byte {
	return SelectByName(PPSEName)
}

// SelectPSE builds the contact-fallback PSE selection command.
func SelectPSE() []byte {
	return SelectByName(PSEName)
}

// BuildGPO builds GET PROCESSING OPTIONS. When pdolData is empty it
// emits the minimal form `80 A8 00 00 02 83 00`; otherwise it wraps
// pdolData in a `83 LL` command-template TLV.
func BuildGPO(pdolData []byte) []byte {
	if len(pdolData) == 0 {
		return []byte{0x80, 0xA8, 0x00, 0x00, 0x02, 0x83, 0x00}
	}
	var body []byte
	body = append(body, 0x83, byte(len(pdolData)))
	body = append(body, pdolData...)
	cmd := []byte{0x80, 0xA8, 0x00, 0x00, byte(len(body))}
	cmd = append(cmd, body...)
	cmd = append(cmd, leTrailingByte)
	return cmd
}

// BuildReadRecord builds `READ RECORD(sfi, record)` with
// `P2 = (sfi << 3) | 4`.
func BuildReadRecord(sfi, record byte) []byte {
	p2 := (sfi << 3) | 0x04
	return []byte{0x00, 0xB2, record, p2, 0x00}
}

// BuildGetData builds `GET DATA(tag)` for a two-byte tag.
func BuildGetData(tagHi, tagLo byte) []byte {
	return []byte{0x80, 0xCA, tagHi, tagLo, 0x00}
}

// ReferenceControl selects the cryptogram type requested from
// GENERATE AC: 0x00 AAC, 0x40 TC, 0x80 ARQC.
type ReferenceControl byte

const (
	RefControlAAC  ReferenceControl = 0x00
	RefControlTC   ReferenceControl = 0x40
	RefControlARQC ReferenceControl = 0x80
)

// BuildGenerateAC builds GENERATE AC. When cdolData is empty it emits
// the Case-1 form `80 AE <refctl> 00 00`.
func BuildGenerateAC(refctl ReferenceControl, cdolData []byte) []byte {
	if len(cdolData) == 0 {
		return []byte{0x80, 0xAE, byte(refctl), 0x00, 0x00}
	}
	cmd := []byte{0x80, 0xAE, byte(refctl), 0x00, byte(len(cdolData))}
	cmd = append(cmd, cdolData...)
	cmd = append(cmd, leTrailingByte)
	return cmd
}

// StatusWord is a decoded two-byte SW1SW2 with its recognised
// mnemonic. An unrecognised code still carries its raw hex.
type StatusWord struct {
	SW1, SW2 byte
	Mnemonic string
}

func (s StatusWord) Hex() string {
	return fmt.Sprintf("%02X%02X", s.SW1, s.SW2)
}

func (s StatusWord) OK() bool {
	return s.SW1 == 0x90 && s.SW2 == 0x00
}

// DecodeStatusWord classifies a raw SW1SW2 pair against the
// recognised EMV status codes; anything else falls through to
// a generic label.
func DecodeStatusWord(sw1, sw2 byte) StatusWord {
	sw := StatusWord{SW1: sw1, SW2: sw2}
	switch {
	case sw1 == 0x90 && sw2 == 0x00:
		sw.Mnemonic = "success"
	case sw1 == 0x61:
		sw.Mnemonic = "more data available"
	case sw1 == 0x62 && sw2 == 0x83:
		sw.Mnemonic = "file state warning (selected file invalidated)"
	case sw1 == 0x62 && sw2 == 0x84:
		sw.Mnemonic = "file state warning (FCI not formatted)"
	case sw1 == 0x6A && sw2 == 0x82:
		sw.Mnemonic = "not found"
	case sw1 == 0x6A && sw2 == 0x83:
		sw.Mnemonic = "record not found"
	case sw1 == 0x6A && sw2 == 0x86:
		sw.Mnemonic = "incorrect P1/P2"
	case sw1 == 0x6A && sw2 == 0x88:
		sw.Mnemonic = "referenced data not found"
	case sw1 == 0x6D && sw2 == 0x00:
		sw.Mnemonic = "instruction not supported"
	case sw1 == 0x6E && sw2 == 0x00:
		sw.Mnemonic = "class not supported"
	case sw1 == 0x6F:
		sw.Mnemonic = "technical problem"
	case sw1 == 0xFF && sw2 == 0xFF:
		sw.Mnemonic = "transport failure"
	default:
		sw.Mnemonic = "unrecognised status"
	}
	return sw
}

// SplitResponse separates an R-APDU into its data bytes and status
// word. A response shorter than 2 bytes is itself a protocol error.
func SplitResponse(resp []byte) (data []byte, sw StatusWord, err error) {
	if len(resp) < 2 {
		return nil, StatusWord{}, fmt.Errorf("transport: response too short (%d bytes)", len(resp))
	}
	n := len(resp)
	return resp[:n-2], DecodeStatusWord(resp[n-2], resp[n-1]), nil
}
