package engine

import (
	"errors"
	"fmt"

	"github.com/nfcforensics/emvscan/emv"
)

// Config is the recognised configuration surface, with JSON field names.
type Config struct {
	TransactionType       emv.TransactionType `json:"transaction_type"`
	ReferenceControl      string              `json:"reference_control"`
	AmountAuthorisedMinor uint64              `json:"amount_authorised"`
	ForceContact          bool                `json:"force_contact"`
	ValidateTags          bool                `json:"validate_tags"`
	TimeoutPerExchangeMs  uint64              `json:"timeout_per_exchange_ms"`
	ExtendedScanWindow    ScanWindow          `json:"extended_scan_window"`
}

// ScanWindow bounds the extended record scan, kept as configuration
// rather than hardcoded.
type ScanWindow struct {
	SFIMin    byte `json:"sfi_min"`
	SFIMax    byte `json:"sfi_max"`
	RecordMax byte `json:"record_max"`
}

var allowedReferenceControls = map[string]struct{}{
	"AAC":  {},
	"TC":   {},
	"ARQC": {},
}

var allowedTransactionTypes = map[emv.TransactionType]struct{}{
	emv.TxTypeMSD:        {},
	emv.TxTypeVSDC:       {},
	emv.TxTypeQVSDCMChip: {},
	emv.TxTypeCDA:        {},
}

// DefaultConfig returns the baseline terminal configuration: a VSDC
// contact/contactless interrogation requesting an ARQC for 1.00 in the
// terminal's minor currency unit.
func DefaultConfig() Config {
	return Config{
		TransactionType:       emv.TxTypeVSDC,
		ReferenceControl:      "ARQC",
		AmountAuthorisedMinor: 100,
		ForceContact:          false,
		ValidateTags:          true,
		TimeoutPerExchangeMs:  5000,
		ExtendedScanWindow:    ScanWindow{SFIMin: 1, SFIMax: 3, RecordMax: 16},
	}
}

// Validate rejects an out-of-range configuration.
func Validate(cfg Config) error {
	if _, ok := allowedTransactionTypes[cfg.TransactionType]; !ok {
		return fmt.Errorf("invalid transaction_type %q", cfg.TransactionType)
	}
	if _, ok := allowedReferenceControls[cfg.ReferenceControl]; !ok {
		return fmt.Errorf("invalid reference_control %q", cfg.ReferenceControl)
	}
	if cfg.TimeoutPerExchangeMs == 0 {
		return errors.New("timeout_per_exchange_ms must be > 0")
	}
	if cfg.ExtendedScanWindow.SFIMin == 0 || cfg.ExtendedScanWindow.SFIMin > 30 {
		return errors.New("extended_scan_window.sfi_min must be in 1..30")
	}
	if cfg.ExtendedScanWindow.SFIMax < cfg.ExtendedScanWindow.SFIMin || cfg.ExtendedScanWindow.SFIMax > 30 {
		return errors.New("extended_scan_window.sfi_max must be >= sfi_min and <= 30")
	}
	if cfg.ExtendedScanWindow.RecordMax == 0 {
		return errors.New("extended_scan_window.record_max must be > 0")
	}
	return nil
}

// ReferenceControlByte maps the configured mnemonic to the GENERATE AC
// P1 byte.
func (c Config) ReferenceControlByte() byte {
	switch c.ReferenceControl {
	case "AAC":
		return 0x00
	case "TC":
		return 0x40
	default:
		return 0x80
	}
}
