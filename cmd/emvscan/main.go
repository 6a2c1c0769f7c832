// Command emvscan drives an EMV contactless interrogation scan against
// a PC/SC reader, persists the resulting profile, and exposes the
// profile store for inspection.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nfcforensics/emvscan/crypto"
	"github.com/nfcforensics/emvscan/emv"
	"github.com/nfcforensics/emvscan/engine"
	"github.com/nfcforensics/emvscan/engine/store"
	"github.com/nfcforensics/emvscan/engine/transport"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var storePath string
	var readerIndex int

	root := &cobra.Command{
		Use:     "emvscan",
		Short:   "EMV contactless card interrogation engine",
		Version: version,
	}
	root.PersistentFlags().StringVar(&storePath, "store", defaultStorePath(), "path to the profile store database")
	root.PersistentFlags().IntVar(&readerIndex, "reader", 0, "PC/SC reader index to use")

	root.AddCommand(
		newScanCmd(&storePath, &readerIndex),
		newListCmd(&storePath),
		newShowCmd(&storePath),
		newSearchCmd(&storePath),
		newExportCmd(&storePath),
		newClearCmd(&storePath),
	)
	return root
}

func defaultStorePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/emvscan/profiles.db"
	}
	return "emvscan-profiles.db"
}

func openStore(path string) (*store.Store, error) {
	if err := os.MkdirAll(parentDir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return store.Open(path, crypto.StdProvider{}, slog.Default())
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

func newScanCmd(storePath *string, readerIndex *int) *cobra.Command {
	var txType string
	var refCtl string
	var amount uint64
	var forceContact bool
	var validateTags bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "run one EMV interrogation against a presented card",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := engine.DefaultConfig()
			cfg.TransactionType = emv.TransactionType(txType)
			cfg.ReferenceControl = refCtl
			cfg.AmountAuthorisedMinor = amount
			cfg.ForceContact = forceContact
			cfg.ValidateTags = validateTags
			if err := engine.Validate(cfg); err != nil {
				return err
			}

			channel, err := transport.NewPCSCChannel(*readerIndex)
			if err != nil {
				return err
			}

			s, err := openStore(*storePath)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			sink := engine.NewSink(32, slog.Default())
			quiet := !term.IsTerminal(int(os.Stdout.Fd()))
			unsub := sink.Subscribe(func(ev engine.Event) { printEvent(cmd, ev, quiet) })
			defer unsub()

			eng := engine.NewEngine(cfg, channel, sink, crypto.StdProvider{})
			snap, runErr := eng.Run(cmd.Context())
			sink.Close()
			if snap == nil {
				return runErr
			}

			id, err := s.Add(*snap)
			if err != nil {
				return fmt.Errorf("save profile: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved profile %s\n", id)
			return runErr
		},
	}
	cmd.Flags().StringVar(&txType, "transaction-type", string(engine.DefaultConfig().TransactionType), "MSD, VSDC, qVSDC_MChip, or CDA")
	cmd.Flags().StringVar(&refCtl, "reference-control", engine.DefaultConfig().ReferenceControl, "AAC, TC, or ARQC")
	cmd.Flags().Uint64Var(&amount, "amount", engine.DefaultConfig().AmountAuthorisedMinor, "authorised amount, minor units")
	cmd.Flags().BoolVar(&forceContact, "force-contact", false, "skip PPSE and use the contact PSE only")
	cmd.Flags().BoolVar(&validateTags, "validate-tags", true, "emit warnings for tags absent from the catalogue")
	return cmd
}

func printEvent(cmd *cobra.Command, ev engine.Event, quiet bool) {
	if quiet {
		return
	}
	switch ev.Kind {
	case engine.EventProgress:
		fmt.Fprintf(cmd.OutOrStdout(), "[%d/%d] %s\n", ev.Index, ev.Total, ev.StepName)
	case engine.EventAPDUExchanged:
		fmt.Fprintf(cmd.OutOrStdout(), "  %s -> %s (%s)\n", ev.APDU.Description, ev.APDU.SW, ev.APDU.ResponseHex)
	case engine.EventError:
		fmt.Fprintf(cmd.OutOrStdout(), "  ! %s\n", ev.Message)
	}
}

func newListCmd(storePath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list stored profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(*storePath)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			var profiles []store.CardProfile
			if limit > 0 {
				profiles, err = s.ListRecent(limit)
			} else {
				profiles, err = s.ListAll()
			}
			if err != nil {
				return err
			}
			return printProfileTable(cmd, profiles)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "show only the N most recently created profiles")
	return cmd
}

func printProfileTable(cmd *cobra.Command, profiles []store.CardProfile) error {
	w := cmd.OutOrStdout()
	for _, p := range profiles {
		fmt.Fprintf(w, "%-8s %-20s %-6s %-24s %v\n", p.ID, orDash(p.Session.Derived.PAN), orDash(p.Session.Derived.Expiry), orDash(p.Session.Derived.ApplicationLabel), p.Session.Completed)
	}
	return nil
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

func newShowCmd(storePath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "print the full record for one profile as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(*storePath)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			profile, ok, err := s.Get(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("profile %s not found", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(profile)
		},
	}
	return cmd
}

func newSearchCmd(storePath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "case-insensitive substring search over PAN, cardholder name, and application label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(*storePath)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			profiles, err := s.Search(args[0])
			if err != nil {
				return err
			}
			return printProfileTable(cmd, profiles)
		},
	}
	return cmd
}

func newExportCmd(storePath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "export every stored profile as human-readable text",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(*storePath)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			text, err := s.ExportToText()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		},
	}
	return cmd
}

func newClearCmd(storePath *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "delete every stored profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear without --yes")
			}
			s, err := openStore(*storePath)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()
			return s.ClearAll()
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion of every stored profile")
	return cmd
}
