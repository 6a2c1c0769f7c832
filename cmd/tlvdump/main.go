// Command tlvdump parses a hex-encoded BER-TLV blob from stdin or an
// argument and prints its decoded tree, one line per node, annotated
// from the tag catalogue. A small parse-and-print utility for
// eyeballing wire data during fixture authoring.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nfcforensics/emvscan/emv"
)

func main() {
	validate := flag.Bool("validate", true, "warn on tags absent from the catalogue")
	flag.Parse()

	var input string
	if flag.NArg() > 0 {
		input = flag.Arg(0)
	} else {
		raw, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err != nil {
			fmt.Fprintln(os.Stderr, "read stdin:", err)
			os.Exit(1)
		}
		input = string(raw)
	}
	input = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			return -1
		}
		return r
	}, input)

	data, err := hex.DecodeString(input)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid hex input:", err)
		os.Exit(1)
	}

	result := emv.Parse(data, *validate)
	printNodes(result.Roots, 0)

	if len(result.Errors) > 0 {
		fmt.Fprintln(os.Stderr, "\nerrors:")
		for _, e := range result.Errors {
			fmt.Fprintln(os.Stderr, " ", e)
		}
	}
	if len(result.Warnings) > 0 {
		fmt.Fprintln(os.Stderr, "\nwarnings:")
		for _, w := range result.Warnings {
			fmt.Fprintln(os.Stderr, " ", w)
		}
	}
	fmt.Fprintf(os.Stderr, "\nknown=%d unknown=%d max_depth=%d\n", result.KnownCount, result.UnknownCount, result.MaxDepthSeen)
}

func printNodes(nodes []emv.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		entry := emv.Lookup(n.Tag.Hex)
		if n.Constructed {
			fmt.Printf("%s%s  %s [%s]\n", indent, n.Tag.Hex, entry.Description, entry.Category)
			printNodes(n.Children, depth+1)
			continue
		}
		fmt.Printf("%s%s  %s = %s  [%s]\n", indent, n.Tag.Hex, entry.Description, hex.EncodeToString(n.Value), entry.Category)
	}
}
