package emv

// dolProducer returns the natural-length value for one DOL tag, given
// the terminal environment. The caller (ResolveDOL) still right-pads
// or truncates to the length the DOL itself declares: a
// producer is never responsible for sizing its own output.
type dolProducer func(env Environment) []byte

var dolProducers = map[string]dolProducer{
	"9F02": func(e Environment) []byte { return e.AmountAuthorizedBCD },
	"9F03": func(e Environment) []byte { return e.AmountOtherBCD },
	"9F1A": func(e Environment) []byte { return e.TerminalCountryCode },
	"95":   func(e Environment) []byte { return e.TVR },
	"5F2A": func(e Environment) []byte { return e.TransactionCurrency },
	"9A":   func(e Environment) []byte { return e.TodayBCD },
	"9C":   func(e Environment) []byte { return []byte{e.TransactionType} },
	"9F37": func(e Environment) []byte { return e.UnpredictableNumber },
	"9F35": func(e Environment) []byte { return []byte{e.TerminalType} },
	"9F33": func(e Environment) []byte { return e.TerminalCapabilities },
	"9F40": func(e Environment) []byte { return e.AdditionalTermCaps },
	"9F66": func(e Environment) []byte { return e.TTQ },
	"9F21": func(e Environment) []byte { return e.TimeBCD },
	"9F36": func(e Environment) []byte { return e.ATC },
	"9F10": func(e Environment) []byte { return e.IAD },
}

// ResolveDOL builds the value field for a GPO (PDOL) or GENERATE AC
// (CDOL1/CDOL2) command given a parsed DOL and the terminal
// environment it should be evaluated against. Any tag with no known
// producer, or whose producer returns nothing, is filled with zero
// bytes of the declared length -- this keeps the APDU well-formed even
// against an unusual or vendor-specific DOL.
func ResolveDOL(dol []DOLEntry, env Environment) []byte {
	out := make([]byte, 0, dolLenHint(dol))
	for _, entry := range dol {
		producer, ok := dolProducers[entry.Tag.Hex]
		var value []byte
		if ok {
			value = producer(env)
		}
		out = append(out, fitLength(value, entry.Length)...)
	}
	return out
}

func dolLenHint(dol []DOLEntry) int {
	total := 0
	for _, e := range dol {
		total += e.Length
	}
	return total
}

// fitLength truncates or right-pads value with zero bytes so its
// length matches exactly n.
func fitLength(value []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, value)
	return out
}
