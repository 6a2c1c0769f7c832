package emv

import "fmt"

// Category classifies a tag for display/filtering purposes.
type Category string

const (
	CategoryApplicationSelection Category = "application-selection"
	CategoryAccountData          Category = "account-data"
	CategoryCoreEMV              Category = "core-emv"
	CategoryTerminalData         Category = "terminal-data"
	CategoryTransactionProc      Category = "transaction-processing"
	CategoryAuthCrypto           Category = "authentication-and-crypto"
	CategoryICCAuth              Category = "icc-authentication"
	CategoryRiskManagement       Category = "risk-management"
	CategoryContactlessExt       Category = "contactless-extensions"
	CategoryAdvanced             Category = "advanced"
	CategoryKernelConfig         Category = "kernel-config"
	CategoryProprietary          Category = "proprietary"
	CategoryOther                Category = "other"
)

// CatalogueEntry is a compile-time-known fact about one EMV tag.
type CatalogueEntry struct {
	Hex         string
	Description string
	Category    Category
	IsTemplate  bool // candidate template tag, subject to the override/plausibility rule
	AlwaysPrim  bool // EMV-spec quirk: constructed-looking encoding but opaque payload
	Critical    bool
	ROCABearing bool
}

// catalogue is the static tag table: human description, category,
// whether it is a template, an always-primitive override, or
// ROCA-bearing, for every tag this engine recognises.
var catalogue = map[string]CatalogueEntry{
	"4F":   {Hex: "4F", Description: "Application Identifier (AID) - terminal", Category: CategoryApplicationSelection},
	"50":   {Hex: "50", Description: "Application Label", Category: CategoryApplicationSelection},
	"61":   {Hex: "61", Description: "Application Template", Category: CategoryApplicationSelection, IsTemplate: true},
	"6F":   {Hex: "6F", Description: "File Control Information (FCI) Template", Category: CategoryApplicationSelection, IsTemplate: true},
	"87":   {Hex: "87", Description: "Application Priority Indicator", Category: CategoryApplicationSelection},
	"9F38": {Hex: "9F38", Description: "Processing Options Data Object List (PDOL)", Category: CategoryTerminalData},
	"A5":   {Hex: "A5", Description: "FCI Proprietary Template", Category: CategoryApplicationSelection, IsTemplate: true},
	"BF0C": {Hex: "BF0C", Description: "FCI Issuer Discretionary Data", Category: CategoryApplicationSelection, IsTemplate: true},
	"88":   {Hex: "88", Description: "Short File Identifier (SFI)", Category: CategoryCoreEMV},

	"5A":   {Hex: "5A", Description: "Application Primary Account Number (PAN)", Category: CategoryAccountData},
	"57":   {Hex: "57", Description: "Track 2 Equivalent Data", Category: CategoryAccountData},
	"5F20": {Hex: "5F20", Description: "Cardholder Name", Category: CategoryAccountData},
	"5F24": {Hex: "5F24", Description: "Application Expiration Date", Category: CategoryAccountData},
	"5F25": {Hex: "5F25", Description: "Application Effective Date", Category: CategoryAccountData},
	"5F28": {Hex: "5F28", Description: "Issuer Country Code", Category: CategoryAccountData},
	"5F30": {Hex: "5F30", Description: "Service Code", Category: CategoryAccountData},
	"5F34": {Hex: "5F34", Description: "Application PAN Sequence Number", Category: CategoryAccountData},

	"70":   {Hex: "70", Description: "READ RECORD Response Template", Category: CategoryCoreEMV, IsTemplate: true},
	"77":   {Hex: "77", Description: "Response Message Template Format 2", Category: CategoryCoreEMV, IsTemplate: true},
	"80":   {Hex: "80", Description: "Response Message Template Format 1", Category: CategoryCoreEMV, AlwaysPrim: true},
	"82":   {Hex: "82", Description: "Application Interchange Profile (AIP)", Category: CategoryCoreEMV, AlwaysPrim: true},
	"83":   {Hex: "83", Description: "Command Template", Category: CategoryCoreEMV, AlwaysPrim: true},
	"84":   {Hex: "84", Description: "Dedicated File (DF) Name", Category: CategoryCoreEMV, AlwaysPrim: true},
	"94":   {Hex: "94", Description: "Application File Locator (AFL)", Category: CategoryCoreEMV, AlwaysPrim: true, Critical: true},
	"95":   {Hex: "95", Description: "Terminal Verification Results (TVR)", Category: CategoryRiskManagement, AlwaysPrim: true},

	"8A":   {Hex: "8A", Description: "Authorisation Response Code", Category: CategoryTransactionProc},
	"8C":   {Hex: "8C", Description: "Card Risk Management Data Object List 1 (CDOL1)", Category: CategoryTransactionProc, Critical: true},
	"8D":   {Hex: "8D", Description: "Card Risk Management Data Object List 2 (CDOL2)", Category: CategoryTransactionProc, Critical: true},
	"8E":   {Hex: "8E", Description: "Cardholder Verification Method (CVM) List", Category: CategoryTransactionProc, Critical: true},
	"8F":   {Hex: "8F", Description: "Certification Authority Public Key Index", Category: CategoryTransactionProc, Critical: true},
	"9F07": {Hex: "9F07", Description: "Application Usage Control", Category: CategoryTransactionProc},
	"9F08": {Hex: "9F08", Description: "Application Version Number", Category: CategoryTransactionProc},
	"9F0D": {Hex: "9F0D", Description: "Issuer Action Code - Default", Category: CategoryRiskManagement},
	"9F0E": {Hex: "9F0E", Description: "Issuer Action Code - Denial", Category: CategoryRiskManagement},
	"9F0F": {Hex: "9F0F", Description: "Issuer Action Code - Online", Category: CategoryRiskManagement},

	"9F02": {Hex: "9F02", Description: "Amount, Authorised (Numeric)", Category: CategoryTerminalData},
	"9F03": {Hex: "9F03", Description: "Amount, Other (Numeric)", Category: CategoryTerminalData},
	"9F1A": {Hex: "9F1A", Description: "Terminal Country Code", Category: CategoryTerminalData},
	"5F2A": {Hex: "5F2A", Description: "Transaction Currency Code", Category: CategoryTerminalData},
	"9A":   {Hex: "9A", Description: "Transaction Date", Category: CategoryTerminalData},
	"9C":   {Hex: "9C", Description: "Transaction Type", Category: CategoryTerminalData},
	"9F21": {Hex: "9F21", Description: "Transaction Time", Category: CategoryTerminalData},
	"9F35": {Hex: "9F35", Description: "Terminal Type", Category: CategoryTerminalData},
	"9F33": {Hex: "9F33", Description: "Terminal Capabilities", Category: CategoryTerminalData},
	"9F40": {Hex: "9F40", Description: "Additional Terminal Capabilities", Category: CategoryTerminalData},
	"9F66": {Hex: "9F66", Description: "Terminal Transaction Qualifiers (TTQ)", Category: CategoryContactlessExt},

	"9F10": {Hex: "9F10", Description: "Issuer Application Data (IAD)", Category: CategoryAuthCrypto, Critical: true},
	"9F26": {Hex: "9F26", Description: "Application Cryptogram", Category: CategoryAuthCrypto},
	"9F27": {Hex: "9F27", Description: "Cryptogram Information Data (CID)", Category: CategoryAuthCrypto},
	"9F36": {Hex: "9F36", Description: "Application Transaction Counter (ATC)", Category: CategoryAuthCrypto, Critical: true},
	"9F37": {Hex: "9F37", Description: "Unpredictable Number", Category: CategoryAuthCrypto},
	"9F4C": {Hex: "9F4C", Description: "ICC Dynamic Number", Category: CategoryAuthCrypto},

	"90":   {Hex: "90", Description: "Issuer Public Key Certificate", Category: CategoryICCAuth, AlwaysPrim: true, ROCABearing: true},
	"92":   {Hex: "92", Description: "Issuer Public Key Remainder", Category: CategoryICCAuth, AlwaysPrim: true},
	"93":   {Hex: "93", Description: "Signed Static Application Data", Category: CategoryICCAuth, AlwaysPrim: true, Critical: true},
	"9F32": {Hex: "9F32", Description: "Issuer Public Key Exponent", Category: CategoryICCAuth, Critical: true},
	"9F46": {Hex: "9F46", Description: "ICC Public Key Certificate", Category: CategoryICCAuth, AlwaysPrim: true, ROCABearing: true, Critical: true},
	"9F47": {Hex: "9F47", Description: "ICC Public Key Exponent", Category: CategoryICCAuth, AlwaysPrim: true, Critical: true},
	"9F48": {Hex: "9F48", Description: "ICC Public Key Remainder", Category: CategoryICCAuth, AlwaysPrim: true},
	"9F49": {Hex: "9F49", Description: "Dynamic Data Authentication Data Object List (DDOL)", Category: CategoryICCAuth},
	"9F4A": {Hex: "9F4A", Description: "Static Data Authentication Tag List", Category: CategoryICCAuth, AlwaysPrim: true},
	"9F4B": {Hex: "9F4B", Description: "Signed Dynamic Application Data", Category: CategoryICCAuth, AlwaysPrim: true, ROCABearing: true},

	"9F13": {Hex: "9F13", Description: "Last Online Application Transaction Counter Register", Category: CategoryRiskManagement},
	"9F17": {Hex: "9F17", Description: "PIN Try Counter", Category: CategoryRiskManagement},
	"9F4D": {Hex: "9F4D", Description: "Log Entry", Category: CategoryRiskManagement},
	"9F4F": {Hex: "9F4F", Description: "Log Format", Category: CategoryRiskManagement},

	"9F6C": {Hex: "9F6C", Description: "Card Transaction Qualifiers (CTQ)", Category: CategoryContactlessExt},
	"9F6E": {Hex: "9F6E", Description: "Form Factor Indicator / Third Party Data", Category: CategoryContactlessExt},

	"DF01": {Hex: "DF01", Description: "Kernel Configuration (proprietary)", Category: CategoryKernelConfig},
}

var (
	templateTags        = map[string]bool{}
	alwaysPrimitiveTags = map[string]bool{}
	rocaTags            = map[string]bool{}
)

func init() {
	for hex, e := range catalogue {
		if e.IsTemplate {
			templateTags[hex] = true
		}
		if e.AlwaysPrim {
			alwaysPrimitiveTags[hex] = true
		}
		if e.ROCABearing {
			rocaTags[hex] = true
		}
	}
}

// Lookup returns the catalogue entry for a tag, or a synthesized
// "Unknown Tag" entry. An unknown tag is not an error.
func Lookup(tagHex string) CatalogueEntry {
	if e, ok := catalogue[tagHex]; ok {
		return e
	}
	return CatalogueEntry{
		Hex:         tagHex,
		Description: fmt.Sprintf("Unknown Tag (%s)", tagHex),
		Category:    CategoryOther,
	}
}

// IsKnown reports whether tagHex appears in the static catalogue.
func IsKnown(tagHex string) bool {
	_, ok := catalogue[tagHex]
	return ok
}

// IsROCABearing reports whether tagHex is one of the issuer/ICC
// certificate tags that can carry an RSA modulus worth fingerprinting.
func IsROCABearing(tagHex string) bool {
	return rocaTags[tagHex]
}

// IsTemplate decides, per tag, whether its value should be walked as a
// nested TLV container: the tag must be flagged as a known
// template or carry the constructed bit, it must not be in the
// always-primitive override list, and its first value byte must look
// like a plausible tag start (non-zero, class/constructed bits not all
// clear).
func IsTemplate(tagHex string, constructedBit bool, firstValueByte byte, hasValue bool) bool {
	if alwaysPrimitiveTags[tagHex] {
		return false
	}
	if !templateTags[tagHex] && !constructedBit {
		return false
	}
	if !hasValue {
		return false
	}
	return firstValueByte != 0 && firstValueByte&0xE0 != 0
}
