package emv

import (
	"math/big"

	"github.com/nfcforensics/emvscan/crypto"
)

// ROCAConfidence labels how strongly a modulus resembles the output of
// an Infineon RSALib key generator vulnerable to CVE-2017-15361. This
// package never factors the modulus; it only tests residues against a
// small set of precomputed vulnerable subgroups.
type ROCAConfidence string

const (
	ROCAUnknown      ROCAConfidence = "unknown"
	ROCAUnlikely     ROCAConfidence = "unlikely"
	ROCAPossible     ROCAConfidence = "possible"
	ROCAHighlyLikely ROCAConfidence = "highly_likely"

	// ROCAConfirmed is reserved for an external factorisation result fed
	// back into a finding; this package never produces it itself.
	ROCAConfirmed ROCAConfidence = "confirmed"
)

// ROCAFinding is the result of fingerprinting one RSA modulus.
type ROCAFinding struct {
	Confidence  ROCAConfidence
	ModulusLen  int
	PrimesTested int
	PrimesMatched int
	Fingerprint string // hex SHA3-256 of the raw modulus bytes
}

// rocaPrimes is a small fixed list of primes used for the residue
// test. Real ROCA detectors use dozens; a handful is enough to show
// the shape of the test without pretending to be a forensic-grade
// implementation.
var rocaPrimes = []int64{3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47}

const rocaGenerator = 65537

var rocaSubgroups = buildROCASubgroups()

// buildROCASubgroups computes, for each prime p, the cyclic subgroup
// of (Z/pZ)* generated by 65537. A prime factor of a ROCA-vulnerable
// modulus always lands in this subgroup mod p; a random prime lands in
// it with probability roughly |subgroup|/(p-1).
func buildROCASubgroups() map[int64]map[int64]bool {
	out := make(map[int64]map[int64]bool, len(rocaPrimes))
	for _, p := range rocaPrimes {
		seen := make(map[int64]bool)
		v := int64(1) % p
		for !seen[v] {
			seen[v] = true
			v = (v * rocaGenerator) % p
		}
		out[p] = seen
	}
	return out
}

// FingerprintROCA tests modulus against the precomputed subgroups and
// returns a confidence label plus a content fingerprint for dedup
// against the card profile store. hasher may be nil, in which case
// Fingerprint is left empty.
func FingerprintROCA(modulus []byte, hasher crypto.Provider) ROCAFinding {
	if len(modulus) == 0 {
		return ROCAFinding{Confidence: ROCAUnknown}
	}

	n := new(big.Int).SetBytes(modulus)
	matched := 0
	for _, p := range rocaPrimes {
		residue := new(big.Int).Mod(n, big.NewInt(p)).Int64()
		if rocaSubgroups[p][residue] {
			matched++
		}
	}

	finding := ROCAFinding{
		ModulusLen:    len(modulus),
		PrimesTested:  len(rocaPrimes),
		PrimesMatched: matched,
	}
	switch {
	case matched == len(rocaPrimes):
		finding.Confidence = ROCAHighlyLikely
	case matched >= len(rocaPrimes)/2:
		finding.Confidence = ROCAPossible
	default:
		finding.Confidence = ROCAUnlikely
	}

	if hasher != nil {
		sum := hasher.SHA3_256(modulus)
		finding.Fingerprint = bytesToHex(sum[:])
	}
	return finding
}
