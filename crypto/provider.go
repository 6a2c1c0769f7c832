// Package crypto provides the narrow cryptographic primitives the rest
// of this module needs: content hashing for stored profiles and
// a cryptographically secure source for unpredictable numbers. It does
// not perform card authentication cryptography, key factorisation, or
// any other attack tooling — that is explicitly out of scope.
package crypto

// Provider is the narrow hashing interface consumed by engine/store and
// emv's ROCA fingerprinting. Kept as an interface, not a concrete type,
// following the same shape as the provider abstraction this codebase
// already uses elsewhere, so a future hardware-backed implementation
// can be substituted without touching callers.
type Provider interface {
	SHA3_256(input []byte) [32]byte
}
