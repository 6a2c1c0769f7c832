// Package store persists finished scan sessions as card profiles and
// notifies subscribed listeners of every mutation: one bucket per
// concern, transactional mutation, owned copies on read.
package store

import (
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/nfcforensics/emvscan/crypto"
	"github.com/nfcforensics/emvscan/engine"
)

// CardProfile is the immutable (from the caller's perspective) wrapper
// around a finished scan. Only LabelOverrides is mutable after save,
// via Update.
type CardProfile struct {
	ID             string            `json:"id"`
	CreatedAt      time.Time         `json:"created_at"`
	Session        engine.Snapshot   `json:"session_record"`
	LabelOverrides map[string]string `json:"label_overrides,omitempty"`
	ContentHash    string            `json:"content_hash"`
}

// pan returns the profile's derived PAN, or "" if none was recovered.
func (p CardProfile) pan() string { return p.Session.Derived.PAN }

// sortKey orders profiles PAN-bearing first (PAN ascending), then the
// remainder by card UID.
func sortKey(p CardProfile) (hasPAN bool, pan string, uid string) {
	return p.pan() != "", p.pan(), p.Session.CardUID
}

// SortProfiles orders a slice in place per the card-profile
// enumeration rule.
func SortProfiles(profiles []CardProfile) {
	sort.SliceStable(profiles, func(i, j int) bool {
		hi, pi, ui := sortKey(profiles[i])
		hj, pj, uj := sortKey(profiles[j])
		if hi != hj {
			return hi // PAN-bearing sorts first
		}
		if hi {
			return pi < pj
		}
		return ui < uj
	})
}

// contentDigest hashes the canonical fields of a session record: card
// UID, PAN, expiry, AIP, AFL and every tag in sorted key order. The
// APDU log is not hashed, so exchange timing does not affect it; the
// per-transaction tags (cryptogram, ATC) are, so two reads of a card
// that answered GENERATE AC yield different digests.
func contentDigest(hasher crypto.Provider, snap engine.Snapshot) string {
	if hasher == nil {
		hasher = crypto.StdProvider{}
	}
	var buf []byte
	buf = append(buf, []byte(snap.CardUID)...)
	buf = append(buf, []byte(snap.Derived.PAN)...)
	buf = append(buf, []byte(snap.Derived.Expiry)...)
	buf = append(buf, []byte(snap.Derived.AIPHex)...)
	buf = append(buf, []byte(snap.Derived.AFLHex)...)

	keys := make([]string, 0, len(snap.Tags))
	for k := range snap.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf = append(buf, []byte(k)...)
		buf = append(buf, []byte(snap.Tags[k])...)
	}
	sum := hasher.SHA3_256(buf)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
