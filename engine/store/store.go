package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/nfcforensics/emvscan/crypto"
	"github.com/nfcforensics/emvscan/engine"
)

var (
	bucketProfiles = []byte("profiles_by_id")
	bucketMeta     = []byte("profiles_meta")

	metaSequenceKey = []byte("next_id")
)

// Listener is an opaque callable invoked synchronously on the
// mutator, after the mutation is durably visible. Listeners
// subscribed during a notification
// observe only the next event, not the current one.
type Listener func(event MutationEvent)

// MutationKind enumerates the store-level mutations a Listener is
// notified of.
type MutationKind string

const (
	MutationAdded     MutationKind = "added"
	MutationUpdated   MutationKind = "updated"
	MutationDeleted   MutationKind = "deleted"
	MutationClearedAll MutationKind = "cleared_all"
)

// MutationEvent describes one store mutation.
type MutationEvent struct {
	Kind    MutationKind
	Profile CardProfile // zero value for MutationClearedAll and MutationDeleted
	ID      string
}

// Store is a single-process, bbolt-backed profile repository. It has
// no global state: the composition root (cmd/emvscan) owns the one
// instance and passes it to whatever needs it by reference.
type Store struct {
	db     *bolt.DB
	hasher crypto.Provider
	log    *slog.Logger

	mu        sync.Mutex // serialises mutations (listeners fire on the mutator)
	listeners []Listener
}

// Open creates or opens the bbolt file at path and ensures its
// buckets exist.
func Open(path string, hasher crypto.Provider, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open bbolt: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketProfiles, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	if hasher == nil {
		hasher = crypto.StdProvider{}
	}
	return &Store{db: db, hasher: hasher, log: log}, nil
}

// Close releases the underlying bbolt file. Safe to call once.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Subscribe registers a listener and returns an unsubscribe closure.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
	idx := len(s.listeners) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.listeners) {
			s.listeners[idx] = nil
		}
	}
}

// notify fires every live listener synchronously on the mutator, after
// the mutation has committed. It copies the listener slice under lock
// and dispatches after releasing it, so a listener that calls
// Subscribe from within its own callback does not deadlock; such a
// listener is not invoked for the event in progress.
func (s *Store) notify(ev MutationEvent) {
	s.mu.Lock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		if l == nil {
			continue
		}
		s.dispatchSafely(l, ev)
	}
}

func (s *Store) dispatchSafely(l Listener, ev MutationEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("store listener panicked", "kind", ev.Kind, "recover", r)
		}
	}()
	l(ev)
}

// Add clones snap into a new CardProfile, assigns it a sequence-backed
// id, persists it, and notifies listeners.
func (s *Store) Add(snap engine.Snapshot) (string, error) {
	s.mu.Lock()
	var profile CardProfile
	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		seq, err := meta.NextSequence()
		if err != nil {
			return fmt.Errorf("next id sequence: %w", err)
		}
		id := strconv.FormatUint(seq, 10)

		profile = CardProfile{
			ID:          id,
			CreatedAt:   snap.CapturedAt,
			Session:     snap,
			ContentHash: contentDigest(s.hasher, snap),
		}
		b, err := json.Marshal(profile)
		if err != nil {
			return fmt.Errorf("marshal profile: %w", err)
		}
		return tx.Bucket(bucketProfiles).Put([]byte(id), b)
	})
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	s.notify(MutationEvent{Kind: MutationAdded, Profile: profile, ID: profile.ID})
	return profile.ID, nil
}

// Update persists a mutated profile (typically after the caller has
// changed LabelOverrides) and notifies listeners.
func (s *Store) Update(profile CardProfile) error {
	s.mu.Lock()
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := json.Marshal(profile)
		if err != nil {
			return fmt.Errorf("marshal profile: %w", err)
		}
		bucket := tx.Bucket(bucketProfiles)
		if bucket.Get([]byte(profile.ID)) == nil {
			return fmt.Errorf("store: profile %s not found", profile.ID)
		}
		return bucket.Put([]byte(profile.ID), b)
	})
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(MutationEvent{Kind: MutationUpdated, Profile: profile, ID: profile.ID})
	return nil
}

// Delete removes a profile by id and notifies listeners. Deleting an
// absent id is not an error.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProfiles).Delete([]byte(id))
	})
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(MutationEvent{Kind: MutationDeleted, ID: id})
	return nil
}

// ClearAll removes every profile and notifies listeners once.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketProfiles); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(bucketProfiles)
		return err
	})
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(MutationEvent{Kind: MutationClearedAll})
	return nil
}

// Get returns an owned copy of the profile with the given id.
func (s *Store) Get(id string) (CardProfile, bool, error) {
	var profile CardProfile
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketProfiles).Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &profile)
	})
	return profile, found, err
}

// ListAll returns every profile, sorted PAN-bearing first (PAN
// ascending), then remaining by UID. The slice is an owned snapshot:
// the caller may hold onto it across further mutations without
// racing the store.
func (s *Store) ListAll() ([]CardProfile, error) {
	var profiles []CardProfile
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProfiles).ForEach(func(_, v []byte) error {
			var p CardProfile
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			profiles = append(profiles, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	SortProfiles(profiles)
	return profiles, nil
}

// ListRecent returns up to limit profiles, most recently created
// first.
func (s *Store) ListRecent(limit int) ([]CardProfile, error) {
	all, err := s.listByCreatedDesc()
	if err != nil {
		return nil, err
	}
	if limit >= 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) listByCreatedDesc() ([]CardProfile, error) {
	var profiles []CardProfile
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProfiles).ForEach(func(_, v []byte) error {
			var p CardProfile
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			profiles = append(profiles, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortByCreatedDesc(profiles)
	return profiles, nil
}

// Search performs a case-insensitive substring match over PAN,
// cardholder name, and application label.
func (s *Store) Search(query string) ([]CardProfile, error) {
	all, err := s.ListAll()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var matches []CardProfile
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Session.Derived.PAN), q) ||
			strings.Contains(strings.ToLower(p.Session.Derived.CardholderName), q) ||
			strings.Contains(strings.ToLower(p.Session.Derived.ApplicationLabel), q) {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

// ExportToText renders every stored profile as a human-readable
// report, one section per profile in ListAll order.
func (s *Store) ExportToText() (string, error) {
	all, err := s.ListAll()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, p := range all {
		fmt.Fprintf(&b, "=== Profile %s ===\n", p.ID)
		fmt.Fprintf(&b, "Created: %s\n", p.CreatedAt.Format("2006-01-02 15:04:05"))
		if p.Session.CardUID != "" {
			fmt.Fprintf(&b, "Card UID: %s\n", p.Session.CardUID)
		}
		fmt.Fprintf(&b, "PAN: %s\n", orNone(p.Session.Derived.PAN))
		fmt.Fprintf(&b, "Expiry: %s\n", orNone(p.Session.Derived.Expiry))
		fmt.Fprintf(&b, "Cardholder: %s\n", orNone(p.Session.Derived.CardholderName))
		fmt.Fprintf(&b, "Application: %s\n", orNone(p.Session.Derived.ApplicationLabel))
		fmt.Fprintf(&b, "AIP: %s\n", orNone(p.Session.Derived.AIPHex))
		fmt.Fprintf(&b, "Cryptogram: %s (CID %s, ATC %s)\n",
			orNone(p.Session.Derived.CryptogramHex), orNone(p.Session.Derived.CIDHex), orNone(p.Session.Derived.ATCHex))
		fmt.Fprintf(&b, "Completed: %v\n", p.Session.Completed)
		if p.Session.ErrorMessage != "" {
			fmt.Fprintf(&b, "Error: %s\n", p.Session.ErrorMessage)
		}
		fmt.Fprintf(&b, "APDU exchanges: %d\n", len(p.Session.APDULog))
		if len(p.Session.ROCAFindings) > 0 {
			fmt.Fprintf(&b, "ROCA findings:\n")
			for tag, f := range p.Session.ROCAFindings {
				fmt.Fprintf(&b, "  %s: %s (modulus %d bytes)\n", tag, f.Confidence, f.ModulusLen)
			}
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func orNone(v string) string {
	if v == "" {
		return "(none)"
	}
	return v
}

func sortByCreatedDesc(profiles []CardProfile) {
	for i := 1; i < len(profiles); i++ {
		j := i
		for j > 0 && profiles[j-1].CreatedAt.Before(profiles[j].CreatedAt) {
			profiles[j-1], profiles[j] = profiles[j], profiles[j-1]
			j--
		}
	}
}
