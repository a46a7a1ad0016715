// Package keystore implements the on-disk contact/key store (§4.7):
// per-contact keysets under ~/.allnet/contacts/<timestamp>/, a flat
// spare-key pool under ~/.allnet/own_spare_keys/, and the broadcast-key
// directories handled in bckeys.go.
//
// Grounded on original_source/src/lib/keys.c. Per the spec's redesign
// flag (§"Processwide lazy-initialized contact table"), this is built
// as an explicit Store handle rather than the original's
// lazily-initialized process-global table — callers construct one Store
// per process/test and thread it through, which admits concurrent
// readers (each under Store's mutex) cleanly instead of a hidden
// global init flag.
package keystore

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/allnet-project/allnet/internal/wire"
)

const dateTimeLayout = "20060102150405" // strftime "%Y%m%d%H%M%S", 14 digits

// Keyset is one cryptographic binding to a contact: our private key,
// optionally the contact's public key, and optionally known local/remote
// addresses for them.
type Keyset struct {
	ContactName string
	MyKey       *rsa.PrivateKey
	ContactKey  *rsa.PublicKey // nil until the contact's pubkey is learned
	Local       wire.Address   // Bits == 0 means "unknown"
	Remote      wire.Address

	dir string // on-disk directory name; "" until first Save
}

// Store is a handle onto one ~/.allnet-style directory tree. The zero
// value is not usable; construct with Open. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	baseDir string
	keysets []*Keyset

	bcMu     sync.Mutex
	ownBC    []*BCKey
	otherBC  []*BCKey
	bcLoaded bool
}

// Open loads every existing keyset directory under baseDir/contacts and
// returns a ready Store. baseDir is created if absent; contacts/ is
// scanned eagerly (mirroring keys.c's init_from_file, but run once, up
// front, rather than lazily from every getter).
func Open(baseDir string) (*Store, error) {
	s := &Store{baseDir: baseDir}
	contactsDir := filepath.Join(baseDir, "contacts")
	if err := os.MkdirAll(contactsDir, 0700); err != nil {
		return nil, fmt.Errorf("keystore: creating %s: %w", contactsDir, err)
	}
	entries, err := os.ReadDir(contactsDir)
	if err != nil {
		return nil, fmt.Errorf("keystore: reading %s: %w", contactsDir, err)
	}
	for _, e := range entries {
		if !e.IsDir() || !isDateTimeName(e.Name()) {
			continue
		}
		ks, ok := loadKeyset(filepath.Join(contactsDir, e.Name()))
		if ok {
			s.keysets = append(s.keysets, ks)
		}
	}
	return s, nil
}

// Reload rescans baseDir/contacts for keyset directories this Store
// doesn't already hold, picking up contacts created by another process
// (or synced in externally) without losing in-memory index stability
// for keysets already loaded.
func (s *Store) Reload() error {
	contactsDir := filepath.Join(s.baseDir, "contacts")
	entries, err := os.ReadDir(contactsDir)
	if err != nil {
		return fmt.Errorf("keystore: reading %s: %w", contactsDir, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	known := make(map[string]bool, len(s.keysets))
	for _, ks := range s.keysets {
		known[ks.dir] = true
	}
	for _, e := range entries {
		if !e.IsDir() || !isDateTimeName(e.Name()) {
			continue
		}
		dir := filepath.Join(contactsDir, e.Name())
		if known[dir] {
			continue
		}
		if ks, ok := loadKeyset(dir); ok {
			s.keysets = append(s.keysets, ks)
		}
	}
	return nil
}

func isDateTimeName(name string) bool {
	if len(name) != len(dateTimeLayout) {
		return false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// loadKeyset reads one contact directory; returns ok=false if required
// files (name, my_key) are missing, per §4.7.
func loadKeyset(dir string) (*Keyset, bool) {
	name, err := os.ReadFile(filepath.Join(dir, "name"))
	if err != nil {
		return nil, false
	}
	priv, err := readPrivateKeyPEM(filepath.Join(dir, "my_key"))
	if err != nil {
		return nil, false
	}
	ks := &Keyset{ContactName: string(name), MyKey: priv, dir: dir}
	if pub, err := readPublicKeyPEM(filepath.Join(dir, "contact_pubkey")); err == nil {
		ks.ContactKey = pub
	}
	ks.Local = readAddressFile(filepath.Join(dir, "local"))
	ks.Remote = readAddressFile(filepath.Join(dir, "remote"))
	return ks, true
}

// NumContacts returns the number of distinct contact display names.
func (s *Store) NumContacts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contactNamesLocked())
}

// AllContacts returns the distinct contact display names, in the order
// their first keyset was created.
func (s *Store) AllContacts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contactNamesLocked()
}

func (s *Store) contactNamesLocked() []string {
	seen := make(map[string]bool)
	var names []string
	for _, ks := range s.keysets {
		if !seen[ks.ContactName] {
			seen[ks.ContactName] = true
			names = append(names, ks.ContactName)
		}
	}
	return names
}

func (s *Store) contactExistsLocked(contact string) bool {
	for _, ks := range s.keysets {
		if ks.ContactName == contact {
			return true
		}
	}
	return false
}

// AllKeys returns the indices (stable for the Store's lifetime) of every
// keyset belonging to contact, or nil if the contact does not exist.
func (s *Store) AllKeys(contact string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.contactExistsLocked(contact) {
		return nil
	}
	var out []int
	for i, ks := range s.keysets {
		if ks.ContactName == contact {
			out = append(out, i)
		}
	}
	return out
}

func (s *Store) valid(k int) bool { return k >= 0 && k < len(s.keysets) }

// GetMyPrivkey returns the private key for keyset k.
func (s *Store) GetMyPrivkey(k int) (*rsa.PrivateKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.valid(k) {
		return nil, false
	}
	return s.keysets[k].MyKey, true
}

// GetContactPubkey returns the contact's public key for keyset k, if known.
func (s *Store) GetContactPubkey(k int) (*rsa.PublicKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.valid(k) || s.keysets[k].ContactKey == nil {
		return nil, false
	}
	return s.keysets[k].ContactKey, true
}

// GetLocal returns the known local address for keyset k.
func (s *Store) GetLocal(k int) (wire.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.valid(k) || s.keysets[k].Local.Bits == 0 {
		return wire.Address{}, false
	}
	return s.keysets[k].Local, true
}

// GetRemote returns the known remote address for keyset k.
func (s *Store) GetRemote(k int) (wire.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.valid(k) || s.keysets[k].Remote.Bits == 0 {
		return wire.Address{}, false
	}
	return s.keysets[k].Remote, true
}

// SetContactPubkey fills in the contact's public key for keyset k,
// refusing if one is already set (§4.7).
func (s *Store) SetContactPubkey(k int, pub *rsa.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.valid(k) {
		return fmt.Errorf("keystore: invalid keyset %d", k)
	}
	if s.keysets[k].ContactKey != nil {
		return fmt.Errorf("keystore: keyset %d already has a contact public key", k)
	}
	s.keysets[k].ContactKey = pub
	return s.saveLocked(s.keysets[k])
}

// SetContactLocalAddr records the local address under which keyset k's
// contact is reachable.
func (s *Store) SetContactLocalAddr(k int, addr wire.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.valid(k) {
		return fmt.Errorf("keystore: invalid keyset %d", k)
	}
	s.keysets[k].Local = addr
	return s.saveLocked(s.keysets[k])
}

// SetContactRemoteAddr records the remote address for keyset k's contact.
func (s *Store) SetContactRemoteAddr(k int, addr wire.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.valid(k) {
		return fmt.Errorf("keystore: invalid keyset %d", k)
	}
	s.keysets[k].Remote = addr
	return s.saveLocked(s.keysets[k])
}

// CreateContact creates a new keyset for contact, returning its index.
// If a keyset for that name already exists with no contact public key
// (an incomplete entry from a prior key exchange attempt), it is reused
// and its local address is overwritten when loc is given and either the
// entry had no local address yet or the bit counts match; this mirrors
// keys.c's create_contact exactly, including its -1 "contact already
// complete" failure.
//
// A spare key of the requested size is consumed from the spare pool if
// one is available; otherwise a fresh key is generated.
func (s *Store) CreateContact(contact string, keyBits int, contactPub *rsa.PublicKey, loc, remote *wire.Address) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, ks := range s.keysets {
		if ks.ContactName != contact {
			continue
		}
		if ks.ContactKey != nil {
			return -1, fmt.Errorf("keystore: contact %q already fully established", contact)
		}
		if ks.Local.Bits == 0 || (loc != nil && loc.Bits == ks.Local.Bits) {
			if loc != nil {
				ks.Local = *loc
			}
			return i, nil
		}
		return -1, fmt.Errorf("keystore: contact %q exists with a conflicting local address", contact)
	}

	priv, err := s.takeSpareKeyLocked(keyBits)
	if err != nil {
		return -1, err
	}
	if priv == nil {
		priv, err = rsa.GenerateKey(rand.Reader, keyBits)
		if err != nil {
			return -1, fmt.Errorf("keystore: generating contact key: %w", err)
		}
	}

	ks := &Keyset{ContactName: contact, MyKey: priv, ContactKey: contactPub}
	if loc != nil {
		ks.Local = *loc
	}
	if remote != nil {
		ks.Remote = *remote
	}
	if err := s.saveLocked(ks); err != nil {
		return -1, err
	}
	s.keysets = append(s.keysets, ks)
	return len(s.keysets) - 1, nil
}

func (s *Store) saveLocked(ks *Keyset) error {
	if ks.dir == "" {
		ks.dir = filepath.Join(s.baseDir, "contacts", time.Now().UTC().Format(dateTimeLayout))
	}
	if err := os.MkdirAll(ks.dir, 0700); err != nil {
		return fmt.Errorf("keystore: creating %s: %w", ks.dir, err)
	}
	if err := os.WriteFile(filepath.Join(ks.dir, "name"), []byte(ks.ContactName), 0600); err != nil {
		return fmt.Errorf("keystore: writing name: %w", err)
	}
	if ks.MyKey != nil {
		if err := writePrivateKeyPEM(filepath.Join(ks.dir, "my_key"), ks.MyKey); err != nil {
			return fmt.Errorf("keystore: writing my_key: %w", err)
		}
	}
	if ks.ContactKey != nil {
		if err := writePublicKeyPEM(filepath.Join(ks.dir, "contact_pubkey"), ks.ContactKey); err != nil {
			return fmt.Errorf("keystore: writing contact_pubkey: %w", err)
		}
	}
	if ks.Local.Bits != 0 {
		if err := writeAddressFile(filepath.Join(ks.dir, "local"), ks.Local); err != nil {
			return err
		}
	}
	if ks.Remote.Bits != 0 {
		if err := writeAddressFile(filepath.Join(ks.dir, "remote"), ks.Remote); err != nil {
			return err
		}
	}
	return nil
}

// CreateSpareKey generates a fresh RSA key and adds it to the spare
// pool, returning the pool's new size (§4.7).
func (s *Store) CreateSpareKey(keyBits int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	priv, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return 0, fmt.Errorf("keystore: generating spare key: %w", err)
	}
	dir := filepath.Join(s.baseDir, "own_spare_keys")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return 0, fmt.Errorf("keystore: creating %s: %w", dir, err)
	}
	name := time.Now().UTC().Format(dateTimeLayout)
	if err := writePrivateKeyPEM(filepath.Join(dir, name), priv); err != nil {
		return 0, fmt.Errorf("keystore: writing spare key: %w", err)
	}
	return s.countSpareKeysLocked(), nil
}

func (s *Store) countSpareKeysLocked() int {
	dir := filepath.Join(s.baseDir, "own_spare_keys")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, e := range entries {
		if len(e.Name()) == len(dateTimeLayout) && e.Name()[0] != '.' {
			count++
		}
	}
	return count
}

// NumSpareKeys reports the current size of the spare key pool.
func (s *Store) NumSpareKeys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countSpareKeysLocked()
}

// takeSpareKeyLocked removes and returns one spare key whose size
// matches keyBits, or (nil, nil) if the pool has none of that size.
func (s *Store) takeSpareKeyLocked(keyBits int) (*rsa.PrivateKey, error) {
	dir := filepath.Join(s.baseDir, "own_spare_keys")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if len(e.Name()) != len(dateTimeLayout) || e.Name()[0] == '.' {
			continue
		}
		path := filepath.Join(dir, e.Name())
		priv, err := readPrivateKeyPEM(path)
		if err != nil {
			continue
		}
		if priv.N.BitLen() != keyBits && priv.Size()*8 != keyBits {
			continue
		}
		os.Remove(path)
		return priv, nil
	}
	return nil, nil
}
