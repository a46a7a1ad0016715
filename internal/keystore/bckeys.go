package keystore

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"os"
	"path/filepath"

	"github.com/allnet-project/allnet/internal/ahra"
)

// BCKey is one broadcast key: an AHRA-addressed public key, with the
// matching private key present only for keys in our own_bc_keys pool.
type BCKey struct {
	Address    string
	PublicKey  *rsa.PublicKey
	PrivateKey *rsa.PrivateKey // nil for other_bc_keys entries
}

func (s *Store) ensureBCLoadedLocked() {
	if s.bcLoaded {
		return
	}
	s.bcLoaded = true
	s.ownBC = loadBCDir(filepath.Join(s.baseDir, "own_bc_keys"), true)
	s.otherBC = loadBCDir(filepath.Join(s.baseDir, "other_bc_keys"), false)
}

func loadBCDir(dir string, expectPrivate bool) []*BCKey {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var keys []*BCKey
	for _, e := range entries {
		if _, err := ahra.Parse(e.Name()); err != nil {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if expectPrivate {
			priv, err := readPrivateKeyPEM(path)
			if err != nil {
				continue
			}
			keys = append(keys, &BCKey{Address: e.Name(), PublicKey: &priv.PublicKey, PrivateKey: priv})
		} else {
			pub, err := readPublicKeyPEM(path)
			if err != nil {
				continue
			}
			keys = append(keys, &BCKey{Address: e.Name(), PublicKey: pub})
		}
	}
	return keys
}

// OwnBCKeys returns every broadcast key we hold the private half of.
func (s *Store) OwnBCKeys() []*BCKey {
	s.bcMu.Lock()
	defer s.bcMu.Unlock()
	s.ensureBCLoadedLocked()
	return append([]*BCKey(nil), s.ownBC...)
}

// OtherBCKeys returns every broadcast public key we have learned from peers.
func (s *Store) OtherBCKeys() []*BCKey {
	s.bcMu.Lock()
	defer s.bcMu.Unlock()
	s.ensureBCLoadedLocked()
	return append([]*BCKey(nil), s.otherBC...)
}

func findBCKey(keys []*BCKey, address string, defaultLang string, defaultBits int) *BCKey {
	for _, k := range keys {
		if ahra.VerifyBCKey(address, k.PublicKey, defaultLang, defaultBits) {
			return k
		}
	}
	return nil
}

// OwnBCKey returns the broadcast key matching address among our own
// broadcast keys, or nil.
func (s *Store) OwnBCKey(address, defaultLang string, defaultBits int) *BCKey {
	s.bcMu.Lock()
	defer s.bcMu.Unlock()
	s.ensureBCLoadedLocked()
	return findBCKey(s.ownBC, address, defaultLang, defaultBits)
}

// OtherBCKey returns the broadcast key matching address among peers'
// broadcast keys, or nil.
func (s *Store) OtherBCKey(address, defaultLang string, defaultBits int) *BCKey {
	s.bcMu.Lock()
	defer s.bcMu.Unlock()
	s.ensureBCLoadedLocked()
	return findBCKey(s.otherBC, address, defaultLang, defaultBits)
}

// GenerateBCKey derives a new broadcast address/keypair for phrase
// (§4.7's generate_key) and persists the private key under
// own_bc_keys/<ahra>.
func (s *Store) GenerateBCKey(keyBits int, phrase, lang string, bitstringBits, minMatches int) (string, error) {
	addr, priv, err := ahra.GenerateKey(keyBits, phrase, lang, bitstringBits, minMatches,
		func(bits int) (*rsa.PrivateKey, error) { return rsa.GenerateKey(rand.Reader, bits) })
	if err != nil {
		return "", err
	}
	dir := filepath.Join(s.baseDir, "own_bc_keys")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("keystore: creating %s: %w", dir, err)
	}
	if err := writePrivateKeyPEM(filepath.Join(dir, addr), priv); err != nil {
		return "", fmt.Errorf("keystore: saving broadcast key: %w", err)
	}
	s.bcMu.Lock()
	s.ensureBCLoadedLocked()
	s.ownBC = append(s.ownBC, &BCKey{Address: addr, PublicKey: &priv.PublicKey, PrivateKey: priv})
	s.bcMu.Unlock()
	return addr, nil
}

// VerifyAndSaveBCKey re-derives address's positions from pub and, if
// every position matches, optionally caches pub under
// other_bc_keys/<address> (§4.7's verify_bc_key).
func (s *Store) VerifyAndSaveBCKey(address string, pub *rsa.PublicKey, defaultLang string, defaultBits int, save bool) bool {
	if !ahra.VerifyBCKey(address, pub, defaultLang, defaultBits) {
		return false
	}
	if save {
		dir := filepath.Join(s.baseDir, "other_bc_keys")
		if err := os.MkdirAll(dir, 0700); err == nil {
			if err := writePublicKeyPEM(filepath.Join(dir, address), pub); err == nil {
				s.bcMu.Lock()
				s.ensureBCLoadedLocked()
				s.otherBC = append(s.otherBC, &BCKey{Address: address, PublicKey: pub})
				s.bcMu.Unlock()
			}
		}
	}
	return true
}
