package keystore

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/allnet-project/allnet/internal/cryptoenv"
	"github.com/allnet-project/allnet/internal/wire"
)

func TestCreateContactPersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	pub := genPub(t)
	local := wire.NewAddress([]byte{1, 2, 3}, 20)
	k, err := s.CreateContact("alice", 1024, pub, &local, nil)
	if err != nil {
		t.Fatalf("CreateContact: %v", err)
	}
	if k != 0 {
		t.Fatalf("keyset index = %d, want 0", k)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if s2.NumContacts() != 1 {
		t.Fatalf("reopened NumContacts = %d, want 1", s2.NumContacts())
	}
	names := s2.AllContacts()
	if len(names) != 1 || names[0] != "alice" {
		t.Fatalf("reopened contacts = %v, want [alice]", names)
	}
	gotLocal, ok := s2.GetLocal(0)
	if !ok || gotLocal.Bits != 20 {
		t.Errorf("reopened local addr = %+v, ok=%v", gotLocal, ok)
	}
	gotPub, ok := s2.GetContactPubkey(0)
	if !ok || gotPub.N.Cmp(pub.N) != 0 {
		t.Error("reopened contact pubkey does not match original")
	}
}

func TestCreateContactRefusesDuplicateComplete(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	pub := genPub(t)
	if _, err := s.CreateContact("bob", 1024, pub, nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateContact("bob", 1024, pub, nil, nil); err == nil {
		t.Error("CreateContact allowed a second complete entry for the same name")
	}
}

func TestSetContactPubkeyRefusesOverwrite(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	k, err := s.CreateContact("carol", 1024, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	pub1 := genPub(t)
	pub2 := genPub(t)
	if err := s.SetContactPubkey(k, pub1); err != nil {
		t.Fatalf("first SetContactPubkey: %v", err)
	}
	if err := s.SetContactPubkey(k, pub2); err == nil {
		t.Error("SetContactPubkey allowed overwriting an existing contact key")
	}
}

func TestSpareKeyPoolConsumedOnCreate(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateSpareKey(1024); err != nil {
		t.Fatalf("CreateSpareKey: %v", err)
	}
	if n := s.NumSpareKeys(); n != 1 {
		t.Fatalf("NumSpareKeys = %d, want 1", n)
	}
	if _, err := s.CreateContact("dave", 1024, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if n := s.NumSpareKeys(); n != 0 {
		t.Errorf("NumSpareKeys after CreateContact = %d, want 0 (spare consumed)", n)
	}
}

func TestDecryptVerifyFindsMatchingContact(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatal(err)
	}
	k, err := s.CreateContact("eve", 1024, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	// overwrite the auto-generated key with a known one so we can encrypt
	// a message for it directly.
	s.mu.Lock()
	s.keysets[k].MyKey = priv
	s.mu.Unlock()

	plaintext := []byte("hello eve")
	ciphertext, err := cryptoenv.Encrypt(plaintext, &priv.PublicKey)
	if err != nil {
		t.Fatal(err)
	}

	result, ok := s.DecryptVerify(ciphertext, nil)
	if !ok {
		t.Fatal("DecryptVerify found no match")
	}
	if result.Contact != "eve" || string(result.Plaintext) != string(plaintext) {
		t.Errorf("DecryptVerify result = %+v", result)
	}
	if result.Verified {
		t.Error("unsigned packet reported as Verified")
	}
}

func TestDecryptVerifySignedChecksSignatureFirst(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	myPriv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatal(err)
	}
	contactPriv, err := rsa.GenerateKey(rand.Reader, 1024) // stands in for the sender
	if err != nil {
		t.Fatal(err)
	}
	k, err := s.CreateContact("frank", 1024, &contactPriv.PublicKey, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.mu.Lock()
	s.keysets[k].MyKey = myPriv
	s.mu.Unlock()

	plaintext := []byte("signed message")
	ciphertext, err := cryptoenv.Encrypt(plaintext, &myPriv.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := cryptoenv.Sign(ciphertext, contactPriv)
	if err != nil {
		t.Fatal(err)
	}

	result, ok := s.DecryptVerify(ciphertext, sig)
	if !ok {
		t.Fatal("DecryptVerify found no match for a correctly signed packet")
	}
	if !result.Verified {
		t.Error("correctly signed packet not reported as Verified")
	}

	if _, ok := s.DecryptVerify(ciphertext, []byte("not a real signature")); ok {
		t.Error("DecryptVerify matched a packet with a bad signature")
	}
}

func TestGenerateAndVerifyBroadcastKey(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	addr, err := s.GenerateBCKey(1024, "shared secret phrase", "en", 4, 2)
	if err != nil {
		t.Fatalf("GenerateBCKey: %v", err)
	}
	own := s.OwnBCKey(addr, "en", 4)
	if own == nil {
		t.Fatal("OwnBCKey did not find the key just generated")
	}
	if !s.VerifyAndSaveBCKey(addr, own.PublicKey, "en", 4, true) {
		t.Error("VerifyAndSaveBCKey rejected the genuine address/key pair")
	}
	other := s.OtherBCKey(addr, "en", 4)
	if other == nil {
		t.Error("VerifyAndSaveBCKey with save=true did not persist to other_bc_keys")
	}
}

func TestReloadPicksUpExternallyAddedContact(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if s.NumContacts() != 0 {
		t.Fatalf("NumContacts = %d, want 0 before any contact exists", s.NumContacts())
	}

	// A second Store instance (standing in for another process) creates
	// a contact in the same directory tree.
	s2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s2.CreateContact("dave", 1024, nil, nil, nil); err != nil {
		t.Fatal(err)
	}

	if s.NumContacts() != 0 {
		t.Fatalf("NumContacts = %d before Reload, want 0 (stale)", s.NumContacts())
	}
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if s.NumContacts() != 1 {
		t.Fatalf("NumContacts = %d after Reload, want 1", s.NumContacts())
	}
}

func TestWatcherReloadsOnExternalChange(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(s)
	if err != nil {
		t.Skipf("fsnotify unavailable in this environment: %v", err)
	}
	defer w.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s2.CreateContact("erin", 1024, nil, nil, nil); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s.NumContacts() == 1 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("Watcher did not reload the store after an external contact was added")
}

func genPub(t *testing.T) *rsa.PublicKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatal(err)
	}
	return &priv.PublicKey
}
