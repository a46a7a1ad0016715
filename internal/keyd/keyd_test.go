package keyd

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/allnet-project/allnet/internal/wire"
	"github.com/robfig/cron/v3"
)

func addr(b byte, bits int) wire.Address {
	return wire.NewAddress([]byte{b, 0, 0, 0, 0, 0, 0, 0}, bits)
}

func mustKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	return k
}

type fakeLookup struct {
	identities []OwnIdentity
}

func (f fakeLookup) Matching(destination wire.Address, dstBits int) []OwnIdentity {
	var out []OwnIdentity
	for _, id := range f.identities {
		if wire.Matches(id.Address.Bytes[:], id.Address.Bits, destination.Bytes[:], dstBits) >= min(id.Address.Bits, dstBits) {
			out = append(out, id)
		}
	}
	return out
}

func TestResponderRepliesWithMatchingIdentity(t *testing.T) {
	key := mustKey(t)
	lookup := fakeLookup{identities: []OwnIdentity{{Address: addr(0xaa, 16), Pub: &key.PublicKey}}}
	r := NewResponder(lookup)

	req := &wire.Header{
		Hops: 1, SrcNbits: 16, DstNbits: 16,
		Destination: addr(0xaa, 16).Bytes, Source: addr(0x01, 16).Bytes,
	}
	body := &wire.KeyReqBody{Nonce: wire.NewID()}

	replies := r.HandleRequest(req, body)
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1", len(replies))
	}
	reply := replies[0]
	if reply.Header.MessageType != wire.TypeKeyXchg {
		t.Errorf("MessageType = %v, want TypeKeyXchg", reply.Header.MessageType)
	}
	if reply.Body.Nonce != body.Nonce {
		t.Error("reply must echo the request's nonce")
	}
	block, _ := pem.Decode(reply.Body.KeyPEM)
	if block == nil {
		t.Fatal("KeyPEM did not decode as PEM")
	}
	gotPub, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		t.Fatalf("ParsePKCS1PublicKey: %v", err)
	}
	if gotPub.E != key.PublicKey.E || gotPub.N.Cmp(key.PublicKey.N) != 0 {
		t.Error("replied public key does not match the matching identity's key")
	}
}

func TestResponderNoMatchNoReply(t *testing.T) {
	key := mustKey(t)
	lookup := fakeLookup{identities: []OwnIdentity{{Address: addr(0xaa, 16), Pub: &key.PublicKey}}}
	r := NewResponder(lookup)

	req := &wire.Header{DstNbits: 16, Destination: addr(0xbb, 16).Bytes}
	body := &wire.KeyReqBody{Nonce: wire.NewID()}

	if replies := r.HandleRequest(req, body); replies != nil {
		t.Errorf("expected no replies for a non-matching destination, got %d", len(replies))
	}
}

type fakePool struct {
	spares  int
	created int
}

func (p *fakePool) NumSpareKeys() int { return p.spares }
func (p *fakePool) CreateSpareKey(keyBits int) (int, error) {
	p.created++
	p.spares++
	return p.spares, nil
}

func TestGeneratorCreatesKeyBelowTarget(t *testing.T) {
	pool := &fakePool{spares: 0}
	c := cron.New()
	g := NewGenerator(c, pool, 512)
	g.runCycle()
	if pool.created != 1 {
		t.Errorf("created = %d, want 1", pool.created)
	}
}

func TestGeneratorSkipsWhenPoolFull(t *testing.T) {
	pool := &fakePool{spares: SpareKeyTarget}
	c := cron.New()
	g := NewGenerator(c, pool, 512)
	g.runCycle()
	if pool.created != 0 {
		t.Errorf("created = %d, want 0 once the pool is at target", pool.created)
	}
}

func TestGeneratorReschedulesWithFloor(t *testing.T) {
	pool := &fakePool{spares: SpareKeyTarget}
	c := cron.New()
	g := NewGenerator(c, pool, 512)
	g.runCycle()
	if g.next < MinGenerationInterval {
		t.Errorf("next = %v, must never fall below MinGenerationInterval (%v)", g.next, MinGenerationInterval)
	}
}
