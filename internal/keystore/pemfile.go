package keystore

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/allnet-project/allnet/internal/wire"
)

func writePrivateKeyPEM(path string, priv *rsa.PrivateKey) error {
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0600)
}

func readPrivateKeyPEM(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("keystore: %s is not PEM", path)
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func writePublicKeyPEM(path string, pub *rsa.PublicKey) error {
	block := &pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(pub)}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0600)
}

func readPublicKeyPEM(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("keystore: %s is not PEM", path)
	}
	return x509.ParsePKCS1PublicKey(block.Bytes)
}

// writeAddressFile/readAddressFile implement keys.c's "local"/"remote"
// file format: "<nbits> <hex>:<hex>:...\n".
func writeAddressFile(path string, addr wire.Address) error {
	nbytes := (addr.Bits + 7) / 8
	var b strings.Builder
	fmt.Fprintf(&b, "%d", addr.Bits)
	for i := 0; i < nbytes && i < len(addr.Bytes); i++ {
		if i == 0 {
			fmt.Fprintf(&b, " %02x", addr.Bytes[i])
		} else {
			fmt.Fprintf(&b, ":%02x", addr.Bytes[i])
		}
	}
	b.WriteByte('\n')
	return os.WriteFile(path, []byte(b.String()), 0600)
}

func readAddressFile(path string) wire.Address {
	data, err := os.ReadFile(path)
	if err != nil {
		return wire.Address{}
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return wire.Address{}
	}
	nbits, err := strconv.Atoi(fields[0])
	if err != nil || nbits <= 0 {
		return wire.Address{}
	}
	var raw []byte
	if len(fields) > 1 {
		for _, tok := range strings.Split(fields[1], ":") {
			v, err := strconv.ParseUint(tok, 16, 8)
			if err != nil {
				break
			}
			raw = append(raw, byte(v))
		}
	}
	return wire.NewAddress(raw, nbits)
}
