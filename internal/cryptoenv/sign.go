package cryptoenv

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha512"
	"fmt"
)

// maxHashSize is the largest truncated SHA-512 digest this package will
// sign: 64 bytes, the full digest (§4.5: "truncated to min(R-42, 64)").
const maxHashSize = sha512.Size

// signHashSize returns min(R-42, 64) for priv's public modulus.
func signHashSize(size int) int {
	h := size - oaepOverhead
	if h > maxHashSize {
		h = maxHashSize
	}
	if h < 0 {
		h = 0
	}
	return h
}

// Sign produces an RSA-PKCS1v15 signature over message, hashed with
// SHA-512 and truncated to min(R-42, 64) bytes (§4.5).
func Sign(message []byte, priv *rsa.PrivateKey) ([]byte, error) {
	digest := truncatedHash(message, priv.Size())
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.Hash(0), digest)
	if err != nil {
		return nil, fmt.Errorf("cryptoenv: sign: %w", err)
	}
	return sig, nil
}

// Verify reports whether sig is a valid signature of message under pub,
// using the same truncated-SHA-512 scheme as Sign.
func Verify(message, sig []byte, pub *rsa.PublicKey) bool {
	digest := truncatedHash(message, pub.Size())
	return rsa.VerifyPKCS1v15(pub, crypto.Hash(0), digest, sig) == nil
}

func truncatedHash(message []byte, rsaSize int) []byte {
	full := sha512.Sum512(message)
	n := signHashSize(rsaSize)
	return full[:n]
}
