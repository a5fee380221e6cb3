// Package stamp implements the cryptographic side of the compliance engine:
// invoice hashing, EC key material, CSR generation, hash signing and QR
// payload assembly.
package stamp

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
)

// Curve names accepted by the engine. The regulator's required curve is
// deployment configuration, not a compile-time constant.
const (
	CurveP256 = "P-256"
	CurveP384 = "P-384"
	CurveP521 = "P-521"

	DefaultCurve = CurveP256
)

// PEM block types for key material
const (
	pemTypeECPrivateKey = "EC PRIVATE KEY"
	pemTypePublicKey    = "PUBLIC KEY"
	pemTypeCSR          = "CERTIFICATE REQUEST"
)

// Hash returns the base64-encoded SHA-256 digest of data
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// InitialHash is the previous-invoice-hash seeding every new chain: hash("0")
func InitialHash() string {
	return Hash([]byte("0"))
}

// CurveByName resolves a named curve. Empty selects the default.
func CurveByName(name string) (elliptic.Curve, error) {
	switch name {
	case "", DefaultCurve:
		return elliptic.P256(), nil
	case CurveP384:
		return elliptic.P384(), nil
	case CurveP521:
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("stamp: unsupported curve %q", name)
	}
}

// GenerateKeyPair creates an EC keypair on the named curve and returns both
// halves PEM-encoded.
func GenerateKeyPair(curveName string) (privPEM, pubPEM []byte, err error) {
	curve, err := CurveByName(curveName)
	if err != nil {
		return nil, nil, err
	}

	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("stamp: generate key: %w", err)
	}

	privDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("stamp: marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("stamp: marshal public key: %w", err)
	}

	privPEM = pem.EncodeToMemory(&pem.Block{Type: pemTypeECPrivateKey, Bytes: privDER})
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: pemTypePublicKey, Bytes: pubDER})
	return privPEM, pubPEM, nil
}

// ParsePrivateKey decodes a PEM EC private key (SEC1 or PKCS#8)
func ParsePrivateKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("stamp: no PEM block in key material")
	}

	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("stamp: parse private key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("stamp: private key is not EC")
	}
	return key, nil
}

// Sign computes an ECDSA signature over the SHA-256 digest of data and
// returns it base64-encoded. data is usually an invoice hash.
func Sign(data []byte, privPEM []byte) (string, error) {
	key, err := ParsePrivateKey(privPEM)
	if err != nil {
		return "", err
	}

	digest := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return "", fmt.Errorf("stamp: sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a base64 signature produced by Sign against the signer's
// PEM public key. Used by tests and the chain verification tooling.
func Verify(data []byte, signatureB64 string, pubPEM []byte) (bool, error) {
	block, _ := pem.Decode(pubPEM)
	if block == nil {
		return false, fmt.Errorf("stamp: no PEM block in public key")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return false, fmt.Errorf("stamp: parse public key: %w", err)
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return false, fmt.Errorf("stamp: public key is not EC")
	}

	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false, fmt.Errorf("stamp: decode signature: %w", err)
	}

	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(pub, digest[:], sig), nil
}
