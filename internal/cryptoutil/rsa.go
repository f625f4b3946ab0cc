// Package cryptoutil provides the RSA key handling and signature
// primitives the validator uses to check archive authenticity.
package cryptoutil

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
)

// ParsePublicKeyFromBase64 parses a DER/PKIX RSA public key encoded as a
// base64 string, the format a bundle manifest stores its verification key
// in.
func ParsePublicKeyFromBase64(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: decode base64 public key: %w", err)
	}
	return parsePKIXPublicKey(der)
}

// ParsePublicKeyFromPEM parses a PEM-encoded RSA public key.
func ParsePublicKeyFromPEM(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("cryptoutil: no PEM block found")
	}
	return parsePKIXPublicKey(block.Bytes)
}

func parsePKIXPublicKey(der []byte) (*rsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("cryptoutil: key is not RSA")
	}
	return rsaPub, nil
}

// PublicKeyToBase64 renders a public key the way ParsePublicKeyFromBase64
// expects to read it back; used by tests and by bundle metadata generation.
func PublicKeyToBase64(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("cryptoutil: marshal public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// SignDetached produces the detached, printable signature format the
// updater attaches to a downloaded archive: an RSA-PSS signature over the
// SHA-256 digest of the archive bytes, base64 encoded.
func SignDetached(archive []byte, priv *rsa.PrivateKey) (string, error) {
	hashed := sha256.Sum256(archive)
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, hashed[:], nil)
	if err != nil {
		return "", fmt.Errorf("cryptoutil: sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyDetached checks a detached signature (as produced by SignDetached)
// against the archive bytes and a candidate public key. Returns nil iff the
// signature is valid.
func VerifyDetached(archive []byte, signatureBase64 string, pub *rsa.PublicKey) error {
	sig, err := base64.StdEncoding.DecodeString(signatureBase64)
	if err != nil {
		return fmt.Errorf("cryptoutil: decode signature: %w", err)
	}
	hashed := sha256.Sum256(archive)
	if err := rsa.VerifyPSS(pub, crypto.SHA256, hashed[:], sig, nil); err != nil {
		return fmt.Errorf("cryptoutil: signature verification failed: %w", err)
	}
	return nil
}
