// Package testutil provides signing-key and license-token fixtures for
// tests. Everything here generates throwaway keys at runtime; no real
// license material is embedded.
package testutil

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"liclease/internal/license"
)

// SigningKey wraps a throwaway RSA keypair in the roles the license
// protocol uses: the private half signs tokens (the server side), the
// public half verifies them (the client side).
type SigningKey struct {
	Private *rsa.PrivateKey
}

// NewSigningKey generates a fresh 2048-bit RSA keypair
func NewSigningKey(t *testing.T) *SigningKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "generating test signing key")
	return &SigningKey{Private: key}
}

// PublicPEM returns the PKIX PEM encoding of the public half
func (k *SigningKey) PublicPEM(t *testing.T) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&k.Private.PublicKey)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

// PrivatePEM returns the PKCS#1 PEM encoding of the private half
func (k *SigningKey) PrivatePEM() []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(k.Private),
	})
}

// WriteKeyFiles writes both halves under a temp directory and returns
// their paths, for tests that exercise file-based key configuration.
func (k *SigningKey) WriteKeyFiles(t *testing.T) (privatePath, publicPath string) {
	t.Helper()
	dir := t.TempDir()
	privatePath = filepath.Join(dir, "license.key")
	publicPath = filepath.Join(dir, "license.pub")
	require.NoError(t, os.WriteFile(privatePath, k.PrivatePEM(), 0o600))
	require.NoError(t, os.WriteFile(publicPath, k.PublicPEM(t), 0o644))
	return privatePath, publicPath
}

// Verifier builds a license verifier for the public half
func (k *SigningKey) Verifier(t *testing.T) *license.Verifier {
	t.Helper()
	v, err := license.NewVerifierFromPEM(k.PublicPEM(t))
	require.NoError(t, err)
	return v
}

// MintToken signs license data with the key and returns the wire form
func (k *SigningKey) MintToken(t *testing.T, data license.LicenseData, nonce string) string {
	t.Helper()
	digest := sha1.Sum([]byte(data.String() + nonce))
	sig, err := rsa.SignPKCS1v15(rand.Reader, k.Private, crypto.SHA1, digest[:])
	require.NoError(t, err, "signing test token")
	tok := &license.Token{Data: data, Nonce: nonce, Signature: sig}
	return tok.String()
}

// TemporalLicense builds license data valid from an hour ago until
// now+validFor, for the given subject.
func TemporalLicense(subject string, now time.Time, validFor time.Duration) license.LicenseData {
	return license.LicenseData{
		Subject:       subject,
		GeneratedTime: now.Add(-time.Hour).UnixMilli(),
		IsTemporal:    true,
		MinValidity:   now.Add(-time.Hour).UnixMilli(),
		MaxValidity:   now.Add(validFor).UnixMilli(),
	}
}
