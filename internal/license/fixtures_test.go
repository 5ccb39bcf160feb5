package license

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testSigner issues tokens signed with a throwaway RSA key, standing in
// for the license server in tests.
type testSigner struct {
	key *rsa.PrivateKey
}

func newTestSigner(t *testing.T) *testSigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "generating test RSA key")
	return &testSigner{key: key}
}

func (s *testSigner) publicPEM(t *testing.T) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&s.key.PublicKey)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

func (s *testSigner) verifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifierFromPEM(s.publicPEM(t))
	require.NoError(t, err)
	return v
}

// sign produces a token whose signature covers dataString+nonce
func (s *testSigner) sign(t *testing.T, data LicenseData, nonce string) *Token {
	t.Helper()
	digest := sha1.Sum([]byte(data.String() + nonce))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA1, digest[:])
	require.NoError(t, err, "signing test token")
	return &Token{Data: data, Nonce: nonce, Signature: sig}
}

// mint returns the wire form of a freshly signed token
func (s *testSigner) mint(t *testing.T, data LicenseData, nonce string) string {
	t.Helper()
	return s.sign(t, data, nonce).String()
}

// temporalData builds license data valid from an hour ago until
// now+validFor.
func temporalData(now time.Time, validFor time.Duration) LicenseData {
	return LicenseData{
		Subject:       "test-user",
		GeneratedTime: now.Add(-time.Hour).UnixMilli(),
		IsTemporal:    true,
		MinValidity:   now.Add(-time.Hour).UnixMilli(),
		MaxValidity:   now.Add(validFor).UnixMilli(),
	}
}

// perpetualData builds non-temporal license data
func perpetualData() LicenseData {
	return LicenseData{
		Subject:       "test-user",
		GeneratedTime: time.Now().Add(-24 * time.Hour).UnixMilli(),
		IsTemporal:    false,
	}
}
