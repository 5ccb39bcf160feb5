package license

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"errors"
)

// defaultPublicKeyPEM is the production license public key. Tokens are
// signed by the license server with the matching private key; the client
// only ever verifies. Deployments against a different server (e.g. the
// development licd) inject their own key via NewVerifierFromPEM.
const defaultPublicKeyPEM = `-----BEGIN PUBLIC KEY-----
MIIBIjANBgkqhkiG9w0BAQEFAAOCAQ8AMIIBCgKCAQEA4lSu6ugEAFWiP1837FVn
f0sgEh5gxO8B/NOFjnImlV2DX3dqK8M/U22+vfgvUZuPw4BWPPdfi9PDq1lTPvea
5PypforE1Mlbj3q8MHu2ZSdXT3pIIDUqM4y1spq3jxqSTa5LsvxHb9R5GGvYgHLr
vmgMsB3mOfpX9G6MnBLql9S/fpMpra4s0H+pJFZKVWo0SoifTBqhvenTbRGJTCU1
iY1gdVQYYRDCqOM8s3vvOiqb6N1sdFF2C/+l0W9B8qQ/bK+CITR9vpgHX3cwBQfW
x6e4Ylb704OaGi4aqAKUU1pVhy7lx2w7/eTLJ04LE91Tl/D5Tj/fBVdW6Dm//exq
CQIDAQAB
-----END PUBLIC KEY-----`

// Verifier validates token signatures against the license public key.
// The signing scheme is RSA PKCS#1 v1.5 with a SHA-1 digest; it is
// fixed by the server protocol and cannot change without invalidating
// every token in the field.
type Verifier struct {
	key *rsa.PublicKey
}

// NewVerifier constructs a Verifier from the embedded public key
func NewVerifier() (*Verifier, error) {
	return NewVerifierFromPEM([]byte(defaultPublicKeyPEM))
}

// NewVerifierFromPEM constructs a Verifier from a PEM-encoded RSA
// public key. Fails with BAD_KEY when the key cannot be loaded.
func NewVerifierFromPEM(pemData []byte) (*Verifier, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, NewError(KindBadKey, "license public key is not valid PEM")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, WrapError(KindBadKey, "license public key cannot be parsed", err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, NewError(KindBadKey, "license public key is not an RSA key")
	}

	return &Verifier{key: rsaPub}, nil
}

// Verify checks the token signature over the canonical data string
// concatenated with the nonce. On success it returns the verified
// license data; a cryptographic mismatch fails with BAD_INTEGRITY.
func (v *Verifier) Verify(t *Token) (*LicenseData, error) {
	payload := t.Data.String() + t.Nonce
	digest := sha1.Sum([]byte(payload))

	if err := rsa.VerifyPKCS1v15(v.key, crypto.SHA1, digest[:], t.Signature); err != nil {
		if errors.Is(err, rsa.ErrVerification) {
			return nil, NewError(KindBadIntegrity, "")
		}
		return nil, WrapError(KindGenericError, "license signature verification failed", err)
	}

	return &t.Data, nil
}

// DefaultPublicKeyPEM exposes the embedded key, mainly for diagnostics
func DefaultPublicKeyPEM() []byte {
	return []byte(defaultPublicKeyPEM)
}
