// Package licserver implements a self-contained floating-license server
// for development and testing. It issues signed lease tokens over the
// same wire protocol the lease client speaks, with a per-product seat
// table to exercise concurrent-use limits.
package licserver

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"liclease/internal/license"
)

// seat is one occupied concurrent-use slot
type seat struct {
	holder    string
	product   string
	expiresAt time.Time
}

// Issuer signs lease tokens and tracks seat occupancy per product.
// Seats are keyed by holder identity, so a repeat consume from the same
// holder refreshes its lease instead of burning a second seat.
type Issuer struct {
	key      *rsa.PrivateKey
	maxSeats int
	leaseTTL time.Duration

	mu    sync.Mutex
	seats map[string]*seat // key: product + "\x00" + holder

	now func() time.Time
}

// NewIssuer creates an issuer with the given signing key and seat policy
func NewIssuer(key *rsa.PrivateKey, maxSeats int, leaseTTL time.Duration) *Issuer {
	return &Issuer{
		key:      key,
		maxSeats: maxSeats,
		leaseTTL: leaseTTL,
		seats:    make(map[string]*seat),
		now:      time.Now,
	}
}

// GenerateIssuer creates an issuer with a fresh ephemeral signing key
func GenerateIssuer(maxSeats int, leaseTTL time.Duration) (*Issuer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}
	return NewIssuer(key, maxSeats, leaseTTL), nil
}

// LoadIssuer reads a PKCS#1 or PKCS#8 PEM private key from a file
func LoadIssuer(path string, maxSeats int, leaseTTL time.Duration) (*Issuer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading signing key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("signing key %s is not valid PEM", path)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return NewIssuer(key, maxSeats, leaseTTL), nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing signing key %s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing key %s is not an RSA key", path)
	}
	return NewIssuer(key, maxSeats, leaseTTL), nil
}

// PublicKeyPEM returns the verification key clients should be given
func (i *Issuer) PublicKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(&i.key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encoding public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// Consume allocates (or refreshes) a seat and returns a signed token.
// Fails with MAX_LICENSE_COUNT_EXCEEDED when the product is fully
// occupied by other holders.
func (i *Issuer) Consume(product, holder string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	i.reapLocked(now)

	key := seatKey(product, holder)
	if _, held := i.seats[key]; !held {
		if i.occupiedLocked(product) >= i.maxSeats {
			return "", license.NewError(license.KindMaxLicenseCountExceeded, fmt.Sprintf(
				"all %d seats for product %q are in use", i.maxSeats, product))
		}
	}

	i.seats[key] = &seat{holder: holder, product: product, expiresAt: now.Add(i.leaseTTL)}
	return i.mintLocked(product, holder, now)
}

// Renew extends an existing seat. A renew without a live seat falls back
// to seat allocation, so a client whose seat expired server-side can
// still recover as long as capacity remains.
func (i *Issuer) Renew(product, holder string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	i.reapLocked(now)

	key := seatKey(product, holder)
	if _, held := i.seats[key]; !held && i.occupiedLocked(product) >= i.maxSeats {
		return "", license.NewError(license.KindMaxLicenseCountExceeded, fmt.Sprintf(
			"all %d seats for product %q are in use", i.maxSeats, product))
	}

	i.seats[key] = &seat{holder: holder, product: product, expiresAt: now.Add(i.leaseTTL)}
	return i.mintLocked(product, holder, now)
}

// Release frees the holder's seat. Releasing a seat that is not held is
// not an error; release must be safe to repeat.
func (i *Issuer) Release(product, holder string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.seats, seatKey(product, holder))
}

// Occupied reports the number of live seats for a product
func (i *Issuer) Occupied(product string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.reapLocked(i.now())
	return i.occupiedLocked(product)
}

func (i *Issuer) occupiedLocked(product string) int {
	n := 0
	for _, s := range i.seats {
		if s.product == product {
			n++
		}
	}
	return n
}

// reapLocked drops seats whose lease TTL has lapsed without renewal
func (i *Issuer) reapLocked(now time.Time) {
	for key, s := range i.seats {
		if now.After(s.expiresAt) {
			delete(i.seats, key)
		}
	}
}

// mintLocked signs a fresh temporal token for the holder
func (i *Issuer) mintLocked(product, holder string, now time.Time) (string, error) {
	subject := holder
	if subject == "" {
		subject = product
	}

	data := license.LicenseData{
		Subject:       subject,
		GeneratedTime: now.UnixMilli(),
		IsTemporal:    true,
		// Backdate the window start slightly so minor clock skew between
		// server and client does not reject a just-issued token.
		MinValidity: now.Add(-5 * time.Minute).UnixMilli(),
		MaxValidity: now.Add(i.leaseTTL).UnixMilli(),
	}
	data.SetFeatures([]license.Feature{{Key: "product", Value: product}})

	nonce := uuid.NewString()
	digest := sha1.Sum([]byte(data.String() + nonce))
	sig, err := rsa.SignPKCS1v15(rand.Reader, i.key, crypto.SHA1, digest[:])
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	tok := &license.Token{Data: data, Nonce: nonce, Signature: sig}
	return tok.String(), nil
}

func seatKey(product, holder string) string {
	return product + "\x00" + holder
}
