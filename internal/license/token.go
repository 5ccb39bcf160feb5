package license

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Feature is a single licensed feature entry. Order matters: the feature
// list is part of the signed payload and must serialize in exactly the
// order it was issued.
type Feature struct {
	Key   string
	Value string
}

// LicenseData holds the structured fields of a lease token.
type LicenseData struct {
	Subject       string
	GeneratedTime int64 // epoch milliseconds of issuance
	IsTemporal    bool
	MinValidity   int64 // epoch ms, set only when IsTemporal
	MaxValidity   int64 // epoch ms, set only when IsTemporal
	HostInfo      string // "<interface>:<address>", empty = unbound

	Features []Feature

	// featuresRaw is the feature suffix exactly as received on the wire
	// ("#key:value#key:value..." or empty). Serialization reuses it
	// verbatim: re-deriving it from the Features slice could reorder
	// entries and break the signature.
	featuresRaw string
}

// Token is a parsed lease token: signed license data plus the nonce that
// salts the signature.
type Token struct {
	Data      LicenseData
	Nonce     string
	Signature []byte
}

// ParseToken decodes the wire form base64(data)|nonce|base64(signature).
// The nonce may itself contain '|' characters, so the split uses the
// first and last delimiter rather than strings.Split.
func ParseToken(raw string) (*Token, error) {
	raw = strings.TrimSpace(raw)

	first := strings.Index(raw, "|")
	last := strings.LastIndex(raw, "|")
	if first < 0 || last <= first {
		return nil, NewError(KindIllegalContents, "license token is not in the expected data|nonce|signature form")
	}

	dataBytes, err := base64.StdEncoding.DecodeString(raw[:first])
	if err != nil {
		return nil, WrapError(KindIllegalContents, "license data segment is not valid base64", err)
	}

	signature, err := base64.StdEncoding.DecodeString(raw[last+1:])
	if err != nil {
		return nil, WrapError(KindIllegalContents, "license signature segment is not valid base64", err)
	}

	data, err := parseLicenseData(string(dataBytes))
	if err != nil {
		return nil, err
	}

	return &Token{
		Data:      *data,
		Nonce:     raw[first+1 : last],
		Signature: signature,
	}, nil
}

// parseLicenseData decodes the canonical '#'-separated data string:
// subject#generatedTime#isTemporal[#minValidity#maxValidity]#hostInfo
// followed by zero or more #key:value feature pairs.
func parseLicenseData(s string) (*LicenseData, error) {
	parts := strings.Split(s, "#")
	if len(parts) < 4 {
		return nil, NewError(KindIllegalContents, "license data has too few fields")
	}

	d := &LicenseData{Subject: parts[0]}

	generated, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, WrapError(KindIllegalContents, fmt.Sprintf("generation time %q is not a valid timestamp", parts[1]), err)
	}
	d.GeneratedTime = generated

	temporal, err := strconv.ParseBool(parts[2])
	if err != nil {
		return nil, WrapError(KindIllegalContents, fmt.Sprintf("temporal flag %q is not a valid boolean", parts[2]), err)
	}
	d.IsTemporal = temporal

	idx := 3
	if d.IsTemporal {
		if len(parts) < 6 {
			return nil, NewError(KindIllegalContents, "temporal license data is missing its validity window")
		}
		d.MinValidity, err = strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			return nil, WrapError(KindIllegalContents, fmt.Sprintf("minimum validity %q is not a valid timestamp", parts[3]), err)
		}
		d.MaxValidity, err = strconv.ParseInt(parts[4], 10, 64)
		if err != nil {
			return nil, WrapError(KindIllegalContents, fmt.Sprintf("maximum validity %q is not a valid timestamp", parts[4]), err)
		}
		idx = 5
	}

	if parts[idx] != "null" {
		d.HostInfo = parts[idx]
	}

	featureParts := parts[idx+1:]
	if len(featureParts) > 0 {
		d.Features = make([]Feature, 0, len(featureParts))
		for _, pair := range featureParts {
			key, value, found := strings.Cut(pair, ":")
			if !found {
				return nil, NewError(KindIllegalContents, fmt.Sprintf("feature entry %q is not a key:value pair", pair))
			}
			d.Features = append(d.Features, Feature{Key: key, Value: value})
		}
		d.featuresRaw = "#" + strings.Join(featureParts, "#")
	}

	return d, nil
}

// String renders the canonical data string, the exact inverse of
// parseLicenseData. This is the byte sequence the signature covers
// (salted with the nonce), so every field added here must be parsed
// back in the same position.
func (d *LicenseData) String() string {
	var b strings.Builder
	b.WriteString(d.Subject)
	b.WriteByte('#')
	b.WriteString(strconv.FormatInt(d.GeneratedTime, 10))
	b.WriteByte('#')
	b.WriteString(strconv.FormatBool(d.IsTemporal))
	if d.IsTemporal {
		b.WriteByte('#')
		b.WriteString(strconv.FormatInt(d.MinValidity, 10))
		b.WriteByte('#')
		b.WriteString(strconv.FormatInt(d.MaxValidity, 10))
	}
	b.WriteByte('#')
	if d.HostInfo == "" {
		b.WriteString("null")
	} else {
		b.WriteString(d.HostInfo)
	}
	b.WriteString(d.featuresRaw)
	return b.String()
}

// SetFeatures replaces the feature list and rebuilds the serialized
// suffix. Intended for token issuers; parsed tokens keep the suffix they
// arrived with.
func (d *LicenseData) SetFeatures(features []Feature) {
	d.Features = features
	if len(features) == 0 {
		d.featuresRaw = ""
		return
	}
	var b strings.Builder
	for _, f := range features {
		b.WriteByte('#')
		b.WriteString(f.Key)
		b.WriteByte(':')
		b.WriteString(f.Value)
	}
	d.featuresRaw = b.String()
}

// Feature returns the value for a feature key and whether it is present
func (d *LicenseData) Feature(key string) (string, bool) {
	for _, f := range d.Features {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// RequireFeature fails with ILLEGAL_FEATURE when the license does not
// cover the given feature key.
func (d *LicenseData) RequireFeature(key string) (string, error) {
	value, ok := d.Feature(key)
	if !ok {
		return "", NewError(KindIllegalFeature, fmt.Sprintf("license for %q does not include feature %q", d.Subject, key))
	}
	return value, nil
}

// String renders the full wire form base64(data)|nonce|base64(signature)
func (t *Token) String() string {
	return base64.StdEncoding.EncodeToString([]byte(t.Data.String())) +
		"|" + t.Nonce +
		"|" + base64.StdEncoding.EncodeToString(t.Signature)
}

// IsExpired reports whether now falls outside the validity window.
// Non-temporal tokens never expire. Both bounds are inclusive: a token
// is still valid at the exact MaxValidity instant.
func (t *Token) IsExpired(now time.Time) bool {
	if !t.Data.IsTemporal {
		return false
	}
	ms := now.UnixMilli()
	return ms < t.Data.MinValidity || ms > t.Data.MaxValidity
}

// NeedsRenewal reports whether the token will expire within window, or
// is not yet inside its validity range. Non-temporal tokens never need
// renewal.
func (t *Token) NeedsRenewal(now time.Time, window time.Duration) bool {
	if !t.Data.IsTemporal {
		return false
	}
	ms := now.UnixMilli()
	return ms < t.Data.MinValidity || t.Data.MaxValidity < ms+window.Milliseconds()
}
