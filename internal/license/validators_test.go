package license

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTimeRange(t *testing.T) {
	now := time.UnixMilli(1700000000000)

	tests := []struct {
		name    string
		data    LicenseData
		wantErr bool
	}{
		{
			name:    "non-temporal always passes",
			data:    LicenseData{IsTemporal: false},
			wantErr: false,
		},
		{
			name: "inside window",
			data: LicenseData{
				IsTemporal:  true,
				MinValidity: now.Add(-time.Hour).UnixMilli(),
				MaxValidity: now.Add(time.Hour).UnixMilli(),
			},
			wantErr: false,
		},
		{
			name: "at both bounds",
			data: LicenseData{
				IsTemporal:  true,
				MinValidity: now.UnixMilli(),
				MaxValidity: now.UnixMilli(),
			},
			wantErr: false,
		},
		{
			name: "not yet valid",
			data: LicenseData{
				IsTemporal:  true,
				MinValidity: now.Add(time.Minute).UnixMilli(),
				MaxValidity: now.Add(time.Hour).UnixMilli(),
			},
			wantErr: true,
		},
		{
			name: "expired",
			data: LicenseData{
				IsTemporal:  true,
				MinValidity: now.Add(-2 * time.Hour).UnixMilli(),
				MaxValidity: now.Add(-time.Minute).UnixMilli(),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTimeRange(&tt.data, now)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsKind(err, KindIllegalTimeRange), "want ILLEGAL_TIME_RANGE, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckTimeRangeMessagesDiffer(t *testing.T) {
	now := time.UnixMilli(1700000000000)

	early := LicenseData{Subject: "a", IsTemporal: true,
		MinValidity: now.Add(time.Hour).UnixMilli(), MaxValidity: now.Add(2 * time.Hour).UnixMilli()}
	late := LicenseData{Subject: "a", IsTemporal: true,
		MinValidity: now.Add(-2 * time.Hour).UnixMilli(), MaxValidity: now.Add(-time.Hour).UnixMilli()}

	errEarly := CheckTimeRange(&early, now)
	errLate := CheckTimeRange(&late, now)
	require.Error(t, errEarly)
	require.Error(t, errLate)
	assert.Contains(t, errEarly.Error(), "not valid yet")
	assert.Contains(t, errLate.Error(), "expired at")
}

func TestCheckHost(t *testing.T) {
	lookup := func(addrs map[string][]string) InterfaceLookup {
		return func(name string) ([]string, error) {
			got, ok := addrs[name]
			if !ok {
				return nil, errors.New("no such interface")
			}
			return got, nil
		}
	}

	tests := []struct {
		name    string
		data    LicenseData
		lookup  InterfaceLookup
		wantErr bool
	}{
		{
			name:    "unbound token passes without lookup",
			data:    LicenseData{HostInfo: ""},
			lookup:  lookup(nil),
			wantErr: false,
		},
		{
			name:    "address matches",
			data:    LicenseData{HostInfo: "eth0:192.168.1.10"},
			lookup:  lookup(map[string][]string{"eth0": {"10.0.0.1", "192.168.1.10"}}),
			wantErr: false,
		},
		{
			name:    "interface missing",
			data:    LicenseData{HostInfo: "eth7:192.168.1.10"},
			lookup:  lookup(map[string][]string{"eth0": {"192.168.1.10"}}),
			wantErr: true,
		},
		{
			name:    "address not on interface",
			data:    LicenseData{HostInfo: "eth0:192.168.1.99"},
			lookup:  lookup(map[string][]string{"eth0": {"192.168.1.10"}}),
			wantErr: true,
		},
		{
			name:    "malformed binding",
			data:    LicenseData{HostInfo: "nocolonhere"},
			lookup:  lookup(nil),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckHost(&tt.data, tt.lookup)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsKind(err, KindInvalidMachine), "want INVALID_MACHINE, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckHostIPv6Binding(t *testing.T) {
	// IPv6 addresses contain colons; only the first one separates the
	// interface name from the address.
	data := LicenseData{HostInfo: "eth0:fe80::1"}
	err := CheckHost(&data, func(string) ([]string, error) {
		return []string{"fe80::1"}, nil
	})
	assert.NoError(t, err)
}
