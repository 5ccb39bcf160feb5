package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:8090/license", cfg.License.ServerURL)
	assert.Equal(t, "liclease", cfg.License.ProductID)
	assert.Equal(t, "none", cfg.License.AuthScheme)
	assert.Equal(t, 60*time.Minute, cfg.License.RenewalWindow)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Server.MaxSeats)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults pass",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "missing server url",
			mutate: func(c *Config) {
				c.License.ServerURL = ""
			},
			wantErr: true,
		},
		{
			name: "malformed server url",
			mutate: func(c *Config) {
				c.License.ServerURL = "not a url"
			},
			wantErr: true,
		},
		{
			name: "unknown auth scheme",
			mutate: func(c *Config) {
				c.License.AuthScheme = "kerberos"
			},
			wantErr: true,
		},
		{
			name: "basic auth without username",
			mutate: func(c *Config) {
				c.License.AuthScheme = "basic"
			},
			wantErr: true,
		},
		{
			name: "basic auth with username",
			mutate: func(c *Config) {
				c.License.AuthScheme = "basic"
				c.License.Username = "svc"
				c.License.Password = "secret"
			},
			wantErr: false,
		},
		{
			name: "cookie auth without cookie",
			mutate: func(c *Config) {
				c.License.AuthScheme = "cookie"
			},
			wantErr: true,
		},
		{
			name: "port out of range",
			mutate: func(c *Config) {
				c.Server.Port = 70000
			},
			wantErr: true,
		},
		{
			name: "zero seats",
			mutate: func(c *Config) {
				c.Server.MaxSeats = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateForcesJSONFormat(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "text"

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestMergeConfigsEnvPrecedence(t *testing.T) {
	fileCfg := *Default()
	fileCfg.License.ServerURL = "http://from-file:9999/license"
	fileCfg.License.ProductID = "file-product"

	envCfg := Config{}
	envCfg.License.ServerURL = "http://from-env:8090/license"

	merged := mergeConfigs(fileCfg, envCfg)

	assert.Equal(t, "http://from-env:8090/license", merged.License.ServerURL)
	assert.Equal(t, "file-product", merged.License.ProductID)
}
