package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liclease/internal/config"
	"liclease/internal/shared/testutil"
)

func TestBuildIssuerEphemeral(t *testing.T) {
	issuer, err := buildIssuer(config.ServerConfig{MaxSeats: 3, LeaseTTL: time.Hour})
	require.NoError(t, err)

	pubPEM, err := issuer.PublicKeyPEM()
	require.NoError(t, err)
	assert.Contains(t, string(pubPEM), "BEGIN PUBLIC KEY")
}

func TestBuildIssuerFromKeyFile(t *testing.T) {
	key := testutil.NewSigningKey(t)
	privPath, _ := key.WriteKeyFiles(t)

	issuer, err := buildIssuer(config.ServerConfig{
		MaxSeats:       3,
		LeaseTTL:       time.Hour,
		PrivateKeyFile: privPath,
	})
	require.NoError(t, err)

	// The loaded issuer signs with the key from disk.
	filePEM := key.PublicPEM(t)
	issuerPEM, err := issuer.PublicKeyPEM()
	require.NoError(t, err)
	assert.Equal(t, string(filePEM), string(issuerPEM))
}

func TestBuildIssuerMissingKeyFile(t *testing.T) {
	_, err := buildIssuer(config.ServerConfig{PrivateKeyFile: "/nonexistent/license.key"})
	require.Error(t, err)
}
