// Package config provides centralized configuration management for the
// liclease client and the development license server.
//
// Configuration is loaded from environment variables with the LICLEASE
// prefix, merged with an optional config.yaml file (environment takes
// precedence), and validated before use.
package config
