// Package config loads and validates the TOML configuration for hopper.
package config
