// Package config provides YAML-based configuration loading and validation
// for the live transcription relay. Secrets may be supplied inline or via
// environment variables named in the config file.
package config
