// Package config loads and validates node configuration from flags and YAML files.
package config
