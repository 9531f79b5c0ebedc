//go:generate go run ../build/gen-config-schema.go schema.json

// Package config embeds the JSON schema installer configuration files are
// validated against.
package config

import (
	_ "embed"
)

//go:embed "schema.json"
var schema []byte

// Schema returns the JSON schema of the configuration file.
func Schema() []byte {
	return schema
}
