// Package schemas provides access to embedded JSON schemas.
package schemas

import (
	_ "embed"
)

// The flow JSON Schema defines the structure of flow documents and is used
// for early validation and editor tooling.
//
//go:embed flow.schema.json
var flowSchema []byte

// GetFlowSchema returns the embedded flow JSON Schema as raw bytes.
func GetFlowSchema() []byte {
	return flowSchema
}

// GetFlowSchemaString returns the embedded flow JSON Schema as a string.
func GetFlowSchemaString() string {
	return string(flowSchema)
}
