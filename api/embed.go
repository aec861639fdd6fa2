// Package api embeds the OpenAPI document describing the AremaTV HTTP API.
package api

import _ "embed"

// OpenAPISpec is served at /api/docs/openapi.yaml and drives the docs page.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
