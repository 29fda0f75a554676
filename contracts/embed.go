// Package contracts embeds the published API and event documents.
package contracts

import _ "embed"

//go:embed openapi.yaml
var OpenAPI []byte

//go:embed asyncapi.yaml
var AsyncAPI []byte
