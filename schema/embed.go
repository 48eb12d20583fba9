package schema

import _ "embed"

// PreforkV1Schema is the JSON schema for prefork.yaml.
//
//go:embed prefork.v1.json
var PreforkV1Schema []byte
