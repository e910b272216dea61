//go:build jsonv2

package output

import (
	"encoding/json/jsontext"
	jsonv2 "encoding/json/v2"
)

func jsonMarshalIndent(value any, prefix, indent string) ([]byte, error) {
	return jsonv2.Marshal(value,
		jsonv2.Deterministic(true),
		jsontext.WithIndent(indent),
		jsontext.WithIndentPrefix(prefix),
	)
}

// v1 accepted duplicate object names; hand-edited reports may rely on it.
func jsonUnmarshal(data []byte, value any) error {
	return jsonv2.Unmarshal(data, value, jsontext.AllowDuplicateNames(true))
}
