//go:build !jsonv2

package output

import "encoding/json"

// Report files go through these so the experimental
// encoding/json/v2 can be swapped in with -tags jsonv2.

func jsonMarshalIndent(value any, prefix, indent string) ([]byte, error) {
	return json.MarshalIndent(value, prefix, indent)
}

func jsonUnmarshal(data []byte, value any) error {
	return json.Unmarshal(data, value)
}
