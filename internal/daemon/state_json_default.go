//go:build !sonic

package daemon

import (
	"github.com/goccy/go-json"
)

func stateMarshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

func stateUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
