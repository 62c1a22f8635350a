//go:build sonic

package daemon

import (
	"github.com/bytedance/sonic"
)

func stateMarshal(v any) ([]byte, error) {
	return sonic.ConfigStd.MarshalIndent(v, "", "  ")
}

func stateUnmarshal(data []byte, v any) error {
	return sonic.ConfigStd.Unmarshal(data, v)
}
