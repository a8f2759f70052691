//go:build tools

// Package presence_relay tracks build tools in go.mod.
// mockgen is run through `go generate ./contract/...`.
package presence_relay

import (
	_ "go.uber.org/mock/mockgen"
)
