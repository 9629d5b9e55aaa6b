//go:build tools
// +build tools

// Package tools pins build-time tool dependencies so go.mod tracks their
// versions. The wire CLI regenerates cmd/server/wire_gen.go.
package tools

import (
	_ "github.com/google/wire/cmd/wire"
)

//go:generate go install github.com/google/wire/cmd/wire
