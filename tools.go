//go:build tools

// Package tools pins build-time dependencies that no package imports:
// gobind for `gomobile bind ./mobile` and mockgen for transport/mock.
package tools

import (
	_ "go.uber.org/mock/mockgen"
	_ "golang.org/x/mobile/bind"
)
