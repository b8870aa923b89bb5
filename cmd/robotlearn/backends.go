//go:build !noxla

package main

// Include the XLA backend, for GPU support. Build with -tags=noxla to use only the pure Go backend.

import (
	_ "github.com/gomlx/gomlx/backends/xla"
)
