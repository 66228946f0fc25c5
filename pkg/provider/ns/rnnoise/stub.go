//go:build !rnnoise

package rnnoise

import "github.com/MrWong99/hush/pkg/provider/ns"

// New always fails with [ErrUnavailable] in builds without the rnnoise tag.
func New() (ns.Engine, error) {
	return nil, ErrUnavailable
}
