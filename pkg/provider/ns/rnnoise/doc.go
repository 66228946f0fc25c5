// Package rnnoise binds librnnoise as an ns.Engine.
//
// The binding is compiled only with the rnnoise build tag and requires the
// library and its header to be installed (pkg-config name "rnnoise"):
//
//	go build -tags rnnoise ./...
//
// Without the tag, [New] returns [ErrUnavailable] so callers can fall back to
// another engine.
package rnnoise

import "errors"

// ErrUnavailable is returned by [New] when the binary was built without the
// rnnoise build tag.
var ErrUnavailable = errors.New("rnnoise: not compiled in (build with -tags rnnoise)")
