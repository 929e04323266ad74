//go:build !cgo

package lineage

import "errors"

// ErrKuzuUnavailable is returned by Open in builds without cgo.
var ErrKuzuUnavailable = errors.New("lineage: kuzu driver requires a cgo build")

func openKuzuStore(string) (Store, error) {
	return nil, ErrKuzuUnavailable
}
