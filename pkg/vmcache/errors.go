package vmcache

import "errors"

var (
	// ErrOutOfRange is returned when a requested byte range falls
	// outside the cache's mapped file.
	ErrOutOfRange = errors.New("vmcache: byte range out of file bounds")

	// ErrClosed names the closed-cache condition. No Cache method
	// returns it: operations after Close are not checked.
	ErrClosed = errors.New("vmcache: cache closed")
)
