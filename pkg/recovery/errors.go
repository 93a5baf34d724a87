package recovery

import "errors"

// ErrPageNeverAllocated is returned by RecoverPage when the WAL holds no
// system_alloc_page record for the requested id (and it isn't the meta
// page either) — there is nothing to rebuild from.
var ErrPageNeverAllocated = errors.New("recovery: page never allocated, cannot single-page-recover")
