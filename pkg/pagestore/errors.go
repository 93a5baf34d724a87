// Package pagestore implements the Page Manager (spec.md component C):
// a thin layer over the Page Pool that allocates and destroys pages
// through the meta page's free list, logging both the allocation event
// and the meta-page bookkeeping it requires.
//
// Grounded on spec.md §4.C directly; the teacher's pkg/storage/freelist.go
// (LNode/unrolled free list) models a different, page-local free list
// shape (an unrolled linked list of ids packed many-per-page) that this
// package's single-link free list (one next pointer per free page, per
// spec.md §3's "free page") doesn't reuse structurally, but the "pop
// head, else bump watermark" allocation discipline is the same idea the
// teacher's FreeList.Get/Add implement.
package pagestore

import "errors"

// ErrInvalidPageType is returned when DestroyPage is asked to destroy
// the meta page itself.
var ErrInvalidPageType = errors.New("pagestore: cannot destroy meta page")
