package page

import (
	"encoding/binary"

	"github.com/nainya/corekv/pkg/common"
)

// Meta reads the meta page's body (page id 0): the page-count
// watermark, the head of the free list, and the B+-tree's root page.
type Meta struct {
	MaxPageCount  uint64
	FirstFreePage common.PageID
	RootPage      common.PageID
}

// ReadMeta interprets p's body as a meta page.
func ReadMeta(p *Page) (Meta, error) {
	if p.Type != TypeMeta {
		return Meta{}, ErrWrongType
	}
	return Meta{
		MaxPageCount:  binary.LittleEndian.Uint64(p.Body[0:8]),
		FirstFreePage: common.PageID(binary.LittleEndian.Uint64(p.Body[8:16])),
		RootPage:      common.PageID(binary.LittleEndian.Uint64(p.Body[16:24])),
	}, nil
}

// WriteMeta overwrites p's body with m. p must be a meta page.
func WriteMeta(p *Page, m Meta) error {
	if p.Type != TypeMeta {
		return ErrWrongType
	}
	binary.LittleEndian.PutUint64(p.Body[0:8], m.MaxPageCount)
	binary.LittleEndian.PutUint64(p.Body[8:16], uint64(m.FirstFreePage))
	binary.LittleEndian.PutUint64(p.Body[16:24], uint64(m.RootPage))
	return nil
}

// ReadFree reads a free page's body: the next link in the singly-linked
// free list.
func ReadFree(p *Page) (common.PageID, error) {
	if p.Type != TypeFree {
		return 0, ErrWrongType
	}
	return common.PageID(binary.LittleEndian.Uint64(p.Body[0:8])), nil
}

// WriteFree overwrites p's body with the free-list link next. p must be
// a free page.
func WriteFree(p *Page, next common.PageID) error {
	if p.Type != TypeFree {
		return ErrWrongType
	}
	binary.LittleEndian.PutUint64(p.Body[0:8], uint64(next))
	return nil
}
