package btree

import (
	"github.com/nainya/corekv/pkg/common"
	"github.com/nainya/corekv/pkg/page"
	"github.com/nainya/corekv/pkg/pagestore"
	"github.com/nainya/corekv/pkg/txn"
)

// RootSink is how a Tree persists its root page id across a structural
// change (root split growing a level, root collapse shrinking one).
// pkg/database wires the primary table index to pagestore.Manager's
// meta-page root pointer; a secondary index wires one of its own
// catalog rows instead. Set logs and installs the new root id itself;
// it returns only an error, no LSN.
type RootSink interface {
	Get() (common.PageID, error)
	Set(tx *txn.Transaction, newRoot common.PageID) error
}

// metaRootSink implements RootSink against the page manager's meta
// page, for the primary table index.
type metaRootSink struct{ pages *pagestore.Manager }

func (s metaRootSink) Get() (common.PageID, error) { return s.pages.RootPage() }
func (s metaRootSink) Set(tx *txn.Transaction, newRoot common.PageID) error {
	return s.pages.SetRootPage(tx, newRoot)
}

// MetaRootSink returns the RootSink a tree anchored at the page
// manager's meta page should use (the primary table index).
func MetaRootSink(pages *pagestore.Manager) RootSink { return metaRootSink{pages: pages} }

// Tree is one B+-tree instance: the ordered map described in spec.md
// §4.H. Several trees (the primary index and any number of secondary
// indexes) can coexist over the same page pool; each is anchored by
// its own RootSink. An empty tree has root == common.InvalidPageID.
type Tree struct {
	pages *pagestore.Manager
	txns  *txn.Manager
	rootSink RootSink

	root common.PageID
}

// Open attaches to a tree whose root page id is read from sink.
func Open(pages *pagestore.Manager, txns *txn.Manager, sink RootSink) (*Tree, error) {
	root, err := sink.Get()
	if err != nil {
		return nil, err
	}
	return &Tree{pages: pages, txns: txns, rootSink: sink, root: root}, nil
}

// Root returns the tree's current root page id, common.InvalidPageID
// if it has never been written to.
func (t *Tree) Root() common.PageID { return t.root }

// ensureRoot allocates the first (empty) leaf page the first time the
// tree is written to.
func (t *Tree) ensureRoot(tx *txn.Transaction) (common.PageID, error) {
	if t.root != common.InvalidPageID {
		return t.root, nil
	}
	ref, err := t.pages.AllocateNewPage(tx, page.TypeLeaf)
	if err != nil {
		return 0, err
	}
	id := ref.Page().PageID
	ref.Release()
	if err := t.rootSink.Set(tx, id); err != nil {
		return 0, err
	}
	t.root = id
	return t.root, nil
}

// setRoot installs newRoot as the tree's root, both in memory and
// (via rootSink) durably.
func (t *Tree) setRoot(tx *txn.Transaction, newRoot common.PageID) error {
	if err := t.rootSink.Set(tx, newRoot); err != nil {
		return err
	}
	t.root = newRoot
	return nil
}
