package cache

import (
	"encoding/binary"

	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/vnykmshr/obmemo-go/internal/entry"
)

// table maps key ids to entries on a persistent radix tree
type table struct {
	tree *iradix.Tree
}

func newTable() table {
	return table{tree: iradix.New()}
}

func seedTable(entries []*entry.Entry) table {
	txn := iradix.New().Txn()
	for _, e := range entries {
		txn.Insert([]byte(e.Key), e)
	}
	return table{tree: txn.Commit()}
}

func (t table) get(key string) (*entry.Entry, bool) {
	v, ok := t.tree.Get([]byte(key))
	if !ok {
		return nil, false
	}
	return v.(*entry.Entry), true
}

func (t table) put(e *entry.Entry) table {
	tree, _, _ := t.tree.Insert([]byte(e.Key), e)
	return table{tree: tree}
}

func (t table) remove(key string) (table, *entry.Entry, bool) {
	tree, old, ok := t.tree.Delete([]byte(key))
	if !ok {
		return t, nil, false
	}
	return table{tree: tree}, old.(*entry.Entry), true
}

// mustRemove removes a key that bookkeeping claims is present
func (t table) mustRemove(key string, policy Policy) (table, *entry.Entry) {
	next, old, ok := t.remove(key)
	if !ok {
		panic("cache: " + string(policy) + " bookkeeping references missing key " + key)
	}
	return next, old
}

func (t table) len() int {
	return t.tree.Len()
}

func (t table) walk(fn func(e *entry.Entry) bool) {
	t.tree.Root().Walk(func(_ []byte, v interface{}) bool {
		return !fn(v.(*entry.Entry))
	})
}

// marks maps key ids to a number (sequence, tick or usage count)
type marks struct {
	tree *iradix.Tree
}

func newMarks() marks {
	return marks{tree: iradix.New()}
}

func (m marks) get(key string) (uint64, bool) {
	v, ok := m.tree.Get([]byte(key))
	if !ok {
		return 0, false
	}
	return v.(uint64), true
}

func (m marks) set(key string, n uint64) marks {
	tree, _, _ := m.tree.Insert([]byte(key), n)
	return marks{tree: tree}
}

func (m marks) remove(key string) marks {
	tree, _, _ := m.tree.Delete([]byte(key))
	return marks{tree: tree}
}

func (m marks) len() int {
	return m.tree.Len()
}

// index orders key ids by a number; ties are broken by key id
type index struct {
	tree *iradix.Tree
}

func newIndex() index {
	return index{tree: iradix.New()}
}

func ordKey(n uint64, key string) []byte {
	b := make([]byte, 8+len(key))
	binary.BigEndian.PutUint64(b, n)
	copy(b[8:], key)
	return b
}

func (x index) add(n uint64, key string) index {
	tree, _, _ := x.tree.Insert(ordKey(n, key), key)
	return index{tree: tree}
}

func (x index) remove(n uint64, key string) index {
	tree, _, _ := x.tree.Delete(ordKey(n, key))
	return index{tree: tree}
}

func (x index) len() int {
	return x.tree.Len()
}

// walk visits keys in ascending order until fn returns false
func (x index) walk(fn func(n uint64, key string) bool) {
	x.tree.Root().Walk(func(k []byte, v interface{}) bool {
		return !fn(binary.BigEndian.Uint64(k[:8]), v.(string))
	})
}

// firstExcept returns the lowest ordered key other than skip
func (x index) firstExcept(skip string) (uint64, string, bool) {
	var (
		n     uint64
		key   string
		found bool
	)
	x.walk(func(m uint64, k string) bool {
		if k == skip {
			return true
		}
		n, key, found = m, k, true
		return false
	})
	return n, key, found
}
