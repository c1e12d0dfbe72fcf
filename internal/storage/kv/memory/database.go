// Package memory is an ordered in-memory kv backend for tests and
// ephemeral runs.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/LeJamon/goVaultd/internal/storage/kv"
)

type item struct {
	key, value []byte
}

func less(a, b item) bool { return bytes.Compare(a.key, b.key) < 0 }

type DB struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[item]
	closed bool
}

func NewDB() *DB {
	return &DB{tree: btree.NewG(32, less)}
}

func (m *DB) Read(ctx context.Context, key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, kv.ErrDBClosed
	}
	it, ok := m.tree.Get(item{key: key})
	if !ok {
		return nil, kv.ErrKeyNotFound
	}
	return kv.Copy(it.value), nil
}

func (m *DB) Write(ctx context.Context, key, value []byte) error {
	return m.Batch(ctx, []kv.BatchOperation{kv.Put(key, value)})
}

func (m *DB) Delete(ctx context.Context, key []byte) error {
	return m.Batch(ctx, []kv.BatchOperation{kv.Del(key)})
}

func (m *DB) Batch(ctx context.Context, ops []kv.BatchOperation) error {
	for _, op := range ops {
		if op.Type != kv.BatchPut && op.Type != kv.BatchDelete {
			return fmt.Errorf("%w: unknown type %d", kv.ErrBatchOperationFailed, op.Type)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return kv.ErrDBClosed
	}
	for _, op := range ops {
		if op.Type == kv.BatchPut {
			m.tree.ReplaceOrInsert(item{key: kv.Copy(op.Key), value: kv.Copy(op.Value)})
		} else {
			m.tree.Delete(item{key: op.Key})
		}
	}
	return nil
}

// Iterator walks a snapshot taken when it is created.
func (m *DB) Iterator(ctx context.Context, start, end []byte) (kv.Iterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, kv.ErrDBClosed
	}

	var items []item
	visit := func(it item) bool {
		if end != nil && bytes.Compare(it.key, end) >= 0 {
			return false
		}
		items = append(items, it)
		return true
	}
	if start == nil {
		m.tree.Ascend(visit)
	} else {
		m.tree.AscendGreaterOrEqual(item{key: start}, visit)
	}
	return &Iterator{items: items, pos: -1}, nil
}

// Close drops the contents.
func (m *DB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.tree.Clear(false)
	return nil
}

type Iterator struct {
	items []item
	pos   int
}

func (it *Iterator) Next() bool {
	if it.pos+1 >= len(it.items) {
		it.pos = len(it.items)
		return false
	}
	it.pos++
	return true
}

func (it *Iterator) Key() []byte {
	if it.pos < 0 || it.pos >= len(it.items) {
		return nil
	}
	return kv.Copy(it.items[it.pos].key)
}

func (it *Iterator) Value() []byte {
	if it.pos < 0 || it.pos >= len(it.items) {
		return nil
	}
	return kv.Copy(it.items[it.pos].value)
}

func (it *Iterator) Error() error { return nil }

func (it *Iterator) Close() error { return nil }

// Manager hands out one DB per name for the life of the process.
type Manager struct {
	mu  sync.Mutex
	dbs map[string]*DB
}

func NewManager() *Manager {
	return &Manager{dbs: make(map[string]*DB)}
}

func (m *Manager) OpenDB(name string) (kv.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if db, ok := m.dbs[name]; ok {
		return db, nil
	}
	db := NewDB()
	m.dbs[name] = db
	return db, nil
}

func (m *Manager) CloseDB(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	db, ok := m.dbs[name]
	if !ok {
		return fmt.Errorf("database %s not found", name)
	}
	delete(m.dbs, name)
	return db.Close()
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, db := range m.dbs {
		_ = db.Close()
		delete(m.dbs, name)
	}
	return nil
}
