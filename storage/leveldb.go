package storage

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB implements DB using LevelDB, the teacher's storage backend.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB opens (or creates) a LevelDB database at path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	val, err := l.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return val, err
}

func (l *LevelDB) Set(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelDB) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

func (l *LevelDB) NewIterator(prefix []byte) Iterator {
	return &levelIterator{it: l.db.NewIterator(util.BytesPrefix(prefix), nil)}
}

func (l *LevelDB) NewBatch() Batch {
	return &levelBatch{batch: new(leveldb.Batch), db: l.db}
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}

// levelIterator adapts goleveldb's native bidirectional iterator, which
// already supports Last/Prev, to the Iterator interface.
type levelIterator struct {
	it iteratorLike
}

// iteratorLike is the subset of goleveldb's iterator.Iterator used here.
type iteratorLike interface {
	Next() bool
	Prev() bool
	First() bool
	Last() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

func (i *levelIterator) Next() bool    { return i.it.Next() }
func (i *levelIterator) Prev() bool    { return i.it.Prev() }
func (i *levelIterator) First() bool   { return i.it.First() }
func (i *levelIterator) Last() bool    { return i.it.Last() }
func (i *levelIterator) Key() []byte   { return cloneBytes(i.it.Key()) }
func (i *levelIterator) Value() []byte { return cloneBytes(i.it.Value()) }
func (i *levelIterator) Release()      { i.it.Release() }
func (i *levelIterator) Error() error  { return i.it.Error() }

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

type levelBatch struct {
	batch *leveldb.Batch
	db    *leveldb.DB
}

func (b *levelBatch) Set(key, value []byte) { b.batch.Put(key, value) }
func (b *levelBatch) Delete(key []byte)      { b.batch.Delete(key) }
func (b *levelBatch) Reset()                 { b.batch.Reset() }
func (b *levelBatch) Write() error           { return b.db.Write(b.batch, nil) }
