// Package badger journals pending transactions in an embedded Badger database.
package badger

import (
	"encoding/json"

	"sigresponder/types"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
)

var prefix = []byte("pending/")

func key(txID string) []byte {
	return append(append([]byte{}, prefix...), txID...)
}

type Store struct {
	db *badgerdb.DB
}

// Open opens (or creates) the database in dir. An empty dir keeps the
// database in memory.
func Open(dir string) (*Store, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}
	return &Store{db: db}, nil
}

func (s *Store) Save(p *types.PendingTransaction) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "marshal pending transaction")
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key(p.TxID), data)
	})
}

func (s *Store) Delete(txID string) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(key(txID))
	})
}

func (s *Store) LoadAll() ([]*types.PendingTransaction, error) {
	var out []*types.PendingTransaction
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var p types.PendingTransaction
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return errors.Wrapf(err, "decode %s", it.Item().Key())
			}
			out = append(out, &p)
		}
		return nil
	})
	return out, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
