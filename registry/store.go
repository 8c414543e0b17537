package registry

import "sigresponder/types"

// Store journals pending transactions so monitoring survives a restart.
type Store interface {
	Save(p *types.PendingTransaction) error
	Delete(txID string) error
	LoadAll() ([]*types.PendingTransaction, error)
	Close() error
}

// MemoryStore keeps nothing; the registry map is the only copy.
type MemoryStore struct{}

func (MemoryStore) Save(*types.PendingTransaction) error { return nil }

func (MemoryStore) Delete(string) error { return nil }

func (MemoryStore) LoadAll() ([]*types.PendingTransaction, error) { return nil, nil }

func (MemoryStore) Close() error { return nil }
