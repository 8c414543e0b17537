package badger

import (
	"testing"

	"sigresponder/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	p := &types.PendingTransaction{
		TxID:      "0xaa",
		RequestID: common.HexToHash("0x01"),
		Namespace: types.NamespaceBIP122,
		CAIP2ID:   "bip122:000000000933ea01ad0ee984209779ba",
		Origin:    types.OriginSolana,
		Prevouts:  []types.Prevout{{TxID: "ff", Vout: 2}},
		TsCreated: 1700000000,
	}
	require.NoError(t, s.Save(p))
	require.NoError(t, s.Save(&types.PendingTransaction{TxID: "0xbb"}))
	require.NoError(t, s.Delete("0xbb"))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	all, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, p, all[0])
}

func TestInMemory(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	all, err := s.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, all)
}
