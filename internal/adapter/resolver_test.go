package adapter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"scrapyard/internal/storage"
)

func TestLocationFor(t *testing.T) {
	tests := []struct {
		name     string
		external string
		want     Location
	}{
		{"local node", "", LocationDisk},
		{"cloud node", storage.CloudExternalType, LocationCloud},
		{"browser node", storage.BrowserExternalType, LocationNone},
		{"rdf node", storage.RDFExternalType, LocationNone},
		{"other external", "pocket", LocationDisk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, LocationFor(&storage.Node{External: tt.external}))
		})
	}
}

func TestResolverForNode(t *testing.T) {
	disk := NewDiskAdapter("http://localhost:0", nil)
	r := NewResolver(disk, nil)

	require.Equal(t, StorageAdapter(disk), r.ForNode(&storage.Node{}))
	require.Nil(t, r.ForNode(&storage.Node{External: storage.BrowserExternalType}))
	// cloud backend disabled
	require.Nil(t, r.ForNode(&storage.Node{External: storage.CloudExternalType}))
}

func TestResolverForNodesRejectsMixedBatch(t *testing.T) {
	disk := NewDiskAdapter("http://localhost:0", nil)
	r := NewResolver(disk, nil)

	_, err := r.ForNodes([]*storage.Node{
		{External: ""},
		{External: storage.CloudExternalType},
	})
	require.ErrorIs(t, err, ErrHeterogeneousStorage)
}

func TestResolverForNodesUniformBatch(t *testing.T) {
	disk := NewDiskAdapter("http://localhost:0", nil)
	r := NewResolver(disk, nil)

	a, err := r.ForNodes([]*storage.Node{{}, {}, {}})
	require.NoError(t, err)
	require.Equal(t, StorageAdapter(disk), a)

	a, err = r.ForNodes(nil)
	require.NoError(t, err)
	require.Nil(t, a)

	// uniform but unfielded batches resolve to no adapter
	a, err = r.ForNodes([]*storage.Node{
		{External: storage.BrowserExternalType},
		{External: storage.BrowserExternalType},
	})
	require.NoError(t, err)
	require.Nil(t, a)
}
