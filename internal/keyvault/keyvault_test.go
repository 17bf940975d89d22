package keyvault

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signet-ai/signet/internal/signeterr"
)

func TestGenerateThenLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".keys", "signing.enc")
	v := New(path)

	pub, err := v.Generate()
	require.NoError(t, err)

	v.Clear()

	loadedPub, loadedPriv, err := v.Load()
	require.NoError(t, err)
	require.Equal(t, pub, loadedPub)
	require.Len(t, loadedPriv, 64)
}

func TestGenerate_FailsIfFileExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.enc")
	v := New(path)

	_, err := v.Generate()
	require.NoError(t, err)

	_, err = v.Generate()
	require.Error(t, err)
}

func TestLoad_MissingFileReturnsKeyNotFound(t *testing.T) {
	v := New(filepath.Join(t.TempDir(), "missing.enc"))
	_, _, err := v.Load()
	require.Error(t, err)
	require.True(t, signeterr.Is(err, signeterr.KeyNotFound))
}

func TestLoad_ConcurrentCallersShareSingleDiskRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.enc")
	v := New(path)
	_, err := v.Generate()
	require.NoError(t, err)
	v.Clear()

	var wg sync.WaitGroup
	results := make([]error, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := v.Load()
			results[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range results {
		require.NoError(t, err)
	}
}

func TestDID_DerivedFromPublicKey(t *testing.T) {
	v := New(filepath.Join(t.TempDir(), "signing.enc"))
	_, err := v.Generate()
	require.NoError(t, err)

	id, err := v.DID()
	require.NoError(t, err)
	require.Contains(t, id, "did:key:z")
}
