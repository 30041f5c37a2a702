package vector

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medrag/internal/domain"
)

const testModel = "hashing-3"

func testSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	idx, err := Build([][]float32{{0.1, 0.2, 0.3}, {1, 0, -1}, {0.5, 0.5, 0.5}})
	require.NoError(t, err)
	return &Snapshot{
		Index: idx,
		Chunks: []domain.Chunk{
			{Text: "Tdap booster every ten years for adults.", Source: "tdap.txt", Ordinal: 0},
			{Text: "Measles vaccine is given in two doses.", Source: "mmr.pdf", Ordinal: 1},
			{Text: "Influenza vaccination is yearly.", Source: "flu.txt", Ordinal: 2},
		},
		ModelID: testModel,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	snap := testSnapshot(t)

	gen, err := store.Persist(snap)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(gen, "gen-"))

	loaded, err := store.Load(testModel)
	require.NoError(t, err)
	assert.Equal(t, gen, loaded.Generation)
	assert.Equal(t, testModel, loaded.ModelID)
	assert.Equal(t, snap.Chunks, loaded.Chunks)
	require.Equal(t, snap.Index.Len(), loaded.Index.Len())
	assert.Equal(t, snap.Index.Dimension(), loaded.Index.Dimension())
	for i := 0; i < snap.Index.Len(); i++ {
		assert.Equal(t, snap.Index.Vector(i), loaded.Index.Vector(i))
	}
}

func TestStore_RoundTrip_Empty(t *testing.T) {
	store := NewStore(t.TempDir())
	idx, err := Build(nil)
	require.NoError(t, err)

	_, err = store.Persist(&Snapshot{Index: idx, ModelID: testModel})
	require.NoError(t, err)

	loaded, err := store.Load(testModel)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
	hits, err := loaded.Search([]float32{1, 2, 3}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStore_Load_Missing(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	_, err := store.Load(testModel)
	assert.ErrorIs(t, err, domain.ErrIndexMissing)
	assert.NoFileExists(t, filepath.Join(dir, currentFile))

	gen, err := store.Persist(testSnapshot(t))
	require.NoError(t, err)

	t.Run("Chunk Artifact Removed", func(t *testing.T) {
		path := filepath.Join(dir, gen, chunksFile)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NoError(t, os.Remove(path))
		defer os.WriteFile(path, data, 0o600)

		_, err = store.Load(testModel)
		assert.ErrorIs(t, err, domain.ErrIndexMissing)
	})

	t.Run("Vector Artifact Removed", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(dir, gen, vectorsFile)))
		_, err := store.Load(testModel)
		assert.ErrorIs(t, err, domain.ErrIndexMissing)
	})
}

func TestStore_Load_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(t *testing.T, dir, gen string)
		model   string
	}{
		{
			name: "Length Mismatch",
			corrupt: func(t *testing.T, dir, gen string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, gen, chunksFile),
					[]byte(`[{"source":"a","content":"only one","ordinal":0}]`), 0o600))
			},
			model: testModel,
		},
		{
			name: "Model Mismatch",
			corrupt: func(t *testing.T, dir, gen string) {},
			model:   "gemini:gemini-embedding-001",
		},
		{
			name: "Bad Magic",
			corrupt: func(t *testing.T, dir, gen string) {
				path := filepath.Join(dir, gen, vectorsFile)
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				copy(data, "JUNK")
				require.NoError(t, os.WriteFile(path, data, 0o600))
			},
			model: testModel,
		},
		{
			name: "Truncated Vectors",
			corrupt: func(t *testing.T, dir, gen string) {
				path := filepath.Join(dir, gen, vectorsFile)
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(path, data[:len(data)-4], 0o600))
			},
			model: testModel,
		},
		{
			name: "Trailing Data",
			corrupt: func(t *testing.T, dir, gen string) {
				path := filepath.Join(dir, gen, vectorsFile)
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(path, append(data, 0, 0, 0, 0), 0o600))
			},
			model: testModel,
		},
		{
			name: "Header Count Exceeds File",
			corrupt: func(t *testing.T, dir, gen string) {
				var buf bytes.Buffer
				h := header{Magic: magic, Version: formatVersion, Dim: 1 << 15, Count: 1 << 16}
				require.NoError(t, binary.Write(&buf, binary.LittleEndian, h))
				require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(len(testModel))))
				buf.WriteString(testModel)
				require.NoError(t, os.WriteFile(filepath.Join(dir, gen, vectorsFile), buf.Bytes(), 0o600))
			},
			model: testModel,
		},
		{
			name: "Invalid Chunk JSON",
			corrupt: func(t *testing.T, dir, gen string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, gen, chunksFile), []byte(`{not json`), 0o600))
			},
			model: testModel,
		},
		{
			name: "Pointer Escapes Index Dir",
			corrupt: func(t *testing.T, dir, gen string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, currentFile), []byte("../etc"), 0o600))
			},
			model: testModel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			store := NewStore(dir)
			gen, err := store.Persist(testSnapshot(t))
			require.NoError(t, err)

			tt.corrupt(t, dir, gen)

			_, err = store.Load(tt.model)
			assert.ErrorIs(t, err, domain.ErrIndexCorrupt)
		})
	}
}

func TestStore_Load_AnyModel(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Persist(testSnapshot(t))
	require.NoError(t, err)

	loaded, err := store.Load("")
	require.NoError(t, err)
	assert.Equal(t, testModel, loaded.ModelID)
}

func TestStore_Persist_RejectsMismatch(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	snap := testSnapshot(t)
	snap.Chunks = snap.Chunks[:1]

	_, err := store.Persist(snap)
	assert.ErrorIs(t, err, domain.ErrIndexCorrupt)
	assert.NoFileExists(t, filepath.Join(dir, currentFile))
}

func TestStore_Persist_SwapsAndPrunes(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	var gens []string
	for i := 0; i < 4; i++ {
		gen, err := store.Persist(testSnapshot(t))
		require.NoError(t, err)
		gens = append(gens, gen)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), "temporary pointer left behind: %s", e.Name())
	}
	assert.ElementsMatch(t, gens[2:], dirs)

	loaded, err := store.Load(testModel)
	require.NoError(t, err)
	assert.Equal(t, gens[3], loaded.Generation)
}

func TestHolder(t *testing.T) {
	ctx := context.Background()
	store := NewStore(t.TempDir())
	h := NewHolder(store, testModel)

	_, err := h.Get(ctx)
	assert.ErrorIs(t, err, domain.ErrIndexMissing)

	_, err = store.Persist(testSnapshot(t))
	require.NoError(t, err)

	first, err := h.Get(ctx)
	require.NoError(t, err)
	again, err := h.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, first, again)

	second := testSnapshot(t)
	_, err = store.Persist(second)
	require.NoError(t, err)

	// Still cached until invalidated.
	cached, err := h.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, first, cached)

	h.Invalidate()
	reloaded, err := h.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.Generation, reloaded.Generation)

	h.Set(first)
	got, err := h.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, first, got)
}
