package vector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"medrag/internal/domain"
)

const (
	currentFile = "CURRENT"
	vectorsFile = "vectors.bin"
	chunksFile  = "chunks.json"
	genPrefix   = "gen-"

	formatVersion uint16 = 1
	maxModelIDLen        = 1 << 10
)

var magic = [4]byte{'M', 'R', 'V', 'X'}

// Snapshot pairs an index with its chunk metadata. Vector i embeds Chunks[i].
type Snapshot struct {
	Index      *Index
	Chunks     []domain.Chunk
	ModelID    string
	Generation string
}

// Len is the number of indexed chunks.
func (s *Snapshot) Len() int { return len(s.Chunks) }

func (s *Snapshot) Search(query []float32, k int) ([]Hit, error) {
	return s.Index.Search(query, k)
}

// ChunkAt returns the chunk at pos, or false when pos is outside the metadata.
func (s *Snapshot) ChunkAt(pos int) (domain.Chunk, bool) {
	if pos < 0 || pos >= len(s.Chunks) {
		return domain.Chunk{}, false
	}
	return s.Chunks[pos], true
}

// Store persists snapshots under a directory. Each Persist writes a new
// generation directory and then atomically repoints CURRENT at it, so a
// Load never sees a half-written snapshot.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string { return s.dir }

// Persist writes snap as a new generation and makes it current. The
// previous generation is kept for readers that already resolved it; older
// ones are removed.
func (s *Store) Persist(snap *Snapshot) (string, error) {
	if snap.Index.Len() != len(snap.Chunks) {
		return "", domain.IndexCorrupt("index has %d vectors but %d chunks", snap.Index.Len(), len(snap.Chunks))
	}
	if len(snap.ModelID) > maxModelIDLen {
		return "", domain.InvalidConfiguration("model id longer than %d bytes", maxModelIDLen)
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create index dir: %w", err)
	}

	previous, _ := s.current()
	gen := genPrefix + uuid.NewString()
	genDir := filepath.Join(s.dir, gen)
	if err := os.Mkdir(genDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create generation dir: %w", err)
	}

	err := writeFileSync(filepath.Join(genDir, vectorsFile), func(w io.Writer) error {
		return writeVectors(w, snap.Index, snap.ModelID)
	})
	if err == nil {
		err = writeFileSync(filepath.Join(genDir, chunksFile), func(w io.Writer) error {
			chunks := snap.Chunks
			if chunks == nil {
				chunks = []domain.Chunk{}
			}
			return json.NewEncoder(w).Encode(chunks)
		})
	}
	if err == nil {
		err = s.swapCurrent(gen)
	}
	if err != nil {
		_ = os.RemoveAll(genDir)
		return "", err
	}

	snap.Generation = gen
	s.prune(gen, previous)
	return gen, nil
}

// Load reads the current snapshot. A non-empty expectedModel must equal the
// model id recorded at build time.
func (s *Store) Load(expectedModel string) (*Snapshot, error) {
	gen, err := s.current()
	if err != nil {
		return nil, err
	}
	genDir := filepath.Join(s.dir, gen)

	vf, err := os.Open(filepath.Join(genDir, vectorsFile)) // #nosec G304 -- path derived from configured index dir
	if err != nil {
		return nil, missingOrErr(err, "vector artifact")
	}
	defer vf.Close()

	cf, err := os.Open(filepath.Join(genDir, chunksFile)) // #nosec G304 -- path derived from configured index dir
	if err != nil {
		return nil, missingOrErr(err, "chunk artifact")
	}
	defer cf.Close()

	info, err := vf.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat vector artifact: %w", err)
	}
	idx, modelID, err := readVectors(bufio.NewReader(vf), info.Size())
	if err != nil {
		return nil, err
	}

	var chunks []domain.Chunk
	if err := json.NewDecoder(cf).Decode(&chunks); err != nil {
		return nil, domain.IndexCorrupt("chunk artifact unreadable: %v", err)
	}
	if idx.Len() != len(chunks) {
		return nil, domain.IndexCorrupt("index has %d vectors but %d chunks", idx.Len(), len(chunks))
	}
	if expectedModel != "" && modelID != expectedModel {
		return nil, domain.IndexCorrupt("index was built with %q, current embedding model is %q", modelID, expectedModel)
	}

	return &Snapshot{Index: idx, Chunks: chunks, ModelID: modelID, Generation: gen}, nil
}

func (s *Store) current() (string, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, currentFile)) // #nosec G304 -- path derived from configured index dir
	if err != nil {
		return "", missingOrErr(err, "snapshot pointer")
	}
	gen := strings.TrimSpace(string(b))
	if !strings.HasPrefix(gen, genPrefix) || strings.ContainsAny(gen, `/\`) || gen == genPrefix {
		return "", domain.IndexCorrupt("snapshot pointer names invalid generation %q", gen)
	}
	return gen, nil
}

func (s *Store) swapCurrent(gen string) error {
	tmp, err := os.CreateTemp(s.dir, currentFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot pointer: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.WriteString(gen + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot pointer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot pointer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot pointer: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, currentFile)); err != nil {
		return fmt.Errorf("failed to swap snapshot pointer: %w", err)
	}
	syncDir(s.dir)
	return nil
}

func (s *Store) prune(keep ...string) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		slog.Warn("failed to list index dir for pruning", "dir", s.dir, "error", err)
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !strings.HasPrefix(name, genPrefix) || slices.Contains(keep, name) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, name)); err != nil {
			slog.Warn("failed to remove old index generation", "generation", name, "error", err)
		}
	}
}

func missingOrErr(err error, what string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return domain.IndexMissing(what+" not found", err)
	}
	return fmt.Errorf("failed to read %s: %w", what, err)
}

func writeFileSync(path string, write func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) // #nosec G304 -- path derived from configured index dir
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func syncDir(dir string) {
	d, err := os.Open(dir) // #nosec G304 -- configured index dir
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// vectors.bin layout, little endian:
//
//	magic [4]byte | version uint16 | dim uint32 | count uint64 |
//	model id length uint16 | model id | count*dim float32
type header struct {
	Magic   [4]byte
	Version uint16
	Dim     uint32
	Count   uint64
}

func writeVectors(w io.Writer, idx *Index, modelID string) error {
	h := header{Magic: magic, Version: formatVersion, Dim: uint32(idx.Dimension()), Count: uint64(idx.Len())}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(modelID))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, modelID); err != nil {
		return err
	}
	if len(idx.data) == 0 {
		return nil
	}
	return binary.Write(w, binary.LittleEndian, idx.data)
}

// readVectors rejects a header whose implied length differs from size
// before allocating the vector data.
func readVectors(r io.Reader, size int64) (*Index, string, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, "", domain.IndexCorrupt("vector header unreadable: %v", err)
	}
	if h.Magic != magic {
		return nil, "", domain.IndexCorrupt("vector artifact has bad magic %q", h.Magic[:])
	}
	if h.Version != formatVersion {
		return nil, "", domain.IndexCorrupt("unsupported vector format version %d", h.Version)
	}

	var modelLen uint16
	if err := binary.Read(r, binary.LittleEndian, &modelLen); err != nil {
		return nil, "", domain.IndexCorrupt("vector header unreadable: %v", err)
	}
	if modelLen > maxModelIDLen {
		return nil, "", domain.IndexCorrupt("model id length %d out of range", modelLen)
	}
	model := make([]byte, modelLen)
	if _, err := io.ReadFull(r, model); err != nil {
		return nil, "", domain.IndexCorrupt("model id unreadable: %v", err)
	}

	if h.Count > 0 && h.Dim == 0 {
		return nil, "", domain.IndexCorrupt("vector artifact holds %d vectors of dimension 0", h.Count)
	}
	const maxElems = 1 << 31
	if h.Dim > 0 && h.Count > maxElems/uint64(h.Dim) {
		return nil, "", domain.IndexCorrupt("vector artifact too large: %d x %d", h.Count, h.Dim)
	}

	want := int64(binary.Size(h)) + 2 + int64(modelLen) + int64(h.Count)*int64(h.Dim)*4
	if size != want {
		return nil, "", domain.IndexCorrupt("vector artifact is %d bytes, header implies %d", size, want)
	}

	data := make([]float32, h.Count*uint64(h.Dim))
	if len(data) > 0 {
		if err := binary.Read(r, binary.LittleEndian, data); err != nil {
			return nil, "", domain.IndexCorrupt("vector data truncated: %v", err)
		}
	}
	return fromFlat(int(h.Dim), data), string(model), nil
}
