package text

import (
	"strings"

	"medrag/internal/domain"
)

const (
	DefaultChunkSize    = 200
	DefaultChunkOverlap = 50
)

// ChunkWords splits text into windows of size words. Each window starts
// size-overlap words after the previous one, so consecutive windows share
// exactly overlap words; the last window may be shorter. Splitting stops
// once a window reaches the final word.
func ChunkWords(text string, size, overlap int) ([]string, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	step := size - overlap
	chunks := make([]string, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}

func validate(size, overlap int) error {
	if size <= 0 {
		return domain.InvalidConfiguration("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return domain.InvalidConfiguration("chunk overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return domain.InvalidConfiguration("chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}
	return nil
}

// Chunker turns normalized documents into positionally addressed chunks.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) (*Chunker, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// ChunkDocuments chunks docs in order. Ordinals are global across the
// corpus so chunk i lines up with vector i.
func (c *Chunker) ChunkDocuments(docs []domain.Document) []domain.Chunk {
	var chunks []domain.Chunk
	for _, doc := range docs {
		// size and overlap were validated in NewChunker
		windows, _ := ChunkWords(doc.Content, c.size, c.overlap)
		for _, w := range windows {
			chunks = append(chunks, domain.Chunk{
				Text:    w,
				Source:  doc.Source,
				Ordinal: len(chunks),
			})
		}
	}
	return chunks
}
