package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"medrag/internal/domain"
	"medrag/internal/text"
)

// Extractor returns the plain text of one file.
type Extractor func(path string) (string, error)

// Loader reads every supported file directly inside a corpus directory.
type Loader struct {
	extractors map[string]Extractor
	// order of extensions in the result: all .txt files, then all .pdf files
	order []string
}

func New() *Loader {
	return &Loader{
		extractors: map[string]Extractor{
			".txt": readText,
			".pdf": readPDF,
		},
		order: []string{".txt", ".pdf"},
	}
}

// Load returns one normalized Document per readable file, sorted by name
// within each format. Files that fail extraction are logged and skipped.
func (l *Loader) Load(ctx context.Context, dir string) ([]domain.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus dir %s: %w", dir, err)
	}

	byExt := make(map[string][]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if _, ok := l.extractors[ext]; ok {
			byExt[ext] = append(byExt[ext], e.Name())
		}
	}

	docs := []domain.Document{}
	for _, ext := range l.order {
		names := byExt[ext]
		sort.Strings(names)
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			raw, err := l.extractors[ext](filepath.Join(dir, name))
			if err != nil {
				slog.WarnContext(ctx, "skipping unreadable document", "source", name, "error", err)
				continue
			}
			docs = append(docs, domain.Document{Source: name, Content: text.Normalize(raw)})
		}
	}

	slog.InfoContext(ctx, "loaded documents", "dir", dir, "count", len(docs))
	return docs, nil
}

func readText(path string) (string, error) {
	b, err := os.ReadFile(path) // #nosec G304 -- path comes from the configured corpus dir
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readPDF(path string) (content string, err error) {
	// the pdf reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	return buf.String(), nil
}
