package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medrag/internal/cli"
	"medrag/internal/config"
	"medrag/internal/domain"
	"medrag/internal/pipeline"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	corpus := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(corpus, "tdap.txt"),
		[]byte("Tdap booster every ten years for adults."), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(corpus, "flu.txt"),
		[]byte("Influenza vaccination is recommended annually for healthcare workers."), 0o600))

	t.Setenv("CORPUS_DIR", corpus)
	t.Setenv("INDEX_DIR", t.TempDir())
	t.Setenv("EMBEDDING_PROVIDER", config.ProviderHashing)
	t.Setenv("EMBEDDING_DIMENSION", "256")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("NSQD_HOST", "")
	t.Setenv("QUERY_LOG_PATH", "")
	t.Setenv("SENTRY_DSN", "")
	t.Setenv("LOG_LEVEL", "error")
	return corpus
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAsk_BeforeIndex(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "ask", "When is a Tdap booster needed?")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIndexMissing)
	assert.Contains(t, err.Error(), "medrag index")
}

func TestIndexThenAsk(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "index", "--json")
	require.NoError(t, err)
	var stats pipeline.BuildStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 256, stats.Dimension)
	assert.Equal(t, "hashing-256", stats.Model)

	out, err = run(t, "ask", "--json", "-k", "1", "When is a Tdap booster needed?")
	require.NoError(t, err)
	var rec domain.AnswerRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, domain.AnswerModeFixed, rec.Mode)
	assert.Equal(t, []string{"Tdap booster every ten years for adults."}, rec.Contexts)

	out, err = run(t, "ask", "When", "is", "a", "Tdap", "booster", "needed?")
	require.NoError(t, err)
	assert.Contains(t, out, "Tdap booster")
	assert.Contains(t, out, "Contexts (fixed):")
}

func TestIndex_TextOutput(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "index")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 2 documents into 2 chunks (dimension 256, model hashing-256)")
}

func TestIndex_MissingCorpus(t *testing.T) {
	setupEnv(t)
	t.Setenv("CORPUS_DIR", filepath.Join(t.TempDir(), "absent"))

	_, err := run(t, "index")
	assert.Error(t, err)
}

func TestAsk_Validation(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "ask")
	assert.Error(t, err)

	_, err = run(t, "ask", "   ")
	assert.EqualError(t, err, "question is required")

	_, err = run(t, "ask", "--top-k", "-2", "q")
	assert.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	setupEnv(t)
	t.Setenv("CHUNK_SIZE", "50")
	t.Setenv("CHUNK_OVERLAP", "50")

	_, err := run(t, "index")
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestWorker_RequiresNSQ(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "worker")
	assert.EqualError(t, err, "worker requires NSQD_HOST")
}
