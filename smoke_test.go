package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medrag/internal/cli"
	"medrag/internal/domain"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestSmoke_Serve(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping smoke test in short mode")
	}

	corpus := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(corpus, "tdap.txt"),
		[]byte("Tdap booster every ten years for adults."), 0o600))

	port := freePort(t)
	t.Setenv("CORPUS_DIR", corpus)
	t.Setenv("INDEX_DIR", t.TempDir())
	t.Setenv("EMBEDDING_PROVIDER", "hashing")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("NSQD_HOST", "")
	t.Setenv("QUERY_LOG_PATH", "")
	t.Setenv("SERVER_PORT", strconv.Itoa(port))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		cmd := cli.NewRootCmd("smoke")
		cmd.SetArgs([]string{"serve"})
		cmd.SetErr(io.Discard)
		done <- cmd.ExecuteContext(ctx)
	}()
	defer func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(15 * time.Second):
			t.Error("serve did not shut down")
		}
	}()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 100*time.Millisecond)

	resp, err := http.Post(base+"/index", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := json.Marshal(map[string]any{"question": "When is a Tdap booster needed?"})
	resp, err = http.Post(base+"/ask", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rec domain.AnswerRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, domain.AnswerModeFixed, rec.Mode)
	assert.Equal(t, []string{"Tdap booster every ten years for adults."}, rec.Contexts)
}
