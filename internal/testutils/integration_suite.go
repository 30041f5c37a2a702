package testutils

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"medrag/internal/config"
)

// IntegrationSuite runs an nsqd container for messaging tests. Callers
// should skip under -short before calling Setup.
type IntegrationSuite struct {
	T        *testing.T
	NSQ      *nsq.Producer
	NSQDAddr string
	IndexDir string
	Corpus   string

	nsqContainer testcontainers.Container
}

func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	return &IntegrationSuite{T: t}
}

func (s *IntegrationSuite) Setup() {
	ctx := context.Background()

	nsqReq := testcontainers.ContainerRequest{
		Image:        "nsqio/nsq:v1.3.0",
		ExposedPorts: []string{"4150/tcp", "4151/tcp"},
		Cmd:          []string{"/nsqd", "--broadcast-address=localhost"},
		WaitingFor:   wait.ForLog("TCP: listening on").WithStartupTimeout(60 * time.Second),
	}
	nsqC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: nsqReq,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.nsqContainer = nsqC

	host, err := nsqC.Host(ctx)
	require.NoError(s.T, err)
	port, err := nsqC.MappedPort(ctx, "4150")
	require.NoError(s.T, err)
	s.NSQDAddr = fmt.Sprintf("%s:%s", host, port.Port())

	s.NSQ, err = nsq.NewProducer(s.NSQDAddr, nsq.NewConfig())
	require.NoError(s.T, err)
	require.NoError(s.T, s.NSQ.Ping())

	s.IndexDir = s.T.TempDir()
	s.Corpus = s.T.TempDir()
}

func (s *IntegrationSuite) Teardown() {
	if s.NSQ != nil {
		s.NSQ.Stop()
	}
	if s.nsqContainer != nil {
		_ = s.nsqContainer.Terminate(context.Background())
	}
}

// GetAppConfig returns a valid offline configuration wired to the suite's
// nsqd and temp directories.
func (s *IntegrationSuite) GetAppConfig() *config.Config {
	return &config.Config{
		EmbeddingProvider:          config.ProviderHashing,
		EmbeddingDimension:         128,
		EmbedBatchSize:             16,
		EmbedConcurrency:           2,
		GenerationMaxTokens:        150,
		GenerationTemperature:      0.3,
		GenerationTimeoutSeconds:   5,
		CorpusDir:                  s.Corpus,
		IndexDir:                   s.IndexDir,
		ChunkSize:                  200,
		ChunkOverlap:               50,
		TopK:                       3,
		NSQDHost:                   s.NSQDAddr,
		ServerPort:                 8081,
		LogLevel:                   "debug",
		LogFormat:                  "text",
		BootstrapRetryAttempts:     3,
		BootstrapRetryDelaySeconds: 1,
	}
}
