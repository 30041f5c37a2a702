package embedding_test

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"medrag/internal/embedding"
)

type MockProvider struct{ mock.Mock }

func (m *MockProvider) Encode(ctx context.Context, batch []string) ([][]float32, error) {
	args := m.Called(ctx, batch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockProvider) ModelID() string { return "mock-model" }

// indexProvider encodes text "N" as the vector {N, N}.
type indexProvider struct{ calls atomic.Int32 }

func (p *indexProvider) Encode(_ context.Context, batch []string) ([][]float32, error) {
	p.calls.Add(1)
	out := make([][]float32, len(batch))
	for i, s := range batch {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, err
		}
		out[i] = []float32{float32(n), float32(n)}
	}
	return out, nil
}

func (p *indexProvider) ModelID() string { return "index" }

func TestBatchEncoder_PreservesOrder(t *testing.T) {
	p := &indexProvider{}
	enc := embedding.NewBatchEncoder(p, 3, 4)

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = strconv.Itoa(i)
	}

	vecs, err := enc.Encode(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 20)
	for i, v := range vecs {
		assert.Equal(t, []float32{float32(i), float32(i)}, v)
	}
	assert.EqualValues(t, 7, p.calls.Load())
	assert.Equal(t, "index", enc.ModelID())
}

func TestBatchEncoder_Empty(t *testing.T) {
	m := new(MockProvider)
	enc := embedding.NewBatchEncoder(m, 10, 2)

	vecs, err := enc.Encode(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	m.AssertNotCalled(t, "Encode", mock.Anything, mock.Anything)
}

func TestBatchEncoder_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*MockProvider)
	}{
		{
			name: "Provider Error",
			setup: func(m *MockProvider) {
				m.On("Encode", mock.Anything, []string{"a", "b"}).Return(nil, errors.New("quota exceeded"))
			},
		},
		{
			name: "Short Response",
			setup: func(m *MockProvider) {
				m.On("Encode", mock.Anything, []string{"a", "b"}).Return([][]float32{{1}}, nil)
			},
		},
		{
			name: "Inconsistent Dimension",
			setup: func(m *MockProvider) {
				m.On("Encode", mock.Anything, []string{"a", "b"}).Return([][]float32{{1, 2}, {1}}, nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(MockProvider)
			tt.setup(m)
			enc := embedding.NewBatchEncoder(m, 10, 1)

			vecs, err := enc.Encode(context.Background(), []string{"a", "b"})
			assert.Error(t, err)
			assert.Nil(t, vecs)
			m.AssertExpectations(t)
		})
	}
}

func TestHashingProvider(t *testing.T) {
	p := embedding.NewHashingProvider(64)
	assert.Equal(t, "hashing-64", p.ModelID())

	vecs, err := p.Encode(context.Background(), []string{
		"Tdap booster every ten years for adults.",
		"Tdap booster every ten years for adults.",
		"Influenza vaccine annually",
		"",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 4)

	assert.Equal(t, vecs[0], vecs[1], "encoding must be deterministic")
	assert.NotEqual(t, vecs[0], vecs[2])
	for _, v := range vecs {
		assert.Len(t, v, 64)
	}

	var norm float64
	for _, x := range vecs[0] {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	for _, x := range vecs[3] {
		assert.Zero(t, x)
	}
}

func TestHashingProvider_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := embedding.NewHashingProvider(8).Encode(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}
