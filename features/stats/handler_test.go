package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"medrag/internal/domain"
	"medrag/internal/pipeline"
)

type MockInspector struct{ mock.Mock }

func (m *MockInspector) Stats(ctx context.Context) (*pipeline.IndexStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.IndexStats), args.Error(1)
}

func TestHandler_GetStats_Table(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(*MockInspector)
		wantStatus int
		wantCode   string
		checkBody  func(*testing.T, map[string]interface{})
	}{
		{
			name: "Success",
			setupMocks: func(m *MockInspector) {
				m.On("Stats", mock.Anything).Return(&pipeline.IndexStats{
					Chunks: 100, Sources: 4, Dimension: 384, Model: "hashing-384", Generation: "gen-1",
				}, nil)
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				data := body["data"].(map[string]interface{})
				assert.Equal(t, true, data["built"])
				assert.EqualValues(t, 100, data["chunks"])
				assert.EqualValues(t, 4, data["sources"])
				assert.EqualValues(t, 384, data["dimension"])
				assert.Equal(t, "hashing-384", data["model"])
			},
		},
		{
			name: "Not Built",
			setupMocks: func(m *MockInspector) {
				m.On("Stats", mock.Anything).Return(nil, domain.IndexMissing("snapshot pointer not found", nil))
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				data := body["data"].(map[string]interface{})
				assert.Equal(t, false, data["built"])
				assert.EqualValues(t, 0, data["chunks"])
				assert.NotContains(t, data, "model")
			},
		},
		{
			name: "Corrupt",
			setupMocks: func(m *MockInspector) {
				m.On("Stats", mock.Anything).Return(nil, domain.IndexCorrupt("bad magic"))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   domain.ErrCodeIndexCorrupt,
		},
		{
			name: "IO Error",
			setupMocks: func(m *MockInspector) {
				m.On("Stats", mock.Anything).Return(nil, errors.New("permission denied"))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(MockInspector)
			tt.setupMocks(m)

			h := NewHandler(m)
			req := httptest.NewRequest("GET", "/stats", nil)
			w := httptest.NewRecorder()

			h.GetStats(w, req)

			resp := w.Result()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body map[string]interface{}
			err := json.NewDecoder(resp.Body).Decode(&body)
			assert.NoError(t, err)

			if tt.wantCode != "" {
				assert.Contains(t, body, "error")
				errMap := body["error"].(map[string]interface{})
				assert.Equal(t, tt.wantCode, errMap["code"])
			} else {
				tt.checkBody(t, body)
			}
		})
	}
}
