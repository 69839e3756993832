package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/reviewrag/ai/mock"
	"github.com/poiesic/reviewrag/core"
	"github.com/poiesic/reviewrag/search"
	"github.com/poiesic/reviewrag/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	index    *memory.Index
	provider *mock.MockProvider
	server   *Server
}

func setup(t *testing.T) *fixture {
	t.Helper()
	index := memory.NewIndex()
	provider := mock.NewMockProvider().(*mock.MockProvider)

	docs := []core.DocumentRecord{
		{Content: "cheap headphone with decent bass", Metadata: core.Metadata{ProductName: "Headphone X", ProductRating: 3, ProductSummary: "budget"}},
		{Content: "cable broke after a week", Metadata: core.Metadata{ProductName: "Cable Y", ProductRating: 1, ProductSummary: "bad"}},
	}
	entries := make([]core.IndexEntry, len(docs))
	for i, doc := range docs {
		entries[i] = core.IndexEntry{
			ID:       doc.ID(),
			Vector:   mock.Vector(doc.Content, mock.DefaultDimension),
			Content:  doc.Content,
			Metadata: doc.Metadata,
		}
	}
	_, err := index.Upsert(context.Background(), entries)
	require.NoError(t, err)

	searcher, err := search.NewSearcher(index, provider, search.WithRetry(1, time.Millisecond))
	require.NoError(t, err)
	answerer, err := search.NewAnswerer(searcher, provider.Generator())
	require.NoError(t, err)

	srv, err := New(searcher, WithAnswerer(answerer), WithCounter(index))
	require.NoError(t, err)
	return &fixture{index: index, provider: provider, server: srv}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNew_RequiresSearcher(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrSearcherRequired)
}

func TestSearch_ReturnsRankedResults(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodGet, "/search?q=cheap+headphone&k=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	resp := decode[searchResponse](t, rec)
	assert.Equal(t, "cheap headphone", resp.Query)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Headphone X", resp.Results[0].Metadata.ProductName)
	assert.Equal(t, 3.0, resp.Results[0].Metadata.ProductRating)
	assert.Len(t, resp.Results[0].ID, 16)
}

func TestSearch_EmptyIndexIsNotAnError(t *testing.T) {
	index := memory.NewIndex()
	searcher, err := search.NewSearcher(index, mock.NewMockProvider())
	require.NoError(t, err)
	srv, err := New(searcher)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?q=anything", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, mustField(t, rec.Body.Bytes(), "results"))
}

func mustField(t *testing.T, body []byte, field string) string {
	t.Helper()
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &raw))
	return string(raw[field])
}

func TestSearch_StatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		breakFn func(f *fixture)
		status  int
	}{
		{
			name:    "empty query",
			target:  "/search?q=%20",
			status:  http.StatusBadRequest,
		},
		{
			name:    "bad k",
			target:  "/search?q=x&k=-2",
			status:  http.StatusBadRequest,
		},
		{
			name:    "embedding failure",
			target:  "/search?q=headphone",
			breakFn: func(f *fixture) {
				f.provider.GetMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
					return nil, core.MarkPermanent(errors.New("403 forbidden"))
				})
			},
			status:  http.StatusBadGateway,
		},
		{
			name:    "backend down",
			target:  "/search?q=headphone",
			breakFn: func(f *fixture) {
				f.index.QueryFunc = func(ctx context.Context, vector []float32, k int) ([]core.ScoredEntry, error) {
					return nil, errors.New("connection refused")
				}
			},
			status:  http.StatusServiceUnavailable,
		},
		{
			name:    "backend timeout",
			target:  "/search?q=headphone",
			breakFn: func(f *fixture) {
				f.index.QueryFunc = func(ctx context.Context, vector []float32, k int) ([]core.ScoredEntry, error) {
					return nil, context.DeadlineExceeded
				}
			},
			status:  http.StatusGatewayTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			if tt.breakFn != nil {
				tt.breakFn(f)
			}
			rec := f.do(t, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, decode[errorResponse](t, rec).Error)
		})
	}
}

func TestAnswer(t *testing.T) {
	f := setup(t)
	f.provider.GetMockGenerator().WithGenerateFunc(func(ctx context.Context, system, prompt string) (string, error) {
		return "  Headphone X is the cheapest.  ", nil
	})

	rec := f.do(t, http.MethodPost, "/answer", `{"question":"cheapest headphone?","k":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[answerResponse](t, rec)
	assert.Equal(t, "Headphone X is the cheapest.", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, 1, f.provider.GetMockGenerator().CallCount())
}

func TestAnswer_Errors(t *testing.T) {
	t.Run("malformed body", func(t *testing.T) {
		f := setup(t)
		rec := f.do(t, http.MethodPost, "/answer", `{"question":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty question", func(t *testing.T) {
		f := setup(t)
		rec := f.do(t, http.MethodPost, "/answer", `{"question":"  "}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Zero(t, f.provider.GetMockGenerator().CallCount())
	})

	t.Run("generation failure", func(t *testing.T) {
		f := setup(t)
		f.provider.GetMockGenerator().WithGenerateFunc(func(ctx context.Context, system, prompt string) (string, error) {
			return "", errors.New("model overloaded")
		})
		rec := f.do(t, http.MethodPost, "/answer", `{"question":"headphone"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		searcher, err := search.NewSearcher(memory.NewIndex(), mock.NewMockProvider())
		require.NoError(t, err)
		srv, err := New(searcher)
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/answer", strings.NewReader(`{"question":"x"}`)))
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})
}

func TestMethodNotAllowed(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodPost, "/search?q=x", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPreflight(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodOptions, "/answer", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealth(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","entries":2}`, rec.Body.String())
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	f := setup(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Serve(ctx, listener) }()

	url := "http://" + listener.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"embedding timeout", &core.EmbeddingError{Op: "embed_query", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"backend timeout", &core.BackendUnavailableError{Op: "query", Err: fmt.Errorf("attempt 3: %w", context.DeadlineExceeded)}, http.StatusGatewayTimeout},
		{"generation timeout", fmt.Errorf("%w: %w", search.ErrGenerationFailed, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"client gone", &core.BackendUnavailableError{Op: "query", Err: context.Canceled}, statusClientClosedRequest},
		{"backend down", &core.BackendUnavailableError{Op: "query", Err: errors.New("connection refused")}, http.StatusServiceUnavailable},
		{"embedding failure", &core.EmbeddingError{Op: "embed_query", Err: errors.New("x")}, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
