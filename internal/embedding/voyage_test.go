package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVoyage answers each request with one vector per input, [index, len(input)],
// returned in reverse order to exercise index placement.
func fakeVoyage(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req embeddingRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if req.InputType == "fail" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":"bad input_type"}`))
			return
		}
		var resp embeddingResponse
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingData{
				Index:     i,
				Embedding: []float32{float32(i), float32(len(req.Input[i]))},
			})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbed_OrdersByIndex(t *testing.T) {
	var calls atomic.Int32
	srv := fakeVoyage(t, &calls)
	c := NewClient("key", "", WithBaseURL(srv.URL))
	assert.Equal(t, defaultModel, c.Model())

	got, err := c.Embed(context.Background(), []string{"a", "bbb"}, InputDocument)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 3}}, got)
}

func TestEmbed_Empty(t *testing.T) {
	c := NewClient("key", "m", WithBaseURL("http://127.0.0.1:0"))
	got, err := c.Embed(context.Background(), nil, InputQuery)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEmbed_APIError(t *testing.T) {
	var calls atomic.Int32
	srv := fakeVoyage(t, &calls)
	c := NewClient("key", "m", WithBaseURL(srv.URL))

	_, err := c.Embed(context.Background(), []string{"x"}, "fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "bad input_type")
}

func TestEmbedBatch_SplitsAndReportsProgress(t *testing.T) {
	var calls atomic.Int32
	srv := fakeVoyage(t, &calls)
	c := NewClient("key", "m", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	var progress [][2]int
	got, err := c.EmbedBatch(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"}, InputDocument, 2,
		func(i, n int) { progress = append(progress, [2]int{i, n}) })
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)
	require.Len(t, got, 5)
	for i, v := range got {
		assert.Equal(t, float32(i+1), v[1], "input %d", i)
	}
}
