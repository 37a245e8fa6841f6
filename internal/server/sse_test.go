package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nonFlusher struct {
	http.ResponseWriter
}

func TestSSEWriter(t *testing.T) {
	w := httptest.NewRecorder()
	sse, err := NewSSEWriter(w)
	require.NoError(t, err)

	require.NoError(t, sse.WriteEvent(EventProgress, map[string]int{"percent": 40}))
	require.NoError(t, sse.WriteComment("keep-alive"))
	sse.WriteError("boom")

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t,
		"id: 1\nevent: progress\ndata: {\"percent\":40}\n\n"+
			": keep-alive\n\n"+
			"id: 2\nevent: error\ndata: {\"error\":\"boom\"}\n\n",
		w.Body.String())
	assert.True(t, w.Flushed)
}

func TestSSEWriter_RequiresFlusher(t *testing.T) {
	_, err := NewSSEWriter(nonFlusher{httptest.NewRecorder()})
	assert.Error(t, err)
}

func TestSSEWriter_BadPayload(t *testing.T) {
	sse, err := NewSSEWriter(httptest.NewRecorder())
	require.NoError(t, err)
	assert.Error(t, sse.WriteEvent(EventProgress, make(chan int)))
}
