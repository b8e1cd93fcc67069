package agent

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetMaxSockets(t *testing.T) {
	prev := MaxSockets()
	t.Cleanup(func() { _ = SetMaxSockets(prev) })

	require.NoError(t, SetMaxSockets(16))
	assert.Equal(t, 16, MaxSockets())

	require.NoError(t, SetMaxSockets(0))
	assert.Equal(t, 0, MaxSockets())

	assert.Error(t, SetMaxSockets(-1))
	assert.Equal(t, 0, MaxSockets())
}

func TestSetMaxSockets_WhileRequestsInFlight(t *testing.T) {
	prev := MaxSockets()
	t.Cleanup(func() { _ = SetMaxSockets(prev) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := Get(srv.URL).Send(context.Background())
			if assert.NoError(t, err) {
				assert.Equal(t, "ok", string(res.Body))
			}
		}()
	}
	for n := 1; n <= 4; n++ {
		require.NoError(t, SetMaxSockets(n))
	}
	wg.Wait()
	assert.Equal(t, 4, MaxSockets())
	assert.Zero(t, http.DefaultTransport.(*http.Transport).MaxConnsPerHost)
}
