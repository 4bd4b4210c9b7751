package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/serroba/shortify/internal/client"
	"github.com/serroba/shortify/internal/client/clienttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestShortener(baseURL string) *client.Shortener {
	return client.NewShortener(&http.Client{Timeout: 5 * time.Second}, baseURL, zap.NewNop())
}

func TestShortener_Shorten(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the url declared by the server", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		s := newTestShortener(srv.URL)

		shortURL, err := s.Shorten(ctx, "https://example.com", "")

		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/r/c00001", shortURL)
		assert.Equal(t, client.ShortenRequest{URL: "https://example.com"}, srv.LastRequest())
		assert.False(t, s.IsLoading())
		assert.NoError(t, s.Err())
	})

	t.Run("builds the url from the code when the server omits it", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		srv.OmitURL()
		s := newTestShortener(srv.URL)

		shortURL, err := s.Shorten(ctx, "https://example.com", "")

		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/r/c00001", shortURL)
	})

	t.Run("sends the alias", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		s := newTestShortener(srv.URL)

		shortURL, err := s.Shorten(ctx, "https://example.com", "Ab3")

		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/r/Ab3", shortURL)
		assert.Equal(t, "Ab3", srv.LastRequest().Alias)
	})

	t.Run("server error message becomes the error message", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		srv.FailShorten(http.StatusConflict, `{"error":"alias taken"}`)
		s := newTestShortener(srv.URL)

		shortURL, err := s.Shorten(ctx, "https://example.com", "taken")

		require.Error(t, err)
		assert.Empty(t, shortURL)
		assert.Equal(t, "alias taken", err.Error())
		assert.False(t, s.IsLoading())
		assert.Equal(t, err, s.Err())

		var clientErr *client.Error
		require.ErrorAs(t, err, &clientErr)
		assert.Equal(t, client.KindServer, clientErr.Kind)
		assert.Equal(t, http.StatusConflict, clientErr.StatusCode)
	})

	t.Run("unparseable error body falls back to generic message", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		srv.FailShorten(http.StatusInternalServerError, "<html>boom</html>")
		s := newTestShortener(srv.URL)

		_, err := s.Shorten(ctx, "https://example.com", "")

		require.Error(t, err)
		assert.Equal(t, "Failed to shorten URL", err.Error())
		assert.Equal(t, client.KindServerOpaque, client.KindOf(err))
	})

	t.Run("error body without message falls back to generic message", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		srv.FailShorten(http.StatusBadRequest, `{}`)
		s := newTestShortener(srv.URL)

		_, err := s.Shorten(ctx, "https://example.com", "")

		assert.Equal(t, "Failed to shorten URL", err.Error())
		assert.Equal(t, client.KindServerOpaque, client.KindOf(err))
	})

	t.Run("success body without url or code is opaque", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		srv.FailShorten(http.StatusOK, `{}`)
		s := newTestShortener(srv.URL)

		_, err := s.Shorten(ctx, "https://example.com", "")

		assert.Equal(t, client.KindServerOpaque, client.KindOf(err))
	})

	t.Run("transport failure is a network error", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		baseURL := srv.URL
		srv.Close()
		s := newTestShortener(baseURL)

		_, err := s.Shorten(ctx, "https://example.com", "")

		require.Error(t, err)
		assert.Equal(t, client.KindNetwork, client.KindOf(err))
		assert.Equal(t, "Failed to shorten URL. Please try again later.", err.Error())
		assert.False(t, s.IsLoading())
	})

	t.Run("a successful call clears the previous error", func(t *testing.T) {
		srv := clienttest.NewServer(t)
		srv.FailShorten(http.StatusInternalServerError, "")
		s := newTestShortener(srv.URL)

		_, err := s.Shorten(ctx, "https://example.com", "")
		require.Error(t, err)

		srv.Recover()

		_, err = s.Shorten(ctx, "https://example.com", "")
		require.NoError(t, err)
		assert.NoError(t, s.Err())
	})
}

func TestShortener_IsLoading(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"code":"abc123"}`))
	})

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	s := newTestShortener(ts.URL)

	var shortURL string

	done := make(chan error, 1)

	go func() {
		var err error
		shortURL, err = s.Shorten(context.Background(), "https://example.com", "")
		done <- err
	}()

	<-started
	assert.True(t, s.IsLoading())

	close(release)
	require.NoError(t, <-done)
	assert.False(t, s.IsLoading())
	assert.Equal(t, ts.URL+"/r/abc123", shortURL)
}

func TestShortener_ShortLink(t *testing.T) {
	s := newTestShortener("http://localhost:8080/")

	assert.Equal(t, "http://localhost:8080/r/abc123", s.ShortLink("abc123"))
	assert.True(t, strings.HasSuffix(s.ShortLink("x"), "/r/x"))
}
