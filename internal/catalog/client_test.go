package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/trackcard/internal/healthcheck"
	"github.com/memohai/trackcard/internal/linkscan"
)

const trackJSON = `{
  "id": "abc123",
  "name": "Song",
  "external_urls": {"spotify": "https://open.spotify.com/track/abc123"},
  "album": {
    "name": "Record",
    "release_date": "2021-05-01",
    "external_urls": {"spotify": "https://open.spotify.com/album/rec1"},
    "images": [{"url": "https://i.scdn.co/image/big", "width": 640, "height": 640},
               {"url": "https://i.scdn.co/image/small", "width": 64, "height": 64}]
  },
  "artists": [
    {"name": "First", "external_urls": {"spotify": "https://open.spotify.com/artist/a1"}},
    {"name": "Second", "external_urls": {"spotify": "https://open.spotify.com/artist/a2"}}
  ]
}`

const albumJSON = `{
  "id": "rec1",
  "name": "Record",
  "release_date": "2021",
  "total_tracks": 11,
  "external_urls": {"spotify": "https://open.spotify.com/album/rec1"},
  "images": [],
  "artists": [{"name": "First", "external_urls": {"spotify": "https://open.spotify.com/artist/a1"}}]
}`

type fakeSpotify struct {
	server     *httptest.Server
	tokenCalls atomic.Int32
	rejectNext atomic.Bool
	badSecret  bool
	lastMarket string
	lastAuth   string
	mu         sync.Mutex
}

func newFakeSpotify(t *testing.T) *fakeSpotify {
	t.Helper()
	f := &fakeSpotify{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		if !ok || id != "client" || secret != "secret" || f.badSecret {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_client","error_description":"Invalid client"}`)
			return
		}
		n := f.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":3600}`, n)
	})
	mux.HandleFunc("/v1/tracks/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.lastMarket = r.URL.Query().Get("market")
		f.lastAuth = r.Header.Get("Authorization")
		f.mu.Unlock()
		if f.rejectNext.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/v1/tracks/abc123":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, trackJSON)
		case "/v1/tracks/boom":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, `{"error":{"status":502,"message":"upstream"}}`)
		case "/v1/tracks/busy":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	mux.HandleFunc("/v1/albums/rec1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, albumJSON)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeSpotify) client(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     f.server.URL + "/api/token",
		BaseURL:      f.server.URL + "/v1",
		HTTPClient:   f.server.Client(),
	})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewClient(nil, Options{ClientID: "client"})
	assert.Error(t, err)
}

func TestClientAuthenticate(t *testing.T) {
	t.Parallel()

	f := newFakeSpotify(t)
	require.NoError(t, f.client(t).Authenticate(context.Background()))
	assert.Equal(t, int32(1), f.tokenCalls.Load())
}

func TestClientAuthenticateSeedsSharedToken(t *testing.T) {
	t.Parallel()

	f := newFakeSpotify(t)
	c := f.client(t)
	require.NoError(t, c.Authenticate(context.Background()))

	_, err := c.Track(context.Background(), "abc123", "SE")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.tokenCalls.Load())
}

func TestClientAuthenticateHonoursDeadline(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c, err := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/api/token",
		BaseURL:      srv.URL + "/v1",
		HTTPClient:   srv.Client(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = c.Authenticate(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClientAuthenticateRejected(t *testing.T) {
	t.Parallel()

	f := newFakeSpotify(t)
	f.badSecret = true
	err := f.client(t).Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClientTrack(t *testing.T) {
	t.Parallel()

	f := newFakeSpotify(t)
	c := f.client(t)

	item, err := c.Track(context.Background(), "abc123", "SE")
	require.NoError(t, err)

	assert.Equal(t, linkscan.KindTrack, item.Kind)
	assert.Equal(t, "Song", item.Name)
	assert.Equal(t, "https://open.spotify.com/track/abc123", item.URL)
	assert.Equal(t, Collection{Name: "Record", URL: "https://open.spotify.com/album/rec1", ReleaseDate: "2021-05-01"}, item.Collection)
	require.Len(t, item.Images, 2)
	assert.Equal(t, "https://i.scdn.co/image/big", item.Images[0].URL)
	assert.Equal(t, []Contributor{
		{Name: "First", URL: "https://open.spotify.com/artist/a1"},
		{Name: "Second", URL: "https://open.spotify.com/artist/a2"},
	}, item.Contributors)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, "SE", f.lastMarket)
	assert.Equal(t, "Bearer tok-1", f.lastAuth)
}

func TestClientAlbum(t *testing.T) {
	t.Parallel()

	f := newFakeSpotify(t)
	item, err := f.client(t).Album(context.Background(), "rec1", "")
	require.NoError(t, err)

	assert.Equal(t, linkscan.KindAlbum, item.Kind)
	assert.Equal(t, "Record", item.Name)
	assert.Equal(t, 11, item.TrackCount)
	assert.Empty(t, item.Images)
	assert.Equal(t, "2021", item.Collection.ReleaseDate)
}

func TestClientErrors(t *testing.T) {
	t.Parallel()

	f := newFakeSpotify(t)
	c := f.client(t)
	ctx := context.Background()

	_, err := c.Track(ctx, "missing", "SE")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Track(ctx, "busy", "SE")
	assert.ErrorIs(t, err, ErrRateLimited)

	_, err = c.Track(ctx, "boom", "SE")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
	assert.Equal(t, "upstream", statusErr.Message)

	_, err = c.Fetch(ctx, linkscan.Kind("playlist"), "x", "SE")
	assert.Error(t, err)
}

func TestClientRefreshesTokenAfterUnauthorized(t *testing.T) {
	t.Parallel()

	f := newFakeSpotify(t)
	c := f.client(t)
	ctx := context.Background()

	f.rejectNext.Store(true)
	_, err := c.Track(ctx, "abc123", "SE")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = c.Track(ctx, "abc123", "SE")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.tokenCalls.Load())
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, "Bearer tok-2", f.lastAuth)
}

func TestClientConcurrentFetchesShareToken(t *testing.T) {
	t.Parallel()

	f := newFakeSpotify(t)
	c := f.client(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Track(context.Background(), "abc123", "SE")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), f.tokenCalls.Load())
}

func TestClientBreakerOpens(t *testing.T) {
	t.Parallel()

	f := newFakeSpotify(t)
	c, err := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     f.server.URL + "/api/token",
		BaseURL:      f.server.URL + "/v1",
		HTTPClient:   f.server.Client(),
		Breaker:      BreakerConfig{MaxRequests: 1, MinRequests: 2, FailureRatio: 0.5},
	})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.Track(ctx, "boom", "SE")
		require.Error(t, err)
	}
	_, err = c.Track(ctx, "abc123", "SE")
	assert.Equal(t, "breaker_open", fetchStatus(err))
	assert.Equal(t, healthcheck.StatusError, c.Check(ctx).Status)
}

func TestClientCheckHealthy(t *testing.T) {
	t.Parallel()

	c := newFakeSpotify(t).client(t)
	res := c.Check(context.Background())
	assert.Equal(t, healthcheck.StatusOK, res.Status)
	assert.Equal(t, "catalog.spotify", res.ID)
}

func TestFetchStatusTreatsNotFoundAsHealthy(t *testing.T) {
	t.Parallel()

	f := newFakeSpotify(t)
	c, err := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     f.server.URL + "/api/token",
		BaseURL:      f.server.URL + "/v1",
		HTTPClient:   f.server.Client(),
		Breaker:      BreakerConfig{MaxRequests: 1, MinRequests: 2, FailureRatio: 0.5},
	})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := c.Track(ctx, "missing", "SE")
		require.ErrorIs(t, err, ErrNotFound)
	}
	_, err = c.Track(ctx, "abc123", "SE")
	assert.NoError(t, err)
}
