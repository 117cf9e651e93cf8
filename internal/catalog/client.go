// Package catalog talks to the Spotify Web API and turns catalog references
// into item metadata.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/memohai/trackcard/internal/healthcheck"
	"github.com/memohai/trackcard/internal/linkscan"
	"github.com/memohai/trackcard/internal/metrics"
)

const (
	DefaultTokenURL = "https://accounts.spotify.com/api/token"
	DefaultBaseURL  = "https://api.spotify.com/v1"

	maxResponseBytes = 1 << 20
)

type Options struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	BaseURL      string
	HTTPClient   *http.Client
	// RequestsPerSecond paces all catalog calls made by the process; zero
	// disables pacing.
	RequestsPerSecond float64
	Burst             int
	Breaker           BreakerConfig
}

// Client is a Spotify Web API client authenticated with the client
// credentials grant. It is safe for concurrent use; token retrieval and
// refresh are serialised.
type Client struct {
	logger      *slog.Logger
	http        *http.Client
	baseURL     string
	credentials *clientcredentials.Config
	tokenCtx    context.Context
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker

	mu     sync.Mutex
	tokens oauth2.TokenSource
}

func NewClient(log *slog.Logger, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.ClientID) == "" || strings.TrimSpace(opts.ClientSecret) == "" {
		return nil, errors.New("catalog client id and secret are required")
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "catalog"))

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = linkscan.MaxReferences
	}

	creds := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)

	return &Client{
		logger:      log,
		http:        httpClient,
		baseURL:     baseURL,
		credentials: creds,
		tokenCtx:    tokenCtx,
		limiter:     rate.NewLimiter(limit, burst),
		breaker:     newBreaker("spotify", opts.Breaker, log),
		tokens:      creds.TokenSource(tokenCtx),
	}, nil
}

// Authenticate obtains an access token so that bad credentials surface at
// startup rather than on the first message.
// The token request is bound to ctx; the token it returns seeds the shared
// source used by later fetches.
func (c *Client) Authenticate(ctx context.Context) error {
	tok, err := c.credentials.Token(context.WithValue(ctx, oauth2.HTTPClient, c.http))
	if err != nil {
		return tokenError(err)
	}
	c.mu.Lock()
	c.tokens = oauth2.ReuseTokenSource(tok, c.credentials.TokenSource(c.tokenCtx))
	c.mu.Unlock()
	c.logger.Info("catalog authenticated")
	return nil
}

// Fetch looks up one track or album.
func (c *Client) Fetch(ctx context.Context, kind linkscan.Kind, id, market string) (Item, error) {
	start := time.Now()
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx, kind, id, market)
	})
	metrics.CatalogFetchDuration.WithLabelValues(string(kind)).Observe(float64(time.Since(start).Milliseconds()))
	metrics.CatalogFetchesTotal.WithLabelValues(string(kind), fetchStatus(err)).Inc()
	if err != nil {
		return Item{}, err
	}
	return res.(Item), nil
}

func (c *Client) Track(ctx context.Context, id, market string) (Item, error) {
	return c.Fetch(ctx, linkscan.KindTrack, id, market)
}

func (c *Client) Album(ctx context.Context, id, market string) (Item, error) {
	return c.Fetch(ctx, linkscan.KindAlbum, id, market)
}

func (c *Client) get(ctx context.Context, kind linkscan.Kind, id, market string) (Item, error) {
	var collection string
	switch kind {
	case linkscan.KindTrack:
		collection = "tracks"
	case linkscan.KindAlbum:
		collection = "albums"
	default:
		return Item{}, fmt.Errorf("unsupported catalog kind %q", kind)
	}
	if id == "" {
		return Item{}, ErrNotFound
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Item{}, err
	}
	tok, err := c.token()
	if err != nil {
		return Item{}, err
	}

	endpoint := c.baseURL + "/" + collection + "/" + url.PathEscape(id)
	if market != "" {
		endpoint += "?" + url.Values{"market": {market}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Item{}, err
	}
	req.Header.Set("Accept", "application/json")
	tok.SetAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return Item{}, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()
	body := io.LimitReader(resp.Body, maxResponseBytes)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusBadRequest:
		return Item{}, ErrNotFound
	case http.StatusUnauthorized:
		c.resetToken()
		return Item{}, ErrUnauthorized
	case http.StatusTooManyRequests:
		return Item{}, ErrRateLimited
	default:
		var apiErr errorObject
		_ = json.NewDecoder(body).Decode(&apiErr)
		return Item{}, &StatusError{Code: resp.StatusCode, Message: apiErr.Error.Message}
	}

	switch kind {
	case linkscan.KindAlbum:
		var album albumObject
		if err := json.NewDecoder(body).Decode(&album); err != nil {
			return Item{}, fmt.Errorf("decode album: %w", err)
		}
		return album.item(), nil
	default:
		var track trackObject
		if err := json.NewDecoder(body).Decode(&track); err != nil {
			return Item{}, fmt.Errorf("decode track: %w", err)
		}
		return track.item(), nil
	}
}

// token returns a valid access token, refreshing it when expired. The lock
// keeps concurrent runs from racing on the refresh.
func (c *Client) token() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tok, err := c.tokens.Token()
	if err != nil {
		return nil, tokenError(err)
	}
	return tok, nil
}

func tokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil &&
		(re.Response.StatusCode == http.StatusBadRequest || re.Response.StatusCode == http.StatusUnauthorized) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, re.ErrorCode)
	}
	return fmt.Errorf("catalog token: %w", err)
}

// resetToken drops the cached token after the API rejected it.
func (c *Client) resetToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = c.credentials.TokenSource(c.tokenCtx)
}

func fetchStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}

// Check reports the breaker state; an open breaker means cards are not
// being produced.
func (c *Client) Check(_ context.Context) healthcheck.CheckResult {
	res := healthcheck.CheckResult{ID: "catalog.spotify", Summary: "breaker " + c.breaker.State().String()}
	switch c.breaker.State() {
	case gobreaker.StateClosed:
		res.Status = healthcheck.StatusOK
	case gobreaker.StateHalfOpen:
		res.Status = healthcheck.StatusWarn
	default:
		res.Status = healthcheck.StatusError
	}
	return res
}
