// Package hexapi talks to the hex.pm listing API and the repository file host.
package hexapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hexmirror/internal/models"
)

const userAgent = "hexmirror/1.0"

type Client struct {
	apiURL     string
	repoURL    string
	pageSize   int
	timeout    time.Duration
	httpClient *http.Client
}

type Option func(*Client)

// WithPageSize makes a page shorter than n end the listing. With n == 0 only an
// empty page does.
func WithPageSize(n int) Option {
	return func(c *Client) { c.pageSize = n }
}

// WithRequestTimeout bounds each listing page request. Zero means no bound
// beyond the caller's context.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(apiURL, repoURL string, opts ...Option) *Client {
	c := &Client{
		apiURL:  strings.TrimRight(apiURL, "/"),
		repoURL: strings.TrimRight(repoURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        200,
				MaxIdleConnsPerHost: 200,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) RepoURL() string {
	return c.repoURL
}

// FetchListing walks /packages?page=N from page 1 until the end of the listing
// and returns the raw entries in listing order. Any transport or status error
// fails the whole walk.
func (c *Client) FetchListing(ctx context.Context) ([]json.RawMessage, error) {
	var all []json.RawMessage
	for page := 1; ; page++ {
		entries, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		slog.Debug("fetched listing page", "page", page, "entries", len(entries))
		if len(entries) == 0 {
			break
		}
		all = append(all, entries...)
		if c.pageSize > 0 && len(entries) < c.pageSize {
			break
		}
	}
	return all, nil
}

// FetchManifest builds the complete manifest from the live listing.
func (c *Client) FetchManifest(ctx context.Context) (*models.Manifest, error) {
	entries, err := c.FetchListing(ctx)
	if err != nil {
		return nil, err
	}
	return BuildManifest(c.repoURL, entries)
}

func (c *Client) fetchPage(ctx context.Context, page int) ([]json.RawMessage, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	url := c.apiURL + "/packages?page=" + strconv.Itoa(page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &models.ManifestTransportError{URL: url, Page: page, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.ManifestTransportError{URL: url, Page: page, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &models.ManifestTransportError{URL: url, Page: page, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.ManifestTransportError{URL: url, Page: page, Err: err}
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, &models.ManifestDecodeError{Page: page, Index: -1, Reason: "page is not a JSON array", Err: err}
	}
	return entries, nil
}

// Fetch downloads one artifact. Failures are *models.ArtifactFetchError.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &models.ArtifactFetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.ArtifactFetchError{URL: url, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &models.ArtifactFetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Transient:  isTransientStatus(resp.StatusCode),
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.ArtifactFetchError{URL: url, Transient: true, Err: fmt.Errorf("reading body: %w", err)}
	}
	return data, nil
}

// 408 and 429 are the only 4xx statuses that say "try again later".
func isTransientStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}
