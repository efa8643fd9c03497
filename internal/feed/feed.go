/*
Package feed downloads the economic-calendar feed with retry logic and an
on-disk cache fallback, and validates payloads before they reach the event
model.
*/
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	appLog "fxcal/internal/log"
	"fxcal/internal/model"
)

const (
	DefaultFeedURL = "https://nfs.faireconomy.media/ff_calendar_thisweek.json"
	DefaultTimeout = 15 * time.Second
	DefaultRetries = 3
	DefaultBackoff = 2 * time.Second
)

// requiredKeys are the fields every feed event object must carry.
var requiredKeys = []string{"country", "date", "impact", "title"}

// ErrFetchInFlight is returned when Fetch is called while another fetch on
// the same client is still running.
var ErrFetchInFlight = errors.New("calendar fetch already in flight")

// TransportError reports a network, timeout, or HTTP-status failure for a
// single attempt. Transport failures are retried up to the configured limit.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("calendar request failed: %v", e.Err)
	}
	return fmt.Sprintf("calendar request failed: status %d", e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ExhaustedError reports that every attempt failed and no usable cache was
// available. The last underlying failure is attached as the cause.
type ExhaustedError struct {
	Err error
}

func (e *ExhaustedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to download calendar feed and no cached data was available: %v", e.Err)
	}
	return "failed to download calendar feed and no cached data was available"
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Doer issues a single HTTP request; satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetchResult describes the outcome of one fetch or cache load.
type FetchResult struct {
	// Events holds the validated raw feed objects, pre-model.
	Events    []map[string]any
	FromCache bool
	// Source is the feed URL for fresh results, the cache file path for
	// cache-fallback results.
	Source string
	// FetchedAt is the retrieval time (UTC) for fresh results, the cache
	// file's modification time for cached ones.
	FetchedAt time.Time
}

// Options configures a Client. Use DefaultOptions as a starting point;
// Retries and Timeout are required and validated at construction so a zero
// value does not silently disable retrying.
type Options struct {
	BaseURL   string
	CachePath string
	Timeout   time.Duration
	Retries   int
	// Backoff is the base wait between attempts; attempt n waits
	// Backoff * n. Zero disables waiting, which tests rely on.
	Backoff time.Duration
	// HTTP overrides the transport; nil means an *http.Client with the
	// configured timeout.
	HTTP Doer
}

// DefaultOptions returns Options wired with the default feed endpoint, cache
// location, and retry policy.
func DefaultOptions() Options {
	return Options{
		BaseURL:   DefaultFeedURL,
		CachePath: filepath.Join("data", "latest_calendar.json"),
		Timeout:   DefaultTimeout,
		Retries:   DefaultRetries,
		Backoff:   DefaultBackoff,
	}
}

// FetchOptions controls one Fetch call.
type FetchOptions struct {
	// UseCacheOnFail falls back to the on-disk cache once all attempts fail.
	UseCacheOnFail bool
	// PersistCache writes the validated payload to the cache file on success.
	PersistCache bool
}

// Client downloads the calendar feed and manages the on-disk cache. At most
// one fetch may be in flight per client; a second concurrent call is
// rejected with ErrFetchInFlight rather than reordered around the running
// fetch's cache write.
type Client struct {
	baseURL   string
	cachePath string
	retries   int
	backoff   time.Duration
	http      Doer

	// inFlight is held for the duration of a fetch, including the cache
	// write. Buffered size 1 so acquisition is a non-blocking try.
	inFlight chan struct{}
}

// New validates the options and builds a Client.
func New(opts Options) (*Client, error) {
	if opts.Retries < 1 {
		return nil, errors.New("feed: retries must be >= 1")
	}
	if opts.Timeout <= 0 {
		return nil, errors.New("feed: timeout must be > 0")
	}
	if opts.BaseURL == "" {
		return nil, errors.New("feed: base URL is empty")
	}
	if opts.CachePath == "" {
		// Caller should set this explicitly; fall back to the default so
		// development runs still have somewhere to cache.
		opts.CachePath = DefaultOptions().CachePath
	}
	if opts.Backoff < 0 {
		return nil, errors.New("feed: backoff must be >= 0")
	}
	httpClient := opts.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL:   opts.BaseURL,
		cachePath: opts.CachePath,
		retries:   opts.Retries,
		backoff:   opts.Backoff,
		http:      httpClient,
		inFlight:  make(chan struct{}, 1),
	}, nil
}

// CachePath returns the configured cache file location.
func (c *Client) CachePath() string { return c.cachePath }

// Fetch downloads and validates the feed, retrying with linear backoff. On
// success the payload is cached (when opts.PersistCache) and returned with
// FromCache=false. When every attempt fails, the cache is consulted (when
// opts.UseCacheOnFail); a missing or unusable cache surfaces an
// ExhaustedError wrapping the last underlying failure.
func (c *Client) Fetch(ctx context.Context, opts FetchOptions) (*FetchResult, error) {
	select {
	case c.inFlight <- struct{}{}:
	default:
		return nil, ErrFetchInFlight
	}
	defer func() { <-c.inFlight }()

	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		events, err := c.download(ctx)
		if err == nil {
			if opts.PersistCache {
				if werr := c.writeCache(events); werr != nil {
					// A failed cache write does not spoil a good fetch.
					appLog.Error("calendar cache write failed", werr, "path", c.cachePath)
				}
			}
			return &FetchResult{
				Events:    events,
				FromCache: false,
				Source:    c.baseURL,
				FetchedAt: time.Now().UTC(),
			}, nil
		}

		lastErr = err
		appLog.Error("calendar fetch attempt failed", err,
			"attempt", attempt, "retries", c.retries)

		if attempt < c.retries {
			if serr := sleepCtx(ctx, c.backoff*time.Duration(attempt)); serr != nil {
				lastErr = serr
				break
			}
		}
	}

	if opts.UseCacheOnFail {
		if cached := c.LoadCache(); cached != nil {
			appLog.Info("using cached calendar payload", "path", c.cachePath)
			return cached, nil
		}
	}

	return nil, &ExhaustedError{Err: lastErr}
}

// LoadCache reads and validates the cached payload. It is independently
// callable (e.g. at startup before any network attempt). Any I/O, JSON, or
// validation failure yields nil — "no cache available" — never an error, so
// callers can decide to fall back to a fresh fetch.
func (c *Client) LoadCache() *FetchResult {
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		if !os.IsNotExist(err) {
			appLog.Error("failed to read calendar cache", err, "path", c.cachePath)
		}
		return nil
	}

	events, err := validatePayload(data)
	if err != nil {
		appLog.Error("cached calendar payload is unusable", err, "path", c.cachePath)
		return nil
	}

	var fetchedAt time.Time
	if info, err := os.Stat(c.cachePath); err == nil {
		fetchedAt = info.ModTime().UTC()
	}

	return &FetchResult{
		Events:    events,
		FromCache: true,
		Source:    c.cachePath,
		FetchedAt: fetchedAt,
	}
}

func (c *Client) download(ctx context.Context) ([]map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	return validatePayload(body)
}

// validatePayload enforces the feed contract: a top-level JSON array of
// objects, each carrying at least the required fields with an ISO-8601
// "date" string. Any violation fails the whole payload; there is no partial
// acceptance. The same rules apply to fresh responses and cached files.
func validatePayload(data []byte) ([]map[string]any, error) {
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &model.ValidationError{Reason: "not valid JSON"}
	}

	arr, ok := payload.([]any)
	if !ok {
		return nil, &model.ValidationError{Reason: "expected a top-level JSON array"}
	}

	validated := make([]map[string]any, 0, len(arr))
	for i, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, &model.ValidationError{Reason: fmt.Sprintf("event at index %d is not an object", i)}
		}
		for _, key := range requiredKeys {
			if _, ok := obj[key]; !ok {
				return nil, &model.ValidationError{Reason: fmt.Sprintf("event at index %d missing required field %q", i, key)}
			}
		}
		dateValue, ok := obj["date"].(string)
		if !ok {
			return nil, &model.ValidationError{Reason: fmt.Sprintf("event at index %d: date must be an ISO-8601 string", i)}
		}
		if _, err := model.ParseTimestamp(dateValue); err != nil {
			return nil, fmt.Errorf("event at index %d: %w", i, err)
		}
		validated = append(validated, obj)
	}
	return validated, nil
}

// writeCache persists the validated payload as pretty-printed UTF-8 JSON.
// The write goes to a temp file in the same directory followed by a rename,
// so a concurrent reader never observes a torn file.
func (c *Client) writeCache(events []map[string]any) error {
	dir := filepath.Dir(c.cachePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".fxcal-cache-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}

	return os.Rename(tmpName, c.cachePath)
}

// sleepCtx waits for the given duration unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
