// Package remote fetches stories from the rate-limited upstream site.
// Meta comes from a JSON endpoint and data from an HTML download
// endpoint; both are throttled so one updater can never flood the site.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/buger/jsonparser"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/jonathan/story-archiver/internal/fetchers"
	"github.com/jonathan/story-archiver/internal/story"
)

// DefaultTimeout is the per-request HTTP timeout.
const DefaultTimeout = 60 * time.Second

// DefaultUserAgent identifies the archiver to the remote site.
const DefaultUserAgent = "story-archiver/1.0"

// defaultInterval spaces requests when no rate is configured.
const defaultInterval = 2 * time.Second

// maxRetries bounds transient-error retries per request. Hard failures
// beyond this bubble up to the update task's own backoff.
const maxRetries = 3

// MetaVerifier checks fetched meta against the expected schema.
type MetaVerifier interface {
	Verify(meta story.Meta) error
}

// Options configures the remote fetcher.
type Options struct {
	// BaseURL is the site root, e.g. "https://fiction.example.com".
	BaseURL string

	// Token is an optional bearer token for authenticated endpoints.
	Token string

	Timeout   time.Duration
	UserAgent string

	// Interval is the minimum spacing between requests.
	Interval time.Duration

	// Verifier, when set, rejects meta that fails schema verification.
	Verifier MetaVerifier

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Fetcher is the story source for the remote site. Requests are
// sequential by design; the limiter enforces spacing even if a caller
// hammers it.
type Fetcher struct {
	ctx     context.Context
	client  *http.Client
	limiter *rate.Limiter
	opts    Options
	closed  bool
}

// NewFetcher returns a remote fetcher. The context bounds every request
// made through it.
func NewFetcher(ctx context.Context, opts Options) (*Fetcher, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("remote base URL is required")
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Interval == 0 {
		opts.Interval = defaultInterval
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &Fetcher{
		ctx:     ctx,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(opts.Interval), 1),
		opts:    opts,
	}, nil
}

// get performs a throttled GET with bounded retries on transient
// failures. A 403 means the story is hidden or password-protected,
// which is a missing story rather than a broken source.
func (f *Fetcher) get(key int, url string) ([]byte, error) {
	if f.closed {
		return nil, fetchers.NewSourceError(key, "fetcher is closed", nil)
	}

	var body []byte

	operation := func() error {
		if err := f.limiter.Wait(f.ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(f.ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)
		if f.opts.Token != "" {
			req.Header.Set("Authorization", "Bearer "+f.opts.Token)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("HTTP %d %s", resp.StatusCode, resp.Status)
		}
		if resp.StatusCode == http.StatusForbidden {
			return backoff.Permanent(errAccessDenied)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("HTTP %d %s", resp.StatusCode, resp.Status))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries)
	if err := backoff.Retry(operation, backoff.WithContext(policy, f.ctx)); err != nil {
		if err == errAccessDenied {
			return nil, fetchers.NewInvalidStory(key, "access to resource was denied")
		}
		return nil, fetchers.NewSourceError(key, "could not read from server", err)
	}

	return body, nil
}

var errAccessDenied = fmt.Errorf("access denied")

// FetchMeta retrieves story meta from the JSON endpoint. An error
// payload naming an invalid story id maps to a missing story; any other
// error payload is a source problem.
func (f *Fetcher) FetchMeta(key int) (story.Meta, error) {
	url := fmt.Sprintf("%s/api/story.php?story=%d", f.opts.BaseURL, key)
	body, err := f.get(key, url)
	if err != nil {
		return nil, err
	}

	if message, err := jsonparser.GetString(body, "error"); err == nil {
		if message == "Invalid story id" {
			return nil, fetchers.NewInvalidStory(key, "story does not exist")
		}
		return nil, fetchers.NewSourceError(key, message, nil)
	}

	raw, _, _, err := jsonparser.Get(body, "story")
	if err != nil {
		return nil, fetchers.NewSourceError(key, "server did not return a story object", err)
	}

	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fetchers.NewSourceError(key, "server did not return valid JSON", err)
	}

	if f.opts.Verifier != nil {
		if err := f.opts.Verifier.Verify(meta); err != nil {
			return nil, fetchers.NewSourceError(key, "meta failed schema verification", err)
		}
	}

	return meta, nil
}

// FetchData retrieves the rendered story download and checks that it is
// a complete document with at least one chapter heading.
func (f *Fetcher) FetchData(key int) ([]byte, error) {
	url := fmt.Sprintf("%s/story/download/%d/html", f.opts.BaseURL, key)
	data, err := f.get(key, url)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, fetchers.NewInvalidStory(key, "server returned empty response body")
	}
	if !bytes.HasSuffix(bytes.TrimSpace(data), []byte("</html>")) {
		return nil, fetchers.NewSourceError(key, "server returned incomplete response", nil)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fetchers.NewSourceError(key, "server returned unparsable document", err)
	}
	if doc.Find("h1 a[name]").Length() == 0 {
		return nil, fetchers.NewInvalidStory(key, "server did not return any chapters")
	}

	return data, nil
}

// Prefetch fetches meta eagerly but defers the heavyweight download.
func (f *Fetcher) Prefetch() fetchers.Prefetch {
	return fetchers.Prefetch{Meta: true, Data: false}
}

// Flavors identifies stories fetched live from the site.
func (f *Fetcher) Flavors() []story.Flavor {
	return []story.Flavor{
		story.SourceRemote,
		story.FormatHTML,
		story.MetaAlpha,
		story.PurityDirty,
	}
}

// Fetch builds a lazy story backed by this fetcher.
func (f *Fetcher) Fetch(key int) (*story.Story, error) {
	return fetchers.Fetch(f, key)
}

// Close marks the fetcher unusable. There are no persistent
// connections to release beyond the client's idle pool.
func (f *Fetcher) Close() error {
	f.closed = true
	f.client.CloseIdleConnections()
	return nil
}
