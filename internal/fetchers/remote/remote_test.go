package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/story-archiver/internal/fetchers"
	"github.com/jonathan/story-archiver/internal/story"
)

const validDocument = `<html><body><h1><a name="1"></a>Chapter 1</h1></body></html>`

func testFetcher(t *testing.T, handler http.Handler) *Fetcher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	fetcher, err := NewFetcher(context.Background(), Options{
		BaseURL:    server.URL,
		Token:      "secret-token",
		Interval:   time.Millisecond,
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { fetcher.Close() })
	return fetcher
}

func TestNewFetcher_RequiresBaseURL(t *testing.T) {
	_, err := NewFetcher(context.Background(), Options{})
	assert.ErrorContains(t, err, "base URL is required")
}

func TestFetchMeta(t *testing.T) {
	var gotPath, gotAuth, gotAgent string
	fetcher := testFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.String()
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		fmt.Fprint(w, `{"story": {"id": 129, "title": "A Story"}}`)
	}))

	meta, err := fetcher.FetchMeta(129)
	require.NoError(t, err)

	assert.Equal(t, "/api/story.php?story=129", gotPath)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, DefaultUserAgent, gotAgent)

	id, _ := meta.Int("id")
	assert.Equal(t, int64(129), id)
	title, _ := meta.String("title")
	assert.Equal(t, "A Story", title)
}

func TestFetchMeta_InvalidStoryID(t *testing.T) {
	fetcher := testFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": "Invalid story id"}`)
	}))

	_, err := fetcher.FetchMeta(404)
	assert.True(t, fetchers.IsInvalidStory(err))
}

func TestFetchMeta_OtherError(t *testing.T) {
	fetcher := testFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": "Server is on fire"}`)
	}))

	_, err := fetcher.FetchMeta(1)
	assert.ErrorIs(t, err, fetchers.ErrStorySource)
	assert.ErrorContains(t, err, "Server is on fire")
}

func TestFetchMeta_MissingStoryObject(t *testing.T) {
	fetcher := testFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"unexpected": true}`)
	}))

	_, err := fetcher.FetchMeta(1)
	assert.ErrorIs(t, err, fetchers.ErrStorySource)
}

type rejectingVerifier struct{}

func (rejectingVerifier) Verify(meta story.Meta) error {
	return fmt.Errorf("missing required field")
}

func TestFetchMeta_VerifierRejects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"story": {"id": 1}}`)
	}))
	t.Cleanup(server.Close)

	fetcher, err := NewFetcher(context.Background(), Options{
		BaseURL:    server.URL,
		Interval:   time.Millisecond,
		Verifier:   rejectingVerifier{},
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)
	defer fetcher.Close()

	_, err = fetcher.FetchMeta(1)
	assert.ErrorIs(t, err, fetchers.ErrStorySource)
	assert.ErrorContains(t, err, "schema verification")
}

func TestFetchData(t *testing.T) {
	var gotPath string
	fetcher := testFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, validDocument)
	}))

	data, err := fetcher.FetchData(129)
	require.NoError(t, err)

	assert.Equal(t, "/story/download/129/html", gotPath)
	assert.Equal(t, validDocument, string(data))
}

func TestFetchData_Empty(t *testing.T) {
	fetcher := testFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	_, err := fetcher.FetchData(1)
	assert.True(t, fetchers.IsInvalidStory(err))
}

func TestFetchData_Truncated(t *testing.T) {
	fetcher := testFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><h1><a name="1"></a>Ch`)
	}))

	_, err := fetcher.FetchData(1)
	assert.ErrorIs(t, err, fetchers.ErrStorySource)
	assert.ErrorContains(t, err, "incomplete")
}

func TestFetchData_NoChapters(t *testing.T) {
	fetcher := testFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>Nothing here</p></body></html>`)
	}))

	_, err := fetcher.FetchData(1)
	assert.True(t, fetchers.IsInvalidStory(err))
}

func TestGet_Forbidden(t *testing.T) {
	fetcher := testFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := fetcher.FetchMeta(1)
	assert.True(t, fetchers.IsInvalidStory(err))
	assert.ErrorContains(t, err, "denied")
}

func TestGet_RetriesServerErrors(t *testing.T) {
	attempts := 0
	fetcher := testFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"story": {"id": 1}}`)
	}))

	meta, err := fetcher.FetchMeta(1)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	id, _ := meta.Int("id")
	assert.Equal(t, int64(1), id)
}

func TestGet_NotFoundIsPermanent(t *testing.T) {
	attempts := 0
	fetcher := testFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := fetcher.FetchMeta(1)
	assert.ErrorIs(t, err, fetchers.ErrStorySource)
	assert.Equal(t, 1, attempts)
}

func TestClosedFetcher(t *testing.T) {
	fetcher := testFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	require.NoError(t, fetcher.Close())

	_, err := fetcher.FetchMeta(1)
	assert.ErrorIs(t, err, fetchers.ErrStorySource)
	assert.ErrorContains(t, err, "closed")
}

func TestFlavors(t *testing.T) {
	fetcher := testFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	flavors := story.NewFlavorSet(fetcher.Flavors()...)
	assert.True(t, flavors.Has(story.SourceRemote))
	assert.True(t, flavors.Has(story.FormatHTML))
	assert.True(t, flavors.Has(story.MetaAlpha))
	assert.True(t, flavors.Has(story.PurityDirty))
}
