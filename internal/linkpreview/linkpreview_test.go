package linkpreview

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prioritylist/api/internal/logger"
)

const ogPage = `<!doctype html>
<html><head>
<title>Plain title</title>
<meta property="og:title" content="Open Graph title">
<meta name="description" content="meta description">
<meta property="og:image" content="/img/card.png">
</head><body><img src="/img/other.png"></body></html>`

func htmlHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}
}

func testFetcher() *Fetcher {
	return NewFetcher(Options{Timeout: time.Second, AllowPrivate: true})
}

func TestFetchPrefersOpenGraph(t *testing.T) {
	srv := httptest.NewServer(htmlHandler(ogPage))
	defer srv.Close()

	got, err := testFetcher().Fetch(context.Background(), srv.URL+"/article")
	require.NoError(t, err)

	assert.Equal(t, "Open Graph title", got.Title)
	require.NotNil(t, got.Description)
	assert.Equal(t, "meta description", *got.Description)
	require.NotNil(t, got.ImageURL)
	assert.Equal(t, srv.URL+"/img/card.png", *got.ImageURL)
}

func TestFetchFallsBackToTitleAndFirstImage(t *testing.T) {
	srv := httptest.NewServer(htmlHandler(`<html><head><title> Hello </title></head><body><img src="a.png"><img src="b.png"></body></html>`))
	defer srv.Close()

	got, err := testFetcher().Fetch(context.Background(), srv.URL+"/dir/page")
	require.NoError(t, err)

	assert.Equal(t, "Hello", got.Title)
	assert.Nil(t, got.Description)
	require.NotNil(t, got.ImageURL)
	assert.Equal(t, srv.URL+"/dir/a.png", *got.ImageURL)
}

func TestFetchWithoutTitleFails(t *testing.T) {
	srv := httptest.NewServer(htmlHandler(`<html><body><p>no head</p></body></html>`))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrNoTitle)
}

func TestFetchNonHTMLFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrNoTitle)
}

func TestFetchRejectsBadURLs(t *testing.T) {
	f := testFetcher()
	for _, raw := range []string{"", "not a url", "ftp://example.com/x", "/relative"} {
		_, err := f.Fetch(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
}

func TestFetchRefusesLoopbackByDefault(t *testing.T) {
	srv := httptest.NewServer(htmlHandler(ogPage))
	defer srv.Close()

	_, err := NewFetcher(Options{}).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrBlockedHost)
}

func TestFetchFollowsSameHostRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", htmlHandler(ogPage))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := testFetcher().Fetch(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, "Open Graph title", got.Title)
}

func TestFetchBlocksCrossHostRedirect(t *testing.T) {
	other := httptest.NewServer(htmlHandler(ogPage))
	defer other.Close()

	// 127.0.0.1 and localhost are different hostnames.
	target := strings.Replace(other.URL, "127.0.0.1", "localhost", 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target, http.StatusFound)
	}))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrRedirectBlocked)
}

func TestRedirectAllowed(t *testing.T) {
	f := NewFetcher(Options{})
	assert.True(t, f.redirectAllowed("example.com", "example.com"))
	assert.True(t, f.redirectAllowed("example.com", "www.example.com"))
	assert.True(t, f.redirectAllowed("www.example.com", "example.com"))
	assert.True(t, f.redirectAllowed("youtu.be", "www.youtube.com"))
	assert.False(t, f.redirectAllowed("example.com", "evil.com"))
}

func TestFetchTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	f := NewFetcher(Options{Timeout: 50 * time.Millisecond, AllowPrivate: true})
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}

type countingFetcher struct {
	calls   int
	preview Preview
	err     error
}

func (c *countingFetcher) Fetch(context.Context, string) (Preview, error) {
	c.calls++
	return c.preview, c.err
}

func TestServiceCachesInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	desc := "cached"
	f := &countingFetcher{preview: Preview{Title: "T", Description: &desc}}
	svc := NewService(f, NewRedisCache(client, time.Minute), logger.Nop())
	ctx := context.Background()

	first, err := svc.Preview(ctx, "https://example.com")
	require.NoError(t, err)
	second, err := svc.Preview(ctx, "https://example.com")
	require.NoError(t, err)

	assert.Equal(t, 1, f.calls)
	assert.Equal(t, first, second)

	mr.FastForward(2 * time.Minute)
	_, err = svc.Preview(ctx, "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls)
}

func TestServiceDoesNotCacheFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	f := &countingFetcher{err: ErrNoTitle}
	svc := NewService(f, NewRedisCache(client, time.Minute), logger.Nop())

	for i := 0; i < 2; i++ {
		_, err := svc.Preview(context.Background(), "https://example.com")
		assert.True(t, errors.Is(err, ErrNoTitle))
	}
	assert.Equal(t, 2, f.calls)
}

func TestServiceSurvivesCacheOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	f := &countingFetcher{preview: Preview{Title: "T"}}
	svc := NewService(f, NewRedisCache(client, time.Minute), logger.Nop())

	got, err := svc.Preview(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "T", got.Title)
}

func TestServiceWithoutCache(t *testing.T) {
	f := &countingFetcher{preview: Preview{Title: "T"}}
	svc := NewService(f, nil, nil)

	_, err := svc.Preview(context.Background(), "https://example.com")
	require.NoError(t, err)
	_, err = svc.Preview(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls)
}
