package httprules

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IvanBrykalov/adplacer/failure"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newClient(t *testing.T, h http.HandlerFunc, mut func(*Options)) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opt := Options{BaseURL: srv.URL + "/positioning", UserAgent: "adplacer-test"}
	if mut != nil {
		mut(&opt)
	}
	c, err := New(opt)
	require.NoError(t, err)
	return c
}

func TestClient_GetSuccess(t *testing.T) {
	t.Parallel()
	var gotID, gotReqID, gotUA, gotPath string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotID = r.URL.Query().Get("id")
		gotReqID = r.Header.Get(RequestIDHeader)
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"repeating":{"interval":3}}`))
	}, nil)

	b, err := c.Get(context.Background(), "home feed")
	require.NoError(t, err)
	require.JSONEq(t, `{"repeating":{"interval":3}}`, string(b))
	require.Equal(t, "/positioning", gotPath)
	require.Equal(t, "home feed", gotID)
	require.Equal(t, "adplacer-test", gotUA)
	_, err = uuid.Parse(gotReqID)
	require.NoError(t, err, "request id must be a uuid")
}

func TestClient_StatusClassification(t *testing.T) {
	t.Parallel()
	cases := []struct {
		status int
		want   failure.Reason
	}{
		{http.StatusNoContent, failure.NoFill},
		{http.StatusInternalServerError, failure.ServerError},
		{http.StatusServiceUnavailable, failure.ServerError},
		{http.StatusNotFound, failure.InvalidResponse},
		{http.StatusFound, failure.InvalidResponse},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			t.Parallel()
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}, func(o *Options) {
				o.HTTPClient = &http.Client{
					CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
				}
			})
			_, err := c.Get(context.Background(), "x")
			require.Error(t, err)
			require.Equal(t, tc.want, failure.Classify(err))
		})
	}
}

func TestClient_ConnectionError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Options{BaseURL: url})
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "x")
	require.Error(t, err)
	require.Equal(t, failure.ConnectionError, failure.Classify(err))
}

func TestClient_CachesParseableBodies(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	body := atomic.Value{}
	body.Store(`{"error":"WARMING_UP"}`)
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(body.Load().(string)))
	}, func(o *Options) { o.CacheTTL = time.Minute })

	// Warm-up notices are never cached.
	_, err := c.Get(context.Background(), "x")
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, int64(2), hits.Load())

	body.Store(`{"fixed":[{"position":1}]}`)
	_, err = c.Get(context.Background(), "x")
	require.NoError(t, err)
	b, err := c.Get(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, int64(3), hits.Load())
	require.JSONEq(t, `{"fixed":[{"position":1}]}`, string(b))

	c.Purge()
	_, err = c.Get(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, int64(4), hits.Load())
}

// Concurrent requests for one context share a single HTTP call.
func TestClient_CoalescesConcurrentRequests(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	release := make(chan struct{})
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"repeating":{"interval":2}}`))
	}, nil)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := c.Get(context.Background(), "same")
			return err
		})
	}
	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	require.NoError(t, g.Wait())
	require.Equal(t, int64(1), hits.Load())
}

func TestClient_FetchRulesAsync(t *testing.T) {
	t.Parallel()
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, nil)

	done := make(chan error, 1)
	c.FetchRules(context.Background(), "x", func(_ []byte, err error) { done <- err })
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("FetchRules never completed")
	}
}

func TestClient_CancelledContext(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Get(ctx, "x")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_Validates(t *testing.T) {
	t.Parallel()
	_, err := New(Options{})
	require.Error(t, err)
	_, err = New(Options{BaseURL: "ftp://example.com"})
	require.Error(t, err)
	_, err = New(Options{BaseURL: "https://example.com/rules"})
	require.NoError(t, err)
}
