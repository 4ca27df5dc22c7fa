package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"snipebot/pkg/logx"
)

const samplePayload = `[
	{"title":"Intro to Computer Science","subject":"198","courseNumber":"111",
	 "sections":[{"index":"10101","openStatus":"TRUE"},{"index":10102,"openStatus":"FALSE"}]},
	{"title":"Calculus I","subject":"640","courseNumber":"151",
	 "sections":[{"index":"20201","openStatus":"false"}]}
]`

func newTestClient(t *testing.T, handler http.HandlerFunc, ttl time.Duration) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL, Year: 2026, Term: "9", Campus: "NB", CacheTTL: ttl}, logx.Nop())
	return c, srv
}

func TestFetchDecodesMixedIndexTypes(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePayload))
	}, time.Minute)

	courses, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(courses) != 2 {
		t.Fatalf("courses = %d, want 2", len(courses))
	}
	secs := courses[0].Sections
	if secs[0].Index != "10101" || secs[1].Index != "10102" {
		t.Fatalf("indexes = %q, %q", secs[0].Index, secs[1].Index)
	}
	if !secs[0].Open() || secs[1].Open() {
		t.Fatalf("open flags wrong: %+v", secs)
	}
}

func TestFetchUsesCacheWithinTTL(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(samplePayload))
	}, time.Hour)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := c.Fetch(ctx); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("upstream hits = %d, want 1", n)
	}

	// Apply drops the cache.
	c.Apply(Config{BaseURL: srv.URL, CacheTTL: time.Hour})
	if _, err := c.Fetch(ctx); err != nil {
		t.Fatalf("fetch after apply: %v", err)
	}
	if n := hits.Load(); n != 2 {
		t.Fatalf("upstream hits after apply = %d, want 2", n)
	}
}

func TestFetchErrorIsNotEmptyCatalog(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}, time.Minute)

	courses, err := c.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error on http 502")
	}
	if courses != nil {
		t.Fatalf("courses = %v, want nil on error", courses)
	}
	if _, failures := c.Counters(); failures != 1 {
		t.Fatalf("failures = %d, want 1", failures)
	}
}

func TestFetchErrorDoesNotExtendCache(t *testing.T) {
	t.Parallel()
	var fail atomic.Bool
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if fail.Load() {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(samplePayload))
	}, time.Nanosecond)

	ctx := context.Background()
	if _, err := c.Fetch(ctx); err != nil {
		t.Fatalf("seed fetch: %v", err)
	}
	fail.Store(true)
	if _, err := c.Fetch(ctx); err == nil {
		t.Fatal("expected error while upstream is down")
	}
	fail.Store(false)
	if _, err := c.Fetch(ctx); err != nil {
		t.Fatalf("recovery fetch: %v", err)
	}
	if n := hits.Load(); n != 3 {
		t.Fatalf("upstream hits = %d, want 3", n)
	}
}

func TestEndpointQuery(t *testing.T) {
	t.Parallel()
	var gotQuery string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte("[]"))
	}, time.Minute)

	if _, err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	want := "campus=NB&term=9&year=2026"
	if gotQuery != want {
		t.Fatalf("query = %q, want %q", gotQuery, want)
	}
}

func TestDisplayName(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePayload))
	}, time.Minute)

	ctx := context.Background()
	if got := c.DisplayName(ctx, "10101"); got != "198 111 - Intro to Computer Science" {
		t.Fatalf("display name = %q", got)
	}
	if got := c.DisplayName(ctx, "99999"); got != "Unknown course (99999)" {
		t.Fatalf("unknown display name = %q", got)
	}
}

func TestSectionOpenCasing(t *testing.T) {
	t.Parallel()
	cases := []struct {
		status string
		want   bool
	}{
		{"TRUE", true},
		{"true", true},
		{" True ", true},
		{"FALSE", false},
		{"", false},
		{"open", false},
	}
	for _, tc := range cases {
		if got := (Section{OpenStatus: tc.status}).Open(); got != tc.want {
			t.Errorf("Open(%q) = %t, want %t", tc.status, got, tc.want)
		}
	}
}
