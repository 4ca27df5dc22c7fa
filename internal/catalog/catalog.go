package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"snipebot/pkg/logx"
)

// Config points the client at the catalog endpoint.
type Config struct {
	BaseURL string
	Year    int
	Term    string
	Campus  string

	// CacheTTL is the freshness window for one fetched payload. A Fetch
	// within the window returns the cached payload without a round trip.
	CacheTTL time.Duration

	// Timeout bounds one HTTP request.
	Timeout time.Duration
}

// Client fetches and time-caches the full course list.
//
// The cache is advisory: it saves round trips against a scan interval much
// shorter than the upstream's rate of change, but it is never a source of
// truth and a failed fetch does not extend it.
type Client struct {
	log  logx.Logger
	http *http.Client

	mu        sync.Mutex
	cfg       Config
	cached    []Course
	fetchedAt time.Time

	fetches  atomic.Uint64 // network round trips issued
	failures atomic.Uint64 // failed round trips
}

func New(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 60 * time.Second
	}
	return &Client{
		log:  log,
		http: &http.Client{Timeout: timeout},
		cfg:  cfg,
	}
}

// Apply swaps endpoint parameters at runtime (config hot reload) and drops
// the cached payload, since it may belong to a different term.
func (c *Client) Apply(cfg Config) {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 60 * time.Second
	}
	c.mu.Lock()
	c.cfg = cfg
	c.cached = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

// Fetch returns the course list, from cache when fresh. Any transport,
// status or decode failure is an error: callers must treat it as "no data
// this cycle", never as an empty catalog.
func (c *Client) Fetch(ctx context.Context) ([]Course, error) {
	c.mu.Lock()
	cfg := c.cfg
	if c.cached != nil && time.Since(c.fetchedAt) < cfg.CacheTTL {
		out := c.cached
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	courses, err := c.fetchRemote(ctx, cfg)
	if err != nil {
		c.failures.Add(1)
		return nil, err
	}

	c.mu.Lock()
	c.cached = courses
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return courses, nil
}

func (c *Client) fetchRemote(ctx context.Context, cfg Config) ([]Course, error) {
	c.fetches.Add(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(cfg), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("catalog fetch: http %d", resp.StatusCode)
	}

	var courses []Course
	if err := json.NewDecoder(resp.Body).Decode(&courses); err != nil {
		return nil, fmt.Errorf("catalog decode: %w", err)
	}
	return courses, nil
}

func (c *Client) endpoint(cfg Config) string {
	q := url.Values{}
	if cfg.Year != 0 {
		q.Set("year", strconv.Itoa(cfg.Year))
	}
	if cfg.Term != "" {
		q.Set("term", cfg.Term)
	}
	if cfg.Campus != "" {
		q.Set("campus", cfg.Campus)
	}
	if len(q) == 0 {
		return cfg.BaseURL
	}
	return cfg.BaseURL + "?" + q.Encode()
}

// DisplayName resolves a human-readable label for a course index by scanning
// the (possibly cached) catalog. It never fails: when the index is unknown
// or the catalog is unavailable it returns a placeholder embedding the raw
// index.
func (c *Client) DisplayName(ctx context.Context, courseIndex string) string {
	courses, err := c.Fetch(ctx)
	if err != nil {
		c.log.Debug("display name lookup without catalog", logx.String("index", courseIndex), logx.Err(err))
		return unknownLabel(courseIndex)
	}
	for _, course := range courses {
		for _, sec := range course.Sections {
			if sec.Index == courseIndex {
				return fmt.Sprintf("%s %s - %s", course.Subject, course.CourseNumber, course.Title)
			}
		}
	}
	return unknownLabel(courseIndex)
}

// Counters reports network round trips and failures for the status command.
func (c *Client) Counters() (fetches, failures uint64) {
	return c.fetches.Load(), c.failures.Load()
}

func unknownLabel(courseIndex string) string {
	return fmt.Sprintf("Unknown course (%s)", courseIndex)
}

// UnmarshalJSON tolerates numeric section indexes; the upstream feed is not
// consistent about quoting them.
func (s *Section) UnmarshalJSON(b []byte) error {
	type section Section
	aux := struct {
		Index json.RawMessage `json:"index"`
		*section
	}{section: (*section)(s)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	s.Index = rawToString(aux.Index)
	return nil
}

func rawToString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var out string
		if err := json.Unmarshal(raw, &out); err == nil {
			return out
		}
	}
	return string(raw)
}
