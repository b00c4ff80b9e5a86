// Package seed reads the built-in, read-only idea dataset.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Record is one raw entry of the seed dataset.
type Record struct {
	Title       string `json:"title"`
	Slug        string `json:"slug,omitempty"`
	Note        string `json:"note,omitempty"`
	Description string `json:"description,omitempty"`
}

// Body returns the note text, falling back to the description.
func (r Record) Body() string {
	if r.Note != "" {
		return r.Note
	}
	return r.Description
}

// Source yields the seed records. Implementations must return a fresh slice on
// every call; callers may not rely on being able to mutate the source.
type Source interface {
	Records(ctx context.Context) ([]Record, error)
}

// Open picks a Source for location: http(s) URLs are fetched, anything else
// is read as a file. An empty location yields no seeds.
func Open(location string, timeout time.Duration) Source {
	switch {
	case location == "":
		return StaticSource(nil)
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return &HTTPSource{URL: location, Timeout: timeout}
	default:
		return FileSource(location)
	}
}

// StaticSource serves records from memory.
type StaticSource []Record

func (s StaticSource) Records(ctx context.Context) ([]Record, error) {
	out := make([]Record, len(s))
	copy(out, s)
	return out, nil
}

// FileSource reads a JSON array from a local file.
type FileSource string

func (f FileSource) Records(ctx context.Context) ([]Record, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return decode(data)
}

// HTTPSource fetches a JSON array over HTTP.
type HTTPSource struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client // nil = http.DefaultClient
}

func (h *HTTPSource) Records(ctx context.Context) ([]Record, error) {
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build seed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch seed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch seed: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read seed body: %w", err)
	}
	return decode(data)
}

func decode(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("invalid seed JSON: %w", err)
	}
	return records, nil
}
