package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrPageNotFound is returned by a Fetcher when the source reports that the
// requested page does not exist.
var ErrPageNotFound = errors.New("page not found at source")

// RawPageGraph is the scraper service's wire format: one page snapshot with
// nested posts, comments and employee records. Timestamps arrive as strings
// and counts may be absent; Normalize turns this into a storable graph.
type RawPageGraph struct {
	Page      RawPage     `json:"page"`
	Posts     []RawPost   `json:"posts"`
	Employees []RawMember `json:"employees"`
}

type RawPage struct {
	PageKey         string `json:"page_key"`
	Name            string `json:"name"`
	URL             string `json:"url"`
	Description     string `json:"description"`
	Website         string `json:"website"`
	Industry        string `json:"industry"`
	TotalFollowers  int    `json:"total_followers"`
	HeadCount       int    `json:"head_count"`
	Specialities    string `json:"specialities"`
	ProfileImageURL string `json:"profile_image_url"`
}

type RawPost struct {
	PostKey      string       `json:"post_key"`
	Content      string       `json:"content"`
	LikeCount    int          `json:"like_count"`
	CommentCount int          `json:"comment_count"`
	PostedAt     string       `json:"posted_at"`
	Comments     []RawComment `json:"comments"`
}

type RawComment struct {
	CommentKey  string `json:"comment_key"`
	AuthorName  string `json:"author_name"`
	Content     string `json:"content"`
	CommentedAt string `json:"commented_at"`
}

type RawMember struct {
	MemberKey  string `json:"member_key"`
	Name       string `json:"name"`
	Title      string `json:"title"`
	ProfileURL string `json:"profile_url"`
}

// Fetcher obtains one raw snapshot of a page.
type Fetcher interface {
	FetchPage(ctx context.Context, pageKey string) (*RawPageGraph, error)
}

// HTTPFetcher talks to the external scraper service.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Per-request deadlines come from the caller's context; the
		// client timeout is only a safety net.
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

type scrapeRequest struct {
	PageKey string `json:"page_key"`
}

func (f *HTTPFetcher) FetchPage(ctx context.Context, pageKey string) (*RawPageGraph, error) {
	body, err := json.Marshal(scrapeRequest{PageKey: pageKey})
	if err != nil {
		return nil, fmt.Errorf("failed to encode scrape request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/scrape", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build scrape request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrPageNotFound
	case resp.StatusCode != http.StatusOK:
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("scraper returned status %d", resp.StatusCode)
	}

	var raw RawPageGraph
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &raw, nil
}
