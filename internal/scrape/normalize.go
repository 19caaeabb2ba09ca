package scrape

import (
	"fmt"
	"time"

	"github.com/pageinsights/pageinsights-backend/internal/db/entities"
)

// Normalize validates a raw snapshot and converts it into a storable page
// graph. Validation is all or nothing: one invalid section rejects the whole
// snapshot, so the store only ever sees consistent captures. Unparseable
// timestamps are not grounds for rejection; they fall back to the capture
// time.
func Normalize(raw *RawPageGraph, capturedAt time.Time) (*entities.PageGraph, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty snapshot", ErrMalformedPayload)
	}
	if raw.Page.PageKey == "" {
		return nil, fmt.Errorf("%w: page key missing", ErrMalformedPayload)
	}
	if raw.Page.Name == "" {
		return nil, fmt.Errorf("%w: page %s has no name", ErrMalformedPayload, raw.Page.PageKey)
	}
	if raw.Page.URL == "" {
		return nil, fmt.Errorf("%w: page %s has no url", ErrMalformedPayload, raw.Page.PageKey)
	}

	graph := &entities.PageGraph{
		Page: entities.Page{
			PageKey:         raw.Page.PageKey,
			Name:            raw.Page.Name,
			URL:             raw.Page.URL,
			Description:     raw.Page.Description,
			Website:         raw.Page.Website,
			Industry:        raw.Page.Industry,
			TotalFollowers:  raw.Page.TotalFollowers,
			HeadCount:       raw.Page.HeadCount,
			Specialities:    raw.Page.Specialities,
			ProfileImageURL: raw.Page.ProfileImageURL,
		},
		CapturedAt: capturedAt,
	}

	for i, rp := range raw.Posts {
		if rp.PostKey == "" {
			return nil, fmt.Errorf("%w: post %d of page %s has no key", ErrMalformedPayload, i, raw.Page.PageKey)
		}
		node := entities.PostNode{
			Post: entities.Post{
				PostKey:      rp.PostKey,
				Content:      rp.Content,
				LikeCount:    rp.LikeCount,
				CommentCount: rp.CommentCount,
				PostedAt:     parseTimestamp(rp.PostedAt, capturedAt),
			},
		}
		for j, rc := range rp.Comments {
			if rc.CommentKey == "" {
				return nil, fmt.Errorf("%w: comment %d of post %s has no key", ErrMalformedPayload, j, rp.PostKey)
			}
			node.Comments = append(node.Comments, entities.Comment{
				CommentKey:  rc.CommentKey,
				AuthorName:  rc.AuthorName,
				Content:     rc.Content,
				CommentedAt: parseTimestamp(rc.CommentedAt, capturedAt),
			})
		}
		graph.Posts = append(graph.Posts, node)
	}

	for i, rm := range raw.Employees {
		if rm.MemberKey == "" || rm.Name == "" {
			return nil, fmt.Errorf("%w: employee %d of page %s missing key or name", ErrMalformedPayload, i, raw.Page.PageKey)
		}
		graph.Members = append(graph.Members, entities.PageMember{
			MemberKey:  rm.MemberKey,
			Name:       rm.Name,
			Title:      rm.Title,
			ProfileURL: rm.ProfileURL,
		})
	}

	return graph, nil
}

func parseTimestamp(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return fallback
}
