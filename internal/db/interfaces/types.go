package interfaces

import (
	"errors"

	"github.com/pageinsights/pageinsights-backend/internal/db/entities"
)

// Common storage errors
var (
	ErrNotFound         = errors.New("record not found")
	ErrUniqueConstraint = errors.New("unique constraint violation")
	ErrStoreUnavailable = errors.New("store unavailable")
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination is 1-indexed page/page_size addressing.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Normalize clamps pagination to sane bounds.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset returns the row offset for this page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// PageFilter narrows page listings. Zero values mean "no constraint".
type PageFilter struct {
	FollowerMin *int   `json:"follower_min,omitempty"`
	FollowerMax *int   `json:"follower_max,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Name        string `json:"name,omitempty"`
}

// ListMeta carries pagination metadata alongside listed items.
type ListMeta struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// TotalPages returns the number of pages for the total count.
func (m ListMeta) TotalPages() int {
	if m.Total == 0 {
		return 0
	}
	return int((m.Total + int64(m.PageSize) - 1) / int64(m.PageSize))
}

// HasNext reports whether a following page exists.
func (m ListMeta) HasNext() bool {
	return m.Page < m.TotalPages()
}

// HasPrevious reports whether a preceding page exists.
func (m ListMeta) HasPrevious() bool {
	return m.Page > 1
}

type PageList struct {
	Items []entities.Page `json:"items"`
	Meta  ListMeta        `json:"meta"`
}

type PostList struct {
	Items []entities.Post `json:"items"`
	Meta  ListMeta        `json:"meta"`
}

type CommentList struct {
	Items []entities.Comment `json:"items"`
	Meta  ListMeta           `json:"meta"`
}

type MemberList struct {
	Items []entities.PageMember `json:"items"`
	Meta  ListMeta              `json:"meta"`
}

type IngestRunList struct {
	Items []entities.IngestRun `json:"items"`
	Meta  ListMeta             `json:"meta"`
}
