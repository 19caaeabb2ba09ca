package entities

import "time"

// PostNode is a post together with the comments captured under it.
type PostNode struct {
	Post     Post      `json:"post"`
	Comments []Comment `json:"comments"`
}

// PageGraph is one consistent snapshot of a page as captured by the scraper:
// the page itself, its posts with nested comments, and associated member
// records. Surrogate IDs on the embedded entities are zero; they are assigned
// or resolved by the store when the graph is applied.
type PageGraph struct {
	Page       Page         `json:"page"`
	Posts      []PostNode   `json:"posts"`
	Members    []PageMember `json:"members"`
	CapturedAt time.Time    `json:"captured_at"`
}
