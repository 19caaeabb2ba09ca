package entities

import "time"

// Page is a scraped company page. PageKey is the identifier assigned by the
// source platform; ID is the locally assigned surrogate key and never changes
// once assigned.
type Page struct {
	ID              int64     `json:"id" db:"id"`
	PageKey         string    `json:"page_key" db:"page_key"`
	Name            string    `json:"name" db:"name"`
	URL             string    `json:"url" db:"url"`
	Description     string    `json:"description,omitempty" db:"description"`
	Website         string    `json:"website,omitempty" db:"website"`
	Industry        string    `json:"industry,omitempty" db:"industry"`
	TotalFollowers  int       `json:"total_followers" db:"total_followers"`
	HeadCount       int       `json:"head_count" db:"head_count"`
	Specialities    string    `json:"specialities,omitempty" db:"specialities"`
	ProfileImageURL string    `json:"profile_image_url,omitempty" db:"profile_image_url"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Post is a page post. PostKey is the source platform's post identifier.
type Post struct {
	ID           int64     `json:"id" db:"id"`
	PostKey      string    `json:"post_key" db:"post_key"`
	PageID       int64     `json:"page_id" db:"page_id"`
	Content      string    `json:"content,omitempty" db:"content"`
	LikeCount    int       `json:"like_count" db:"like_count"`
	CommentCount int       `json:"comment_count" db:"comment_count"`
	PostedAt     time.Time `json:"posted_at" db:"posted_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Comment is a comment under a post.
type Comment struct {
	ID          int64     `json:"id" db:"id"`
	CommentKey  string    `json:"comment_key" db:"comment_key"`
	PostID      int64     `json:"post_id" db:"post_id"`
	AuthorName  string    `json:"author_name" db:"author_name"`
	Content     string    `json:"content" db:"content"`
	CommentedAt time.Time `json:"commented_at" db:"commented_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// PageMember is a user record associated with a page. The same platform user
// appearing under several pages is stored as distinct associations, so the
// natural key is (MemberKey, PageID).
type PageMember struct {
	ID         int64     `json:"id" db:"id"`
	MemberKey  string    `json:"member_key" db:"member_key"`
	PageID     int64     `json:"page_id" db:"page_id"`
	Name       string    `json:"name" db:"name"`
	Title      string    `json:"title,omitempty" db:"title"`
	ProfileURL string    `json:"profile_url" db:"profile_url"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
