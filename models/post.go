package models

import "time"

// Post represents a forum post created by a user.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	AuthorID  uint      `gorm:"index;not null" json:"author_id"`
}

// PostWithAuthor is a post joined with its author's display data.
type PostWithAuthor struct {
	ID             uint      `json:"id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	AuthorID       uint      `json:"author_id"`
	AuthorName     string    `json:"author_name"`
	AuthorIconName *string   `json:"author_icon_name"`
}

// PostWithTags is what listing and post pages render.
type PostWithTags struct {
	PostWithAuthor
	Tags []Tag `json:"tags"`
}

// Pagination is derived from the filtered total; it is never stored.
type Pagination struct {
	Current    int   `json:"current"`
	PagesCount int   `json:"pages_count"`
	Total      int64 `json:"total"`
}
