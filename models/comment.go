package models

import "time"

// Comment represents a reply to a post.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	AuthorID  uint      `gorm:"index;not null" json:"author_id"`
	PostID    uint      `gorm:"index;not null" json:"post_id"`
}

// CommentWithAuthor is a comment joined with its author's display data.
type CommentWithAuthor struct {
	ID             uint      `json:"id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	PostID         uint      `json:"post_id"`
	AuthorID       uint      `json:"author_id"`
	AuthorName     string    `json:"author_name"`
	AuthorIconName *string   `json:"author_icon_name"`
}

// CommentWithAttachments is a comment as rendered on the post page.
type CommentWithAttachments struct {
	CommentWithAuthor
	Attachments []CommentAttachmentView `json:"attachments"`
}
