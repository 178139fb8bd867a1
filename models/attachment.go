package models

// Attachment is a stored file reference. Every row is owned by exactly one of
// PostAttachment, CommentAttachment or UserIcon.
type Attachment struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:512;not null" json:"name"`
}

type PostAttachment struct {
	AttachmentID uint `gorm:"primaryKey;autoIncrement:false" json:"attachment_id"`
	PostID       uint `gorm:"index;not null" json:"post_id"`
}

type CommentAttachment struct {
	AttachmentID uint `gorm:"primaryKey;autoIncrement:false" json:"attachment_id"`
	CommentID    uint `gorm:"index;not null" json:"comment_id"`
}

// UserIcon designates an attachment as a user's avatar. System-provided default
// icons have no user and IsDefault set; choosing one only points users.icon_id at it.
type UserIcon struct {
	ID           uint  `gorm:"primaryKey" json:"id"`
	AttachmentID uint  `gorm:"index;not null" json:"attachment_id"`
	UserID       *uint `gorm:"index" json:"user_id"`
	IsDefault    bool  `gorm:"not null;default:false" json:"is_default"`
}

// PostAttachmentView projects a post attachment with its post and author.
type PostAttachmentView struct {
	ID             uint   `json:"id"`
	AttachmentName string `json:"attachment_name"`
	PostID         uint   `json:"post_id"`
	PostTitle      string `json:"post_title"`
	AuthorID       uint   `json:"author_id"`
	AuthorName     string `json:"author_name"`
}

// CommentAttachmentView projects a comment attachment with its comment, post and author.
type CommentAttachmentView struct {
	ID             uint   `json:"id"`
	AttachmentName string `json:"attachment_name"`
	CommentID      uint   `json:"comment_id"`
	AuthorID       uint   `json:"author_id"`
	AuthorName     string `json:"author_name"`
	PostID         uint   `json:"post_id"`
}

// UserIconView projects an icon designation with the stored file name.
type UserIconView struct {
	ID           uint   `json:"id"`
	AttachmentID uint   `json:"attachment_id"`
	IconName     string `json:"icon_name"`
	IsDefault    bool   `json:"is_default"`
	UserID       *uint  `json:"user_id"`
}
