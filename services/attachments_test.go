package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/petos/forum/models"
)

func TestAttachToPostAndComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	postID := f.post(t, alice, "Hello")
	c, err := f.content.CreateComment(ctx, bob, postID, "hi")
	require.NoError(t, err)

	_, err = f.attachments.AttachToPost(ctx, "1_a.png", postID)
	require.NoError(t, err)
	_, err = f.attachments.AttachToComment(ctx, "2_b.png", c.ID)
	require.NoError(t, err)

	pa, err := f.attachments.PostAttachments(ctx, postID)
	require.NoError(t, err)
	require.Len(t, pa, 1)
	assert.Equal(t, "1_a.png", pa[0].AttachmentName)
	assert.Equal(t, "Hello", pa[0].PostTitle)
	assert.Equal(t, "alice", pa[0].AuthorName)

	ca, err := f.attachments.CommentAttachments(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, ca[c.ID], 1)
	assert.Equal(t, "2_b.png", ca[c.ID][0].AttachmentName)
	assert.Equal(t, "bob", ca[c.ID][0].AuthorName)
	assert.Equal(t, postID, ca[c.ID][0].PostID)

	_, err = f.attachments.AttachToPost(ctx, "", postID)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAttachRollsBackWhenLinkFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.attachments.attach(ctx, "1_orphan.png", func(tx *gorm.DB, attachmentID uint) error {
		return errors.New("link failed")
	})
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	var n int64
	require.NoError(t, f.db.Model(&models.Attachment{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestUserIconResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")

	icon, err := f.attachments.UserIcon(ctx, alice)
	require.NoError(t, err)
	assert.Nil(t, icon)

	_, err = f.attachments.AttachToUserIcon(ctx, "default_ico/cat.png", alice, true)
	require.NoError(t, err)
	icon, err = f.attachments.UserIcon(ctx, alice)
	require.NoError(t, err)
	require.NotNil(t, icon)
	assert.Equal(t, "default_ico/cat.png", icon.IconName)

	_, err = f.attachments.AttachToUserIcon(ctx, "10_mine.png", alice, false)
	require.NoError(t, err)
	_, err = f.attachments.AttachToUserIcon(ctx, "default_ico/dog.png", alice, true)
	require.NoError(t, err)

	icon, err = f.attachments.UserIcon(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "10_mine.png", icon.IconName)
	assert.False(t, icon.IsDefault)

	_, err = f.attachments.AttachToUserIcon(ctx, "20_newer.png", alice, false)
	require.NoError(t, err)
	icon, err = f.attachments.UserIcon(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "20_newer.png", icon.IconName)
}

func TestDefaultIconsSeedAndChoose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")

	added, err := f.attachments.SeedDefaultIcons(ctx, []string{"default_ico/a.png", "default_ico/b.png"})
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	added, err = f.attachments.SeedDefaultIcons(ctx, []string{"default_ico/a.png", "default_ico/c.png"})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	defaults, err := f.attachments.DefaultIcons(ctx)
	require.NoError(t, err)
	require.Len(t, defaults, 3)

	user, err := f.identity.FindByID(ctx, alice)
	require.NoError(t, err)
	name, err := f.attachments.IconName(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, name)

	require.NoError(t, f.attachments.ChooseDefaultIcon(ctx, alice, defaults[1].AttachmentID))
	user, err = f.identity.FindByID(ctx, alice)
	require.NoError(t, err)
	name, err = f.attachments.IconName(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "default_ico/b.png", name)

	ident, err := f.identity.SessionIdentity(ctx, user, f.attachments)
	require.NoError(t, err)
	assert.Equal(t, models.SessionIdentity{ID: alice, Name: "alice", IconName: "default_ico/b.png"}, ident)

	assert.ErrorIs(t, f.attachments.ChooseDefaultIcon(ctx, alice, 9999), ErrNotFound)
	assert.ErrorIs(t, f.attachments.ChooseDefaultIcon(ctx, 0, defaults[0].AttachmentID), ErrUnauthorized)
}

func TestSessionIdentityFallsBackToDefaultAvatar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	user, err := f.identity.FindByID(ctx, alice)
	require.NoError(t, err)

	ident, err := f.identity.SessionIdentity(ctx, user, f.attachments)
	require.NoError(t, err)
	assert.Equal(t, DefaultAvatar, ident.IconName)
}
