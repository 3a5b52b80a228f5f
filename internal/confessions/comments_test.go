package confessions

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommentsAttachAndListNewestFirst(t *testing.T) {
	store, _ := newTestStore(t)
	comments := NewCommentService(store)
	ctx := context.Background()
	confession := mustCreate(t, store, "I think the dining hall pizza is good", CategoryQuestion)

	first, err := comments.AddComment(ctx, confession.ID, AnonymousCaller(), "  same here  ")
	require.NoError(t, err)
	require.Equal(t, "same here", first.Content)
	require.True(t, first.Author.Anonymous())

	second, err := comments.AddComment(ctx, confession.ID, memberCaller(t, "user-3"), "bold claim")
	require.NoError(t, err)
	require.False(t, second.Author.Anonymous())
	require.Equal(t, UserID("user-3"), second.Author.UserID())

	listed, err := comments.ListComments(ctx, confession.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, second.ID, listed[0].ID)
	require.Equal(t, first.ID, listed[1].ID)
}

func TestCommentsValidateContent(t *testing.T) {
	store, _ := newTestStore(t)
	comments := NewCommentService(store)
	ctx := context.Background()
	confession := mustCreate(t, store, "I wear the same hoodie every day", CategoryFunny)

	_, err := comments.AddComment(ctx, confession.ID, AnonymousCaller(), "   ")
	require.ErrorIs(t, err, ErrValidation)

	_, err = comments.AddComment(ctx, confession.ID, AnonymousCaller(), strings.Repeat("y", 501))
	require.ErrorIs(t, err, ErrValidation)
}

func TestCommentsOnUnknownConfessionAreNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	comments := NewCommentService(store)
	ctx := context.Background()

	_, err := comments.AddComment(ctx, ConfessionID("missing"), AnonymousCaller(), "hello there")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = comments.ListComments(ctx, ConfessionID("missing"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCommentRemovesOnlyThatComment(t *testing.T) {
	store, _ := newTestStore(t)
	comments := NewCommentService(store)
	ctx := context.Background()
	confession := mustCreate(t, store, "I talk to my plants before exams", CategoryFunny)

	kept, err := comments.AddComment(ctx, confession.ID, AnonymousCaller(), "they listen")
	require.NoError(t, err)
	doomed, err := comments.AddComment(ctx, confession.ID, AnonymousCaller(), "spam spam spam")
	require.NoError(t, err)

	removed, err := comments.DeleteComment(ctx, doomed.ID)
	require.NoError(t, err)
	require.Equal(t, doomed.ID, removed.ID)
	require.Equal(t, confession.ID, removed.ConfessionID)

	listed, err := comments.ListComments(ctx, confession.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, kept.ID, listed[0].ID)

	_, err = comments.DeleteComment(ctx, doomed.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRemovingConfessionRemovesComments(t *testing.T) {
	store, db := newTestStore(t)
	comments := NewCommentService(store)
	ctx := context.Background()
	confession := mustCreate(t, store, "I borrowed a pen in first year and still have it", CategoryFunny)

	_, err := comments.AddComment(ctx, confession.ID, AnonymousCaller(), "give it back")
	require.NoError(t, err)
	require.NoError(t, NewModerator(store).Remove(ctx, confession.ID, moderatorCaller(t)))

	var count int64
	require.NoError(t, db.Model(&commentRecord{}).Where("confession_id = ?", confession.ID.String()).Count(&count).Error)
	require.Zero(t, count)
}

func TestAddCommentIfVisibleRefusesUnpublishedConfessions(t *testing.T) {
	store, _ := newTestStore(t)
	comments := NewCommentService(store)
	moderator := NewModerator(store)
	ctx := context.Background()
	confession := mustCreate(t, store, "I have never finished a reading list", CategoryVenting)

	_, err := comments.AddCommentIfVisible(ctx, confession.ID, AnonymousCaller(), "me neither")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = comments.AddCommentIfVisible(ctx, confession.ID, moderatorCaller(t), "moderator note")
	require.NoError(t, err)

	_, err = moderator.Approve(ctx, confession.ID, moderatorCaller(t))
	require.NoError(t, err)
	_, err = comments.AddCommentIfVisible(ctx, confession.ID, memberCaller(t, "user-2"), "same")
	require.NoError(t, err)

	_, err = moderator.Reject(ctx, confession.ID, moderatorCaller(t))
	require.NoError(t, err)
	_, err = comments.AddCommentIfVisible(ctx, confession.ID, memberCaller(t, "user-2"), "too late")
	require.ErrorIs(t, err, ErrNotFound)

	listed, err := comments.ListComments(ctx, confession.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
}
