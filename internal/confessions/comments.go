package confessions

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CommentService manages replies attached to confessions.
type CommentService struct {
	store *Store
}

// NewCommentService binds a comment service to the confession store.
func NewCommentService(store *Store) *CommentService {
	return &CommentService{store: store}
}

// AddComment attaches a comment. Authenticated callers are attributed; others are anonymous.
func (c *CommentService) AddComment(ctx context.Context, confessionID ConfessionID, caller Caller, content string) (Comment, error) {
	return c.addComment(ctx, confessionID, caller, content, false)
}

// AddCommentIfVisible is AddComment for the public surface: unless the caller is privileged,
// the confession must be approved at the moment its row is locked, otherwise it is not found.
func (c *CommentService) AddCommentIfVisible(ctx context.Context, confessionID ConfessionID, caller Caller, content string) (Comment, error) {
	return c.addComment(ctx, confessionID, caller, content, true)
}

func (c *CommentService) addComment(ctx context.Context, confessionID ConfessionID, caller Caller, content string, requireVisible bool) (Comment, error) {
	store, err := c.readyStore(opAddComment)
	if err != nil {
		return Comment{}, err
	}
	input, err := normalizeComment(content)
	if err != nil {
		return Comment{}, newServiceError(opAddComment, reasonInvalidInput, ErrValidation, err)
	}
	id, err := store.newID(opAddComment)
	if err != nil {
		return Comment{}, err
	}

	author := AnonymousAuthor()
	if caller.Authenticated() {
		author = AttributedAuthor(caller.UserID(), caller.DisplayName())
	}
	authorID, displayName := authorColumns(author)
	record := commentRecord{
		ID:                id,
		ConfessionID:      confessionID.String(),
		Content:           input.Content,
		AuthorID:          authorID,
		AuthorDisplayName: displayName,
		CreatedAt:         store.now(),
	}

	txErr := store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := store.lockConfession(tx, opAddComment, confessionID)
		if err != nil {
			return err
		}
		if requireVisible && !visibleTo(locked, caller) {
			return newServiceError(opAddComment, reasonNotFound, ErrNotFound, nil)
		}
		if err := tx.Create(&record).Error; err != nil {
			store.logError(opAddComment, "insert_failed", err, zap.String("confession_id", confessionID.String()))
			return newServiceError(opAddComment, "insert_failed", ErrStorage, err)
		}
		return nil
	})
	if txErr != nil {
		return Comment{}, asServiceError(opAddComment, txErr)
	}
	return record.toComment(), nil
}

// ListComments returns the comments of a confession, newest first.
func (c *CommentService) ListComments(ctx context.Context, confessionID ConfessionID) ([]Comment, error) {
	store, err := c.readyStore(opListComments)
	if err != nil {
		return nil, err
	}
	if _, err := store.Get(ctx, confessionID); err != nil {
		return nil, err
	}

	var records []commentRecord
	if err := store.db.WithContext(ctx).
		Where("confession_id = ?", confessionID.String()).
		Order("created_at DESC").
		Order("id DESC").
		Find(&records).Error; err != nil {
		store.logError(opListComments, reasonQueryFailed, err, zap.String("confession_id", confessionID.String()))
		return nil, newServiceError(opListComments, reasonQueryFailed, ErrStorage, err)
	}

	comments := make([]Comment, 0, len(records))
	for _, record := range records {
		comments = append(comments, record.toComment())
	}
	return comments, nil
}

// DeleteComment removes one comment and returns it.
func (c *CommentService) DeleteComment(ctx context.Context, commentID CommentID) (Comment, error) {
	store, err := c.readyStore(opDeleteComment)
	if err != nil {
		return Comment{}, err
	}

	var removed commentRecord
	txErr := store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", commentID.String()).Take(&removed).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opDeleteComment, reasonNotFound, ErrNotFound, err)
		}
		if err != nil {
			store.logError(opDeleteComment, reasonQueryFailed, err, zap.String("comment_id", commentID.String()))
			return newServiceError(opDeleteComment, reasonQueryFailed, ErrStorage, err)
		}
		if err := tx.Where("id = ?", removed.ID).Delete(&commentRecord{}).Error; err != nil {
			store.logError(opDeleteComment, "delete_failed", err, zap.String("comment_id", commentID.String()))
			return newServiceError(opDeleteComment, "delete_failed", ErrStorage, err)
		}
		return nil
	})
	if txErr != nil {
		return Comment{}, asServiceError(opDeleteComment, txErr)
	}
	return removed.toComment(), nil
}

func (c *CommentService) readyStore(operation string) (*Store, error) {
	if c == nil || c.store == nil {
		return nil, newServiceError(operation, reasonMissingStore, ErrStorage, errMissingStore)
	}
	if err := c.store.ready(operation); err != nil {
		return nil, err
	}
	return c.store, nil
}
