package confessions

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger tracks which reaction each member currently has on a confession and
// is the only writer of reaction counters on behalf of members.
type Ledger struct {
	store *Store
}

// NewLedger binds a ledger to the confession store.
func NewLedger(store *Store) *Ledger {
	return &Ledger{store: store}
}

// React applies a reaction request.
//
// Anonymous callers always add one to the counter and leave no ledger row.
// Members toggle: the first reaction is recorded, repeating the same type
// removes it, and a different type switches the row and moves the count.
// The ledger change and the counter deltas commit in one transaction.
func (l *Ledger) React(ctx context.Context, confessionID ConfessionID, caller Caller, reaction ReactionType) (ReactionResult, error) {
	return l.react(ctx, confessionID, caller, reaction, false)
}

// ReactIfVisible is React for the public surface: unless the caller is privileged, the
// confession must be approved at the moment its row is locked, otherwise it is not found.
func (l *Ledger) ReactIfVisible(ctx context.Context, confessionID ConfessionID, caller Caller, reaction ReactionType) (ReactionResult, error) {
	return l.react(ctx, confessionID, caller, reaction, true)
}

func (l *Ledger) react(ctx context.Context, confessionID ConfessionID, caller Caller, reaction ReactionType, requireVisible bool) (ReactionResult, error) {
	store, err := l.readyStore(opReact)
	if err != nil {
		return ReactionResult{}, err
	}
	if !reaction.Valid() {
		return ReactionResult{}, newServiceError(opReact, "invalid_reaction", ErrValidation, nil)
	}

	var result ReactionResult
	txErr := store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := store.lockConfession(tx, opReact, confessionID)
		if err != nil {
			return err
		}
		if requireVisible && !visibleTo(record, caller) {
			return newServiceError(opReact, reasonNotFound, ErrNotFound, nil)
		}

		var deltas []reactionDelta
		var applied *ReactionType
		if !caller.Authenticated() {
			deltas = []reactionDelta{{reaction: reaction, delta: 1}}
			applied = &reaction
		} else {
			deltas, applied, err = l.updateEntry(tx, store, record.ID, caller.UserID(), reaction)
			if err != nil {
				return err
			}
		}

		if err := store.adjustReactions(tx, opReact, &record, deltas...); err != nil {
			return err
		}
		result = ReactionResult{AppliedType: applied, Confession: record.toConfession()}
		return nil
	})
	if txErr != nil {
		return ReactionResult{}, asServiceError(opReact, txErr)
	}
	return result, nil
}

// updateEntry mutates the member's ledger row and returns the counter deltas it implies.
func (l *Ledger) updateEntry(tx *gorm.DB, store *Store, confessionID string, userID UserID, reaction ReactionType) ([]reactionDelta, *ReactionType, error) {
	fields := []zap.Field{
		zap.String("confession_id", confessionID),
		zap.String("user_id", userID.String()),
	}

	var entry reactionRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND confession_id = ?", userID.String(), confessionID).
		Take(&entry).Error
	now := store.now()

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		entry = reactionRecord{
			UserID:       userID.String(),
			ConfessionID: confessionID,
			Type:         reaction,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			store.logError(opReact, "ledger_insert_failed", err, fields...)
			return nil, nil, newServiceError(opReact, "ledger_insert_failed", ErrStorage, err)
		}
		return []reactionDelta{{reaction: reaction, delta: 1}}, &reaction, nil

	case err != nil:
		store.logError(opReact, "ledger_select_failed", err, fields...)
		return nil, nil, newServiceError(opReact, "ledger_select_failed", ErrStorage, err)

	case entry.Type == reaction:
		if err := tx.Where("user_id = ? AND confession_id = ?", entry.UserID, entry.ConfessionID).
			Delete(&reactionRecord{}).Error; err != nil {
			store.logError(opReact, "ledger_delete_failed", err, fields...)
			return nil, nil, newServiceError(opReact, "ledger_delete_failed", ErrStorage, err)
		}
		return []reactionDelta{{reaction: reaction, delta: -1}}, nil, nil

	default:
		previous := entry.Type
		if err := tx.Model(&reactionRecord{}).
			Where("user_id = ? AND confession_id = ?", entry.UserID, entry.ConfessionID).
			Updates(map[string]any{"type": reaction, "updated_at": now}).Error; err != nil {
			store.logError(opReact, "ledger_update_failed", err, fields...)
			return nil, nil, newServiceError(opReact, "ledger_update_failed", ErrStorage, err)
		}
		return []reactionDelta{
			{reaction: previous, delta: -1},
			{reaction: reaction, delta: 1},
		}, &reaction, nil
	}
}

// CurrentReaction returns the member's active reaction on a confession, or nil.
func (l *Ledger) CurrentReaction(ctx context.Context, confessionID ConfessionID, userID UserID) (*ReactionType, error) {
	store, err := l.readyStore(opCurrentReaction)
	if err != nil {
		return nil, err
	}
	var entry reactionRecord
	err = store.db.WithContext(ctx).
		Where("user_id = ? AND confession_id = ?", userID.String(), confessionID.String()).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		store.logError(opCurrentReaction, reasonQueryFailed, err, zap.String("confession_id", confessionID.String()))
		return nil, newServiceError(opCurrentReaction, reasonQueryFailed, ErrStorage, err)
	}
	reaction := entry.Type
	return &reaction, nil
}

func (l *Ledger) readyStore(operation string) (*Store, error) {
	if l == nil || l.store == nil {
		return nil, newServiceError(operation, reasonMissingStore, ErrStorage, errMissingStore)
	}
	if err := l.store.ready(operation); err != nil {
		return nil, err
	}
	return l.store, nil
}
