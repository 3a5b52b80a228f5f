package confessions

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IDProvider issues identifiers for new rows.
type IDProvider interface {
	NewID() (string, error)
}

// StoreConfig describes the dependencies of the confession store.
type StoreConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Store persists confessions and owns their status and reaction counters.
type Store struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewStore validates the configuration and returns a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opStoreNew, reasonMissingDB, ErrStorage, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opStoreNew, "missing_id_provider", ErrStorage, errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// ready reports a missing_database service error when the store was not built by NewStore.
func (s *Store) ready(operation string) error {
	if s == nil || s.db == nil {
		s.logError(operation, reasonMissingDB, errMissingDatabase)
		return newServiceError(operation, reasonMissingDB, ErrStorage, errMissingDatabase)
	}
	return nil
}

func (s *Store) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Store) newID(operation string) (string, error) {
	if s.idProvider == nil {
		return "", newServiceError(operation, "missing_id_provider", ErrStorage, errMissingIDProvider)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operation, reasonIDFailed, err)
		return "", newServiceError(operation, reasonIDFailed, ErrStorage, err)
	}
	return id, nil
}

// Create validates the draft and persists a pending confession.
func (s *Store) Create(ctx context.Context, draft Draft, caller Caller) (Confession, error) {
	if err := s.ready(opCreate); err != nil {
		return Confession{}, err
	}
	input, err := normalizeDraft(draft)
	if err != nil {
		return Confession{}, newServiceError(opCreate, reasonInvalidInput, ErrValidation, err)
	}
	id, err := s.newID(opCreate)
	if err != nil {
		return Confession{}, err
	}

	author := AnonymousAuthor()
	if draft.RevealIdentity && caller.Authenticated() {
		author = AttributedAuthor(caller.UserID(), caller.DisplayName())
	}
	createdAt := s.now()
	confession := Confession{
		ID:             ConfessionID(id),
		Content:        input.Content,
		Category:       Category(input.Category),
		Status:         StatusPending,
		RevealIdentity: draft.RevealIdentity,
		Author:         author,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}

	record := recordFromConfession(confession)
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("confession_id", id))
		return Confession{}, newServiceError(opCreate, "insert_failed", ErrStorage, err)
	}
	return confession, nil
}

// Get loads a confession by id.
func (s *Store) Get(ctx context.Context, id ConfessionID) (Confession, error) {
	if err := s.ready(opGet); err != nil {
		return Confession{}, err
	}
	var record confessionRecord
	err := s.db.WithContext(ctx).Where("id = ?", id.String()).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Confession{}, newServiceError(opGet, reasonNotFound, ErrNotFound, err)
	}
	if err != nil {
		s.logError(opGet, reasonQueryFailed, err, zap.String("confession_id", id.String()))
		return Confession{}, newServiceError(opGet, reasonQueryFailed, ErrStorage, err)
	}
	return record.toConfession(), nil
}

// List returns the confessions selected by the criteria. No match yields an empty slice.
func (s *Store) List(ctx context.Context, criteria Criteria) ([]Confession, error) {
	if err := s.ready(opList); err != nil {
		return nil, err
	}
	query, err := ComposeQuery(criteria)
	if err != nil {
		return nil, newServiceError(opList, "invalid_criteria", ErrValidation, err)
	}

	var records []confessionRecord
	if err := s.db.WithContext(ctx).Scopes(query.Scope).Find(&records).Error; err != nil {
		s.logError(opList, reasonQueryFailed, err)
		return nil, newServiceError(opList, reasonQueryFailed, ErrStorage, err)
	}

	confessions := make([]Confession, 0, len(records))
	for _, record := range records {
		confessions = append(confessions, record.toConfession())
	}
	return confessions, nil
}

// setStatus moves a confession to the target status and appends an audit row in the same transaction.
func (s *Store) setStatus(ctx context.Context, id ConfessionID, target Status, action ModerationAction, actor Caller) (Confession, error) {
	if err := s.ready(opSetStatus); err != nil {
		return Confession{}, err
	}
	if !target.Valid() {
		return Confession{}, newServiceError(opSetStatus, "invalid_status", ErrInvalidTransition, nil)
	}

	var updated confessionRecord
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.lockConfession(tx, opSetStatus, id)
		if err != nil {
			return err
		}
		if !permittedTransition(record.Status, target) {
			return newServiceError(opSetStatus, "transition_not_permitted", ErrInvalidTransition, nil)
		}

		appliedAt := s.now()
		previous := record.Status
		if err := tx.Model(&confessionRecord{}).
			Where("id = ?", record.ID).
			Updates(map[string]any{"status": target, "updated_at": appliedAt}).Error; err != nil {
			s.logError(opSetStatus, "status_update_failed", err, zap.String("confession_id", record.ID))
			return newServiceError(opSetStatus, "status_update_failed", ErrStorage, err)
		}
		if err := s.appendModerationEvent(tx, opSetStatus, record.ID, action, previous, target, actor, appliedAt); err != nil {
			return err
		}

		record.Status = target
		record.UpdatedAt = appliedAt
		updated = record
		return nil
	})
	if txErr != nil {
		return Confession{}, asServiceError(opSetStatus, txErr)
	}
	return updated.toConfession(), nil
}

// delete removes a confession together with its ledger rows and comments. A missing confession is an error.
func (s *Store) delete(ctx context.Context, id ConfessionID, actor Caller) error {
	_, err := s.removeConfession(ctx, opDelete, id, actor, nil)
	return err
}

// RemoveOwn deletes a confession on behalf of its author and returns what was removed.
// Only attributed confessions have an owner; anonymous ones are refused. A caller who
// may not see the confession gets not found instead of forbidden.
func (s *Store) RemoveOwn(ctx context.Context, id ConfessionID, caller Caller) (Confession, error) {
	if !caller.Authenticated() {
		return Confession{}, newServiceError(opRemoveOwn, "unauthenticated", ErrForbidden, nil)
	}
	removed, err := s.removeConfession(ctx, opRemoveOwn, id, caller, func(record confessionRecord) error {
		if record.AuthorID != nil && *record.AuthorID == caller.UserID().String() {
			return nil
		}
		if !visibleTo(record, caller) {
			return newServiceError(opRemoveOwn, reasonNotFound, ErrNotFound, nil)
		}
		return newServiceError(opRemoveOwn, "not_author", ErrForbidden, nil)
	})
	if err != nil {
		return Confession{}, err
	}
	return removed.toConfession(), nil
}

// removeConfession locks the confession, lets permit veto the removal, then deletes it with its
// ledger rows and comments and appends a remove event, all in one transaction.
func (s *Store) removeConfession(ctx context.Context, operation string, id ConfessionID, actor Caller, permit func(confessionRecord) error) (confessionRecord, error) {
	if err := s.ready(operation); err != nil {
		return confessionRecord{}, err
	}
	var removed confessionRecord
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.lockConfession(tx, operation, id)
		if err != nil {
			return err
		}
		if permit != nil {
			if err := permit(record); err != nil {
				return err
			}
		}
		if err := tx.Where("confession_id = ?", record.ID).Delete(&reactionRecord{}).Error; err != nil {
			s.logError(operation, "reactions_delete_failed", err, zap.String("confession_id", record.ID))
			return newServiceError(operation, "reactions_delete_failed", ErrStorage, err)
		}
		if err := tx.Where("confession_id = ?", record.ID).Delete(&commentRecord{}).Error; err != nil {
			s.logError(operation, "comments_delete_failed", err, zap.String("confession_id", record.ID))
			return newServiceError(operation, "comments_delete_failed", ErrStorage, err)
		}
		result := tx.Where("id = ?", record.ID).Delete(&confessionRecord{})
		if result.Error != nil {
			s.logError(operation, "confession_delete_failed", result.Error, zap.String("confession_id", record.ID))
			return newServiceError(operation, "confession_delete_failed", ErrStorage, result.Error)
		}
		if result.RowsAffected == 0 {
			return newServiceError(operation, reasonNotFound, ErrNotFound, nil)
		}
		removed = record
		return s.appendModerationEvent(tx, operation, record.ID, ModerationActionRemove, record.Status, "", actor, s.now())
	})
	if txErr != nil {
		return confessionRecord{}, asServiceError(operation, txErr)
	}
	return removed, nil
}

// applyReactionDelta adds delta to one counter, floored at zero, as a single atomic update.
func (s *Store) applyReactionDelta(ctx context.Context, id ConfessionID, reaction ReactionType, delta int64) (Confession, error) {
	if err := s.ready(opApplyDelta); err != nil {
		return Confession{}, err
	}
	if !reaction.Valid() {
		return Confession{}, newServiceError(opApplyDelta, "invalid_reaction", ErrValidation, nil)
	}
	var updated confessionRecord
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.lockConfession(tx, opApplyDelta, id)
		if err != nil {
			return err
		}
		if err := s.adjustReactions(tx, opApplyDelta, &record, reactionDelta{reaction: reaction, delta: delta}); err != nil {
			return err
		}
		updated = record
		return nil
	})
	if txErr != nil {
		return Confession{}, asServiceError(opApplyDelta, txErr)
	}
	return updated.toConfession(), nil
}

// visibleTo reports whether the caller may see the confession outside the moderation surface.
func visibleTo(record confessionRecord, caller Caller) bool {
	return caller.Privileged() || record.Status == StatusApproved
}

type reactionDelta struct {
	reaction ReactionType
	delta    int64
}

// lockConfession loads the confession row for update; it is the serialization point for writes to one confession.
func (s *Store) lockConfession(tx *gorm.DB, operation string, id ConfessionID) (confessionRecord, error) {
	var record confessionRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id.String()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return confessionRecord{}, newServiceError(operation, reasonNotFound, ErrNotFound, err)
	}
	if err != nil {
		s.logError(operation, reasonLockFailed, err, zap.String("confession_id", id.String()))
		return confessionRecord{}, newServiceError(operation, reasonLockFailed, ErrStorage, err)
	}
	return record, nil
}

// adjustReactions applies every delta to the locked record and writes the counters back in one statement.
func (s *Store) adjustReactions(tx *gorm.DB, operation string, record *confessionRecord, deltas ...reactionDelta) error {
	next := record.Reactions
	for _, change := range deltas {
		adjusted, err := next.withDelta(change.reaction, change.delta)
		if err != nil {
			return newServiceError(operation, "invalid_reaction", ErrValidation, err)
		}
		next = adjusted
	}
	updatedAt := s.now()
	if err := tx.Model(&confessionRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{
			"reaction_like":  next.Like,
			"reaction_love":  next.Love,
			"reaction_laugh": next.Laugh,
			"updated_at":     updatedAt,
		}).Error; err != nil {
		s.logError(operation, reasonCounterFailed, err, zap.String("confession_id", record.ID))
		return newServiceError(operation, reasonCounterFailed, ErrStorage, err)
	}
	record.Reactions = next
	record.UpdatedAt = updatedAt
	return nil
}

func (s *Store) appendModerationEvent(tx *gorm.DB, operation, confessionID string, action ModerationAction, from, to Status, actor Caller, appliedAt time.Time) error {
	eventID, err := s.newID(operation)
	if err != nil {
		return err
	}
	event := moderationEventRecord{
		ID:           eventID,
		ConfessionID: confessionID,
		Action:       action,
		FromStatus:   from,
		ToStatus:     to,
		AppliedAt:    appliedAt,
	}
	if actor.Authenticated() {
		event.ActorID = pointerTo(actor.UserID().String())
	}
	if err := tx.Create(&event).Error; err != nil {
		s.logError(operation, reasonAuditFailed, err, zap.String("confession_id", confessionID))
		return newServiceError(operation, reasonAuditFailed, ErrStorage, err)
	}
	return nil
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	var logger *zap.Logger
	if s != nil {
		logger = s.logger
	}
	logServiceError(logger, operation, reason, err, fields...)
}
