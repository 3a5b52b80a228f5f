package confessions

import (
	"context"

	"go.uber.org/zap"
)

// Moderator exposes the status transitions available to administrators.
// It trusts its caller: privilege is enforced at the HTTP gate.
type Moderator struct {
	store *Store
}

// NewModerator binds a moderator to the confession store.
func NewModerator(store *Store) *Moderator {
	return &Moderator{store: store}
}

// Approve publishes a confession.
func (m *Moderator) Approve(ctx context.Context, id ConfessionID, actor Caller) (Confession, error) {
	store, err := m.readyStore(opSetStatus)
	if err != nil {
		return Confession{}, err
	}
	return store.setStatus(ctx, id, StatusApproved, ModerationActionApprove, actor)
}

// Reject hides a confession from the public surface.
func (m *Moderator) Reject(ctx context.Context, id ConfessionID, actor Caller) (Confession, error) {
	store, err := m.readyStore(opSetStatus)
	if err != nil {
		return Confession{}, err
	}
	return store.setStatus(ctx, id, StatusRejected, ModerationActionReject, actor)
}

// Remove deletes a confession. Confirmation is the caller's job.
func (m *Moderator) Remove(ctx context.Context, id ConfessionID, actor Caller) error {
	store, err := m.readyStore(opDelete)
	if err != nil {
		return err
	}
	return store.delete(ctx, id, actor)
}

// History returns the audit trail of a confession, oldest first. It stays
// readable after removal; an id with no confession and no events is not found.
func (m *Moderator) History(ctx context.Context, id ConfessionID) ([]ModerationEvent, error) {
	store, err := m.readyStore(opHistory)
	if err != nil {
		return nil, err
	}

	var records []moderationEventRecord
	if err := store.db.WithContext(ctx).
		Where("confession_id = ?", id.String()).
		Order("applied_at ASC").
		Order("id ASC").
		Find(&records).Error; err != nil {
		store.logError(opHistory, reasonQueryFailed, err, zap.String("confession_id", id.String()))
		return nil, newServiceError(opHistory, reasonQueryFailed, ErrStorage, err)
	}

	if len(records) == 0 {
		if _, err := store.Get(ctx, id); err != nil {
			return nil, err
		}
	}

	events := make([]ModerationEvent, 0, len(records))
	for _, record := range records {
		events = append(events, record.toEvent())
	}
	return events, nil
}

func (m *Moderator) readyStore(operation string) (*Store, error) {
	if m == nil || m.store == nil {
		return nil, newServiceError(operation, reasonMissingStore, ErrStorage, errMissingStore)
	}
	if err := m.store.ready(operation); err != nil {
		return nil, err
	}
	return m.store, nil
}
