package confessions

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Error kinds. Every *ServiceError wraps exactly one of them.
var (
	ErrValidation        = errors.New("confessions: validation failed")
	ErrNotFound          = errors.New("confessions: not found")
	ErrInvalidTransition = errors.New("confessions: invalid status transition")
	ErrForbidden         = errors.New("confessions: not permitted for caller")
	ErrStorage           = errors.New("confessions: storage failure")
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingStore      = errors.New("confession store is required")
	noOpLogger           = zap.NewNop()
)

const (
	opStoreNew          = "confessions.store.new"
	opCreate            = "confessions.create"
	opGet               = "confessions.get"
	opList              = "confessions.list"
	opSetStatus         = "confessions.set_status"
	opDelete            = "confessions.delete"
	opRemoveOwn         = "confessions.remove_own"
	opApplyDelta        = "confessions.apply_reaction_delta"
	opReact             = "confessions.react"
	opCurrentReaction   = "confessions.current_reaction"
	opHistory           = "confessions.moderation_history"
	opAddComment        = "confessions.add_comment"
	opListComments      = "confessions.list_comments"
	opDeleteComment     = "confessions.delete_comment"
	reasonMissingDB     = "missing_database"
	reasonMissingStore  = "missing_store"
	reasonNotFound      = "not_found"
	reasonQueryFailed   = "query_failed"
	reasonLockFailed    = "lock_failed"
	reasonIDFailed      = "id_generation_failed"
	reasonCommitFailed  = "commit_failed"
	reasonInvalidInput  = "invalid_input"
	reasonAuditFailed   = "audit_insert_failed"
	reasonCounterFailed = "counter_update_failed"
)

// ServiceError carries a stable dotted code alongside the error kind and cause.
type ServiceError struct {
	code string
	kind error
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *ServiceError) Unwrap() []error {
	wrapped := make([]error, 0, 2)
	if e.kind != nil {
		wrapped = append(wrapped, e.kind)
	}
	if e.err != nil {
		wrapped = append(wrapped, e.err)
	}
	return wrapped
}

// Code returns the operation.reason code.
func (e *ServiceError) Code() string {
	return e.code
}

// Kind returns the error kind sentinel.
func (e *ServiceError) Kind() error {
	return e.kind
}

// Cause returns the underlying error, which may be nil.
func (e *ServiceError) Cause() error {
	return e.err
}

func newServiceError(operation, reason string, kind, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, kind: kind, err: cause}
}

// asServiceError returns err unchanged when it already is a ServiceError and wraps it as a storage failure otherwise.
func asServiceError(operation string, err error) error {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return err
	}
	return newServiceError(operation, reasonCommitFailed, ErrStorage, err)
}

func logServiceError(logger *zap.Logger, operation, reason string, err error, fields ...zap.Field) {
	if logger == nil {
		logger = noOpLogger
	}
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	logger.Error("confessions service error", attrs...)
}
