package confessions

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	maxIdentifierLength = 190
	anonymousUserLabel  = "Anonymous User"
)

var (
	// ErrInvalidConfessionID indicates that a confession identifier is empty or exceeds storage bounds.
	ErrInvalidConfessionID = errors.New("confessions: invalid confession id")
	// ErrInvalidCommentID indicates that a comment identifier is empty or exceeds storage bounds.
	ErrInvalidCommentID = errors.New("confessions: invalid comment id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("confessions: invalid user id")
)

// ConfessionID represents a validated confession identifier.
type ConfessionID string

// NewConfessionID validates raw input and returns a ConfessionID.
func NewConfessionID(rawInput string) (ConfessionID, error) {
	trimmed, err := validateIdentifier(rawInput, ErrInvalidConfessionID)
	if err != nil {
		return "", err
	}
	return ConfessionID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ConfessionID) String() string {
	return string(id)
}

// CommentID represents a validated comment identifier.
type CommentID string

// NewCommentID validates raw input and returns a CommentID.
func NewCommentID(rawInput string) (CommentID, error) {
	trimmed, err := validateIdentifier(rawInput, ErrInvalidCommentID)
	if err != nil {
		return "", err
	}
	return CommentID(trimmed), nil
}

// String returns the underlying string identifier.
func (id CommentID) String() string {
	return string(id)
}

// UserID represents a validated member identifier supplied by the session gate.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed, err := validateIdentifier(rawInput, ErrInvalidUserID)
	if err != nil {
		return "", err
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

func validateIdentifier(rawInput string, kind error) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", kind)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", kind, maxIdentifierLength)
	}
	return trimmed, nil
}

// Category classifies a confession.
type Category string

const (
	CategoryFunny        Category = "funny"
	CategorySerious      Category = "serious"
	CategoryVenting      Category = "venting"
	CategoryAppreciation Category = "appreciation"
	CategoryQuestion     Category = "question"
	CategoryOther        Category = "other"
)

// Categories lists every supported category in display order.
func Categories() []Category {
	return []Category{
		CategoryFunny,
		CategorySerious,
		CategoryVenting,
		CategoryAppreciation,
		CategoryQuestion,
		CategoryOther,
	}
}

// ParseCategory maps raw input onto a Category. Blank input defaults to CategoryOther.
func ParseCategory(rawInput string) (Category, error) {
	normalized := Category(strings.ToLower(strings.TrimSpace(rawInput)))
	if normalized == "" {
		return CategoryOther, nil
	}
	if !normalized.Valid() {
		return "", fmt.Errorf("%w: unknown category %q", ErrValidation, rawInput)
	}
	return normalized, nil
}

// Valid reports whether the category belongs to the closed set.
func (c Category) Valid() bool {
	switch c {
	case CategoryFunny, CategorySerious, CategoryVenting, CategoryAppreciation, CategoryQuestion, CategoryOther:
		return true
	default:
		return false
	}
}

// Status is the moderation state of a confession.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseStatus maps raw input onto a Status.
func ParseStatus(rawInput string) (Status, error) {
	normalized := Status(strings.ToLower(strings.TrimSpace(rawInput)))
	if !normalized.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, rawInput)
	}
	return normalized, nil
}

// Valid reports whether the status belongs to the closed set.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// permittedTransition encodes the status state machine. The model is flat:
// every state is reachable from every other state by a moderator.
func permittedTransition(from, to Status) bool {
	return from.Valid() && to.Valid()
}

// ReactionType is one of the fixed sentiment markers.
type ReactionType string

const (
	ReactionLike  ReactionType = "like"
	ReactionLove  ReactionType = "love"
	ReactionLaugh ReactionType = "laugh"
)

// ReactionTypes lists every supported reaction type.
func ReactionTypes() []ReactionType {
	return []ReactionType{ReactionLike, ReactionLove, ReactionLaugh}
}

// ParseReactionType maps raw input onto a ReactionType.
func ParseReactionType(rawInput string) (ReactionType, error) {
	normalized := ReactionType(strings.ToLower(strings.TrimSpace(rawInput)))
	if !normalized.Valid() {
		return "", fmt.Errorf("%w: unknown reaction type %q", ErrValidation, rawInput)
	}
	return normalized, nil
}

// Valid reports whether the reaction type belongs to the closed set.
func (r ReactionType) Valid() bool {
	switch r {
	case ReactionLike, ReactionLove, ReactionLaugh:
		return true
	default:
		return false
	}
}

// Reactions holds the aggregate counters of a confession.
type Reactions struct {
	Like  int64 `gorm:"column:like;not null;default:0" json:"like"`
	Love  int64 `gorm:"column:love;not null;default:0" json:"love"`
	Laugh int64 `gorm:"column:laugh;not null;default:0" json:"laugh"`
}

// Count returns the counter for the reaction type.
func (r Reactions) Count(reaction ReactionType) int64 {
	switch reaction {
	case ReactionLike:
		return r.Like
	case ReactionLove:
		return r.Love
	case ReactionLaugh:
		return r.Laugh
	default:
		return 0
	}
}

// Total sums every counter.
func (r Reactions) Total() int64 {
	return r.Like + r.Love + r.Laugh
}

// withDelta returns a copy with delta applied to the counter, floored at zero.
func (r Reactions) withDelta(reaction ReactionType, delta int64) (Reactions, error) {
	next := r
	switch reaction {
	case ReactionLike:
		next.Like = clampCounter(r.Like + delta)
	case ReactionLove:
		next.Love = clampCounter(r.Love + delta)
	case ReactionLaugh:
		next.Laugh = clampCounter(r.Laugh + delta)
	default:
		return r, fmt.Errorf("%w: unknown reaction type %q", ErrValidation, reaction)
	}
	return next, nil
}

func clampCounter(value int64) int64 {
	if value < 0 {
		return 0
	}
	return value
}

// Author identifies who wrote a confession or comment. The zero value is anonymous.
type Author struct {
	userID      UserID
	displayName string
}

// AnonymousAuthor returns the author value for unattributed content.
func AnonymousAuthor() Author {
	return Author{}
}

// AttributedAuthor returns an author value bound to a member. An empty user id yields an anonymous author.
func AttributedAuthor(userID UserID, displayName string) Author {
	if userID == "" {
		return AnonymousAuthor()
	}
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = anonymousUserLabel
	}
	return Author{userID: userID, displayName: name}
}

// Anonymous reports whether the author is hidden.
func (a Author) Anonymous() bool {
	return a.userID == ""
}

// UserID returns the attributed member id, empty for anonymous authors.
func (a Author) UserID() UserID {
	return a.userID
}

// DisplayName returns the attributed display name, empty for anonymous authors.
func (a Author) DisplayName() string {
	return a.displayName
}

// Caller describes the identity and privilege of the party invoking an operation.
// The zero value is an anonymous, unprivileged caller.
type Caller struct {
	userID      UserID
	displayName string
	privileged  bool
}

// AnonymousCaller returns a caller without a session.
func AnonymousCaller() Caller {
	return Caller{}
}

// AuthenticatedCaller returns a caller bound to a member identity.
func AuthenticatedCaller(userID UserID, displayName string, privileged bool) Caller {
	if userID == "" {
		return AnonymousCaller()
	}
	return Caller{
		userID:      userID,
		displayName: strings.TrimSpace(displayName),
		privileged:  privileged,
	}
}

// Authenticated reports whether the caller carries a member identity.
func (c Caller) Authenticated() bool {
	return c.userID != ""
}

// UserID returns the caller's member id, empty when anonymous.
func (c Caller) UserID() UserID {
	return c.userID
}

// DisplayName returns the caller's display name.
func (c Caller) DisplayName() string {
	return c.displayName
}

// Privileged reports whether the caller may moderate.
func (c Caller) Privileged() bool {
	return c.privileged
}

// Confession is the domain view of a stored confession.
type Confession struct {
	ID             ConfessionID
	Content        string
	Category       Category
	Status         Status
	RevealIdentity bool
	Author         Author
	Reactions      Reactions
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Comment is a reply attached to a confession.
type Comment struct {
	ID           CommentID
	ConfessionID ConfessionID
	Content      string
	Author       Author
	CreatedAt    time.Time
}

// ModerationAction names an audited moderator operation.
type ModerationAction string

const (
	ModerationActionApprove ModerationAction = "approve"
	ModerationActionReject  ModerationAction = "reject"
	ModerationActionRemove  ModerationAction = "remove"
)

// ModerationEvent is one entry of a confession's audit trail.
type ModerationEvent struct {
	ID           string
	ConfessionID ConfessionID
	Action       ModerationAction
	FromStatus   Status
	ToStatus     Status
	ActorID      UserID
	AppliedAt    time.Time
}

// ReactionResult reports the outcome of a reaction request.
type ReactionResult struct {
	// AppliedType is nil when the request toggled the caller's reaction off.
	AppliedType *ReactionType
	Confession  Confession
}
