package confessions

import "time"

// confessionRecord is the persisted layout of a confession.
type confessionRecord struct {
	ID                string    `gorm:"column:id;primaryKey;size:190;not null"`
	Content           string    `gorm:"column:content;type:text;not null"`
	Category          Category  `gorm:"column:category;size:32;not null;default:'other';index:idx_confessions_category_created,priority:1"`
	Status            Status    `gorm:"column:status;size:16;not null;default:'pending';index:idx_confessions_status_created,priority:1"`
	RevealIdentity    bool      `gorm:"column:reveal_identity;not null;default:false"`
	AuthorID          *string   `gorm:"column:author_id;size:190;index"`
	AuthorDisplayName *string   `gorm:"column:author_display_name;size:320"`
	Reactions         Reactions `gorm:"embedded;embeddedPrefix:reaction_"`
	CreatedAt         time.Time `gorm:"column:created_at;not null;autoCreateTime:false;index:idx_confessions_status_created,priority:2;index:idx_confessions_category_created,priority:2"`
	UpdatedAt         time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

// TableName provides the explicit table binding for GORM.
func (confessionRecord) TableName() string {
	return "confessions"
}

// reactionRecord is the ledger row: one active reaction per member per confession.
type reactionRecord struct {
	UserID       string       `gorm:"column:user_id;primaryKey;size:190;not null"`
	ConfessionID string       `gorm:"column:confession_id;primaryKey;size:190;not null;index"`
	Type         ReactionType `gorm:"column:type;size:16;not null"`
	CreatedAt    time.Time    `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt    time.Time    `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

// TableName provides the explicit table binding for GORM.
func (reactionRecord) TableName() string {
	return "confession_reactions"
}

type commentRecord struct {
	ID                string    `gorm:"column:id;primaryKey;size:190;not null"`
	ConfessionID      string    `gorm:"column:confession_id;size:190;not null;index:idx_comments_confession_created,priority:1"`
	Content           string    `gorm:"column:content;type:text;not null"`
	AuthorID          *string   `gorm:"column:author_id;size:190"`
	AuthorDisplayName *string   `gorm:"column:author_display_name;size:320"`
	CreatedAt         time.Time `gorm:"column:created_at;not null;autoCreateTime:false;index:idx_comments_confession_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (commentRecord) TableName() string {
	return "confession_comments"
}

// moderationEventRecord is an append-only audit row. It outlives the confession it references.
type moderationEventRecord struct {
	ID           string           `gorm:"column:id;primaryKey;size:190;not null"`
	ConfessionID string           `gorm:"column:confession_id;size:190;not null;index:idx_moderation_confession_applied,priority:1"`
	Action       ModerationAction `gorm:"column:action;size:16;not null"`
	FromStatus   Status           `gorm:"column:from_status;size:16;not null"`
	ToStatus     Status           `gorm:"column:to_status;size:16;not null;default:''"`
	ActorID      *string          `gorm:"column:actor_id;size:190"`
	AppliedAt    time.Time        `gorm:"column:applied_at;not null;index:idx_moderation_confession_applied,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (moderationEventRecord) TableName() string {
	return "moderation_events"
}

// Schema returns the models backing the confessions tables, for migration.
func Schema() []any {
	return []any{
		&confessionRecord{},
		&reactionRecord{},
		&commentRecord{},
		&moderationEventRecord{},
	}
}

func recordFromConfession(confession Confession) confessionRecord {
	authorID, displayName := authorColumns(confession.Author)
	return confessionRecord{
		ID:                confession.ID.String(),
		Content:           confession.Content,
		Category:          confession.Category,
		Status:            confession.Status,
		RevealIdentity:    confession.RevealIdentity,
		AuthorID:          authorID,
		AuthorDisplayName: displayName,
		Reactions:         confession.Reactions,
		CreatedAt:         confession.CreatedAt,
		UpdatedAt:         confession.UpdatedAt,
	}
}

func (record confessionRecord) toConfession() Confession {
	return Confession{
		ID:             ConfessionID(record.ID),
		Content:        record.Content,
		Category:       record.Category,
		Status:         record.Status,
		RevealIdentity: record.RevealIdentity,
		Author:         authorFromColumns(record.RevealIdentity, record.AuthorID, record.AuthorDisplayName),
		Reactions:      record.Reactions,
		CreatedAt:      record.CreatedAt.UTC(),
		UpdatedAt:      record.UpdatedAt.UTC(),
	}
}

func (record commentRecord) toComment() Comment {
	return Comment{
		ID:           CommentID(record.ID),
		ConfessionID: ConfessionID(record.ConfessionID),
		Content:      record.Content,
		Author:       authorFromColumns(true, record.AuthorID, record.AuthorDisplayName),
		CreatedAt:    record.CreatedAt.UTC(),
	}
}

func (record moderationEventRecord) toEvent() ModerationEvent {
	event := ModerationEvent{
		ID:           record.ID,
		ConfessionID: ConfessionID(record.ConfessionID),
		Action:       record.Action,
		FromStatus:   record.FromStatus,
		ToStatus:     record.ToStatus,
		AppliedAt:    record.AppliedAt.UTC(),
	}
	if record.ActorID != nil {
		event.ActorID = UserID(*record.ActorID)
	}
	return event
}

func authorColumns(author Author) (*string, *string) {
	if author.Anonymous() {
		return nil, nil
	}
	return pointerTo(author.UserID().String()), pointerTo(author.DisplayName())
}

// authorFromColumns rebuilds the tagged author; stored attribution is ignored unless revealed.
func authorFromColumns(revealed bool, authorID, displayName *string) Author {
	if !revealed || authorID == nil || *authorID == "" {
		return AnonymousAuthor()
	}
	name := ""
	if displayName != nil {
		name = *displayName
	}
	return AttributedAuthor(UserID(*authorID), name)
}

func pointerTo(value string) *string {
	v := value
	return &v
}
