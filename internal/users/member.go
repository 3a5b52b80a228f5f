package users

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is the privilege level of a member.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

var (
	// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrMemberNotFound indicates that no member exists for the identifier.
	ErrMemberNotFound = errors.New("users: member not found")
	// ErrInvalidRole indicates that a role outside the closed set was requested.
	ErrInvalidRole = errors.New("users: invalid role")
)

// ParseRole maps raw input onto a Role.
func ParseRole(rawInput string) (Role, error) {
	role := Role(strings.ToLower(normalize(rawInput)))
	switch role {
	case RoleStudent, RoleAdmin:
		return role, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, rawInput)
	}
}

// Member is a directory entry keyed by the canonical user id.
type Member struct {
	UserID      string    `gorm:"column:user_id;primaryKey;size:190;not null" json:"id"`
	Provider    string    `gorm:"column:provider;size:32;not null;uniqueIndex:idx_members_provider_subject,priority:1" json:"-"`
	Subject     string    `gorm:"column:subject;size:190;not null;uniqueIndex:idx_members_provider_subject,priority:2" json:"-"`
	Email       string    `gorm:"column:email;size:320" json:"email"`
	DisplayName string    `gorm:"column:display_name;size:320" json:"displayName"`
	AvatarURL   string    `gorm:"column:avatar_url;size:512" json:"avatarUrl,omitempty"`
	Role        Role      `gorm:"column:role;size:16;not null;default:'student'" json:"role"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;autoUpdateTime:false" json:"lastSeenAt"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime:false" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime:false" json:"updatedAt"`
}

// TableName exposes the table backing the member directory.
func (Member) TableName() string {
	return "members"
}

// Privileged reports whether the member may moderate.
func (m Member) Privileged() bool {
	return m.Role == RoleAdmin
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
