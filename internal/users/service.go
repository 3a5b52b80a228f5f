package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/confessions/backend/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultProvider = "default"

// ServiceConfig describes the dependencies required for the member directory.
type ServiceConfig struct {
	Database        *gorm.DB
	Clock           func() time.Time
	BootstrapAdmins []string
	Logger          *zap.Logger
}

// Service manages the member directory and member roles.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	admins map[string]struct{}
	logger *zap.Logger
}

// NewService constructs the member directory service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	admins := make(map[string]struct{}, len(cfg.BootstrapAdmins))
	for _, id := range cfg.BootstrapAdmins {
		if trimmed := normalize(id); trimmed != "" {
			admins[trimmed] = struct{}{}
		}
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		admins: admins,
		logger: logger,
	}, nil
}

// ResolveMember returns the directory entry for the session claims, creating it on first sight
// and refreshing profile fields and last-seen time afterwards. Bootstrap admins are always admins.
func (s *Service) ResolveMember(ctx context.Context, claims auth.SessionClaims) (Member, error) {
	provider, subject := deriveProviderSubject(claims)
	if subject == "" {
		return Member{}, ErrInvalidIdentity
	}
	now := s.now().UTC()

	candidate := Member{
		UserID:      subject,
		Provider:    provider,
		Subject:     subject,
		Email:       normalize(claims.UserEmail),
		DisplayName: normalize(claims.UserDisplayName),
		AvatarURL:   normalize(claims.UserAvatarURL),
		Role:        s.initialRole(subject),
		LastSeenAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	db := s.db.WithContext(ctx)
	created := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&candidate)
	if created.Error != nil {
		s.logger.Error("member insert failed", zap.String("user_id", subject), zap.Error(created.Error))
		return Member{}, fmt.Errorf("users: create member: %w", created.Error)
	}
	if created.RowsAffected == 1 {
		return candidate, nil
	}

	var member Member
	if err := db.Where("user_id = ?", subject).Take(&member).Error; err != nil {
		s.logger.Error("member lookup failed", zap.String("user_id", subject), zap.Error(err))
		return Member{}, fmt.Errorf("users: load member: %w", err)
	}

	updates := map[string]interface{}{"last_seen_at": now}
	if email := candidate.Email; email != "" && email != member.Email {
		updates["email"] = email
		member.Email = email
	}
	if display := candidate.DisplayName; display != "" && display != member.DisplayName {
		updates["display_name"] = display
		member.DisplayName = display
	}
	if avatar := candidate.AvatarURL; avatar != "" && avatar != member.AvatarURL {
		updates["avatar_url"] = avatar
		member.AvatarURL = avatar
	}
	if s.isBootstrapAdmin(subject) && member.Role != RoleAdmin {
		updates["role"] = RoleAdmin
		member.Role = RoleAdmin
	}
	if len(updates) > 1 {
		updates["updated_at"] = now
		member.UpdatedAt = now
	}
	if err := db.Model(&Member{}).Where("user_id = ?", subject).Updates(updates).Error; err != nil {
		s.logger.Warn("member refresh failed", zap.String("user_id", subject), zap.Error(err))
	}
	member.LastSeenAt = now
	return member, nil
}

// ListMembers returns members whose display name or email contains search, ignoring case.
func (s *Service) ListMembers(ctx context.Context, search string) ([]Member, error) {
	query := s.db.WithContext(ctx).Model(&Member{})
	if needle := strings.ToLower(normalize(search)); needle != "" {
		pattern := "%" + needle + "%"
		query = query.Where("LOWER(display_name) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern)
	}
	var members []Member
	if err := query.Order("display_name ASC").Order("user_id ASC").Find(&members).Error; err != nil {
		s.logger.Error("member listing failed", zap.Error(err))
		return nil, fmt.Errorf("users: list members: %w", err)
	}
	return members, nil
}

// SetRole changes the role of an existing member.
func (s *Service) SetRole(ctx context.Context, userID string, role Role) (Member, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return Member{}, err
	}
	id := normalize(userID)
	if id == "" {
		return Member{}, ErrInvalidIdentity
	}

	var member Member
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Take(&member).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMemberNotFound
			}
			return err
		}
		now := s.now().UTC()
		if err := tx.Model(&Member{}).Where("user_id = ?", id).
			Updates(map[string]interface{}{"role": role, "updated_at": now}).Error; err != nil {
			return err
		}
		member.Role = role
		member.UpdatedAt = now
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrMemberNotFound) {
			s.logger.Error("member role update failed", zap.String("user_id", id), zap.Error(err))
		}
		return Member{}, err
	}
	s.logger.Info("member role updated", zap.String("user_id", id), zap.String("role", string(role)))
	return member, nil
}

// DeleteMember removes the directory entry. Reactions and confessions of the member are left intact.
func (s *Service) DeleteMember(ctx context.Context, userID string) error {
	id := normalize(userID)
	if id == "" {
		return ErrInvalidIdentity
	}
	result := s.db.WithContext(ctx).Where("user_id = ?", id).Delete(&Member{})
	if result.Error != nil {
		s.logger.Error("member delete failed", zap.String("user_id", id), zap.Error(result.Error))
		return fmt.Errorf("users: delete member: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrMemberNotFound
	}
	return nil
}

func (s *Service) initialRole(userID string) Role {
	if s.isBootstrapAdmin(userID) {
		return RoleAdmin
	}
	return RoleStudent
}

func (s *Service) isBootstrapAdmin(userID string) bool {
	_, ok := s.admins[userID]
	return ok
}

func deriveProviderSubject(claims auth.SessionClaims) (string, string) {
	provider := defaultProvider
	subject := normalize(claims.Subject)

	raw := normalize(claims.UserID)
	if raw != "" {
		if strings.Contains(raw, ":") {
			segments := strings.SplitN(raw, ":", 2)
			if normalize(segments[0]) != "" && normalize(segments[1]) != "" {
				provider = normalize(segments[0])
				subject = normalize(segments[1])
			}
		} else if subject == "" {
			subject = raw
		}
	}

	if subject == "" {
		subject = normalize(claims.UserEmail)
	}

	return provider, subject
}
