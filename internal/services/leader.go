package services

import (
	"context"
	"errors"

	"github.com/famcare/backend/internal/models"
	"github.com/famcare/backend/pkg/logger"
	"github.com/famcare/backend/pkg/utils"
	"gorm.io/gorm"
)

// LeaderService manages leader-role users independently of any group. Leaders
// who already own a group are managed through the group operations instead.
type LeaderService struct {
	DB *gorm.DB
}

func NewLeaderService(db *gorm.DB) *LeaderService {
	return &LeaderService{DB: db}
}

type CreateLeaderParams struct {
	IdentityKey      string
	Email            string
	FirstName        string
	LastNamePaternal string
	LastNameMaternal string
	Password         string
}

func (s *LeaderService) CreateLeader(ctx context.Context, params CreateLeaderParams) (*models.User, error) {
	var leader models.User

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).
			Where("identity_key = ? OR email = ?", params.IdentityKey, params.Email).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fail(ErrConflict, "identity or email already registered")
		}

		password := params.Password
		if password == "" {
			generated, err := generatePassword()
			if err != nil {
				return err
			}
			password = generated
		}
		hash, err := utils.HashPassword(password)
		if err != nil {
			return err
		}

		shortID, err := allocateShortID(userShortIDExists(tx))
		if err != nil {
			return err
		}

		leader = models.User{
			ShortID:          shortID,
			IdentityKey:      params.IdentityKey,
			Email:            params.Email,
			Username:         generatedUsername(params.IdentityKey),
			PasswordHash:     hash,
			FirstName:        params.FirstName,
			LastNamePaternal: params.LastNamePaternal,
			LastNameMaternal: params.LastNameMaternal,
			IsActive:         true,
			IsLeader:         true,
		}
		if err := tx.Create(&leader).Error; err != nil {
			return translateStoreError(err, "identity or email already registered")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.InfoWithUser(leader.ShortID, "leader_created", map[string]interface{}{
		"identity_key": leader.IdentityKey,
	})
	return &leader, nil
}

type LeaderPatch struct {
	Email            *string
	FirstName        *string
	LastNamePaternal *string
	LastNameMaternal *string
	Password         *string
	IsActive         *bool
}

// UpdateLeader mutates a groupless leader. A leader holding an active group is
// out of scope for this path and reported as a conflict.
func (s *LeaderService) UpdateLeader(ctx context.Context, shortID string, patch LeaderPatch) (*models.User, error) {
	var leader models.User

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.grouplessLeader(tx, shortID, &leader); err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if patch.Email != nil && *patch.Email != leader.Email {
			var count int64
			if err := tx.Model(&models.User{}).
				Where("email = ? AND id <> ?", *patch.Email, leader.ID).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return fail(ErrConflict, "email already registered to another user")
			}
			updates["email"] = *patch.Email
		}
		if patch.FirstName != nil {
			updates["first_name"] = *patch.FirstName
		}
		if patch.LastNamePaternal != nil {
			updates["last_name_paternal"] = *patch.LastNamePaternal
		}
		if patch.LastNameMaternal != nil {
			updates["last_name_maternal"] = *patch.LastNameMaternal
		}
		if patch.IsActive != nil {
			updates["is_active"] = *patch.IsActive
		}
		if patch.Password != nil {
			hash, err := utils.HashPassword(*patch.Password)
			if err != nil {
				return err
			}
			updates["password_hash"] = hash
		}

		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&models.User{}).Where("id = ?", leader.ID).Updates(updates).Error; err != nil {
			return translateStoreError(err, "email already registered to another user")
		}
		return tx.First(&leader, "id = ?", leader.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &leader, nil
}

// DeleteLeader removes a groupless leader unconditionally once the
// preconditions hold.
func (s *LeaderService) DeleteLeader(ctx context.Context, shortID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var leader models.User
		if err := s.grouplessLeader(tx, shortID, &leader); err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", leader.ID).Error
	})
}

// GetLeader loads a leader by short id.
func (s *LeaderService) GetLeader(ctx context.Context, shortID string) (*models.User, error) {
	var leader models.User
	err := s.DB.WithContext(ctx).First(&leader, "short_id = ? AND is_leader = ?", shortID, true).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fail(ErrNotFound, "leader not found")
		}
		return nil, err
	}
	return &leader, nil
}

func (s *LeaderService) grouplessLeader(tx *gorm.DB, shortID string, leader *models.User) error {
	if err := tx.First(leader, "short_id = ?", shortID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(ErrNotFound, "leader not found")
		}
		return err
	}
	if !leader.IsLeader {
		return fail(ErrNotFound, "leader not found")
	}
	if leader.GroupID != nil {
		return fail(ErrConflict, "leader with an active group is managed through the group")
	}
	return nil
}
