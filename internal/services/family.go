package services

import (
	"context"
	"errors"
	"strings"

	"github.com/famcare/backend/internal/models"
	"github.com/famcare/backend/pkg/logger"
	"github.com/famcare/backend/pkg/utils"
	"gorm.io/gorm"
)

// FamilyService is the provisioning engine for leader/group pairs. It holds no
// state between calls; every multi-row mutation runs inside one store
// transaction and relies on the unique constraints in internal/models as the
// last line of defense against concurrent writers.
type FamilyService struct {
	DB       *gorm.DB
	Registry PatientLookup
}

func NewFamilyService(db *gorm.DB, registry PatientLookup) *FamilyService {
	return &FamilyService{DB: db, Registry: registry}
}

type CreateGroupParams struct {
	LeaderShortID string
	GroupID       string
	AppToken      string
	MaxMembers    int
}

// ProfileHints are caller-supplied biographical fields used when the patient
// registry has no record (or a partial one) for an identity key.
type ProfileHints struct {
	Email            string
	FirstName        string
	LastNamePaternal string
	LastNameMaternal string
}

func (h ProfileHints) empty() bool {
	return h.Email == "" && h.FirstName == "" && h.LastNamePaternal == "" && h.LastNameMaternal == ""
}

type ProvisionResult struct {
	User         *models.User        `json:"user"`
	Group        *models.FamilyGroup `json:"group"`
	CreatedUser  bool                `json:"createdUser"`
	CreatedGroup bool                `json:"createdGroup"`
	Message      string              `json:"message"`
}

// CreateGroup provisions a group for an existing leader who has none. The
// registry validation beforehand is advisory: its outcome is logged and never
// blocks creation.
func (s *FamilyService) CreateGroup(ctx context.Context, params CreateGroupParams) (*models.FamilyGroup, *models.User, error) {
	var (
		group  models.FamilyGroup
		leader models.User
	)

	if result := s.Registry.Validate(ctx, params.LeaderShortID); !result.OK {
		logger.Warn("leader_validation_failed", map[string]interface{}{
			"leader_id": params.LeaderShortID,
			"detail":    result.Detail,
		})
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&leader, "short_id = ?", params.LeaderShortID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fail(ErrNotFound, "leader not found")
			}
			return err
		}
		if leader.GroupID != nil {
			return fail(ErrConflict, "leader already belongs to a group")
		}

		var existing int64
		if err := tx.Model(&models.FamilyGroup{}).Where("leader_id = ?", leader.ShortID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fail(ErrConflict, "a group already lists this leader")
		}

		groupID := params.GroupID
		if groupID == "" {
			allocated, err := allocateShortID(groupShortIDExists(tx))
			if err != nil {
				return err
			}
			groupID = allocated
		} else {
			taken, err := groupShortIDExists(tx)(groupID)
			if err != nil {
				return err
			}
			if taken {
				return fail(ErrConflict, "requested group id is already taken")
			}
		}

		token := params.AppToken
		if token == "" {
			allocated, err := allocateShortID(appTokenExists(tx))
			if err != nil {
				return err
			}
			token = allocated
		}

		maxMembers := params.MaxMembers
		if maxMembers == 0 {
			maxMembers = models.DefaultMaxMembers
		}

		group = models.FamilyGroup{
			ShortID:    groupID,
			LeaderID:   leader.ShortID,
			AppToken:   token,
			MaxMembers: maxMembers,
		}
		if err := tx.Create(&group).Error; err != nil {
			return translateStoreError(err, "group identifier or token already in use")
		}

		if err := tx.Model(&models.User{}).Where("id = ?", leader.ID).Updates(map[string]interface{}{
			"group_id":  group.ShortID,
			"is_leader": true,
		}).Error; err != nil {
			return err
		}
		leader.GroupID = &group.ShortID
		leader.IsLeader = true
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logger.InfoWithUser(leader.ShortID, "group_created", map[string]interface{}{
		"group_id": group.ShortID,
	})
	return &group, &leader, nil
}

// EnsureGroupForIdentity is the idempotent auto-provision entry point: given
// only a verified identity key it resolves or creates the leader user and
// their group, all inside one transaction, and reports which records were
// newly minted. Repeat calls for the same identity are side-effect free.
func (s *FamilyService) EnsureGroupForIdentity(ctx context.Context, identityKey string, hints ProfileHints) (*ProvisionResult, error) {
	result := &ProvisionResult{}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		err := tx.First(&user, "identity_key = ?", identityKey).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			created, err := s.createLeaderFromIdentity(ctx, tx, identityKey, hints)
			if err != nil {
				return err
			}
			user = *created
			result.CreatedUser = true
		case err != nil:
			return err
		default:
			if err := s.reconcileProfile(ctx, tx, &user, hints); err != nil {
				return err
			}
		}

		// A plain member of someone else's group cannot be auto-promoted into
		// leading it; detach first, then provision a group of their own.
		if user.GroupID != nil {
			var current models.FamilyGroup
			err := tx.First(&current, "short_id = ?", *user.GroupID).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if errors.Is(err, gorm.ErrRecordNotFound) || current.LeaderID != user.ShortID {
				if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Update("group_id", nil).Error; err != nil {
					return err
				}
				user.GroupID = nil
			} else {
				result.Group = &current
			}
		}

		if user.GroupID == nil {
			groupID, err := allocateShortID(groupShortIDExists(tx))
			if err != nil {
				return err
			}
			token, err := allocateShortID(appTokenExists(tx))
			if err != nil {
				return err
			}
			group := models.FamilyGroup{
				ShortID:    groupID,
				LeaderID:   user.ShortID,
				AppToken:   token,
				MaxMembers: models.DefaultMaxMembers,
			}
			if err := tx.Create(&group).Error; err != nil {
				return translateStoreError(err, "group already provisioned for this leader")
			}
			if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
				"group_id":  group.ShortID,
				"is_leader": true,
			}).Error; err != nil {
				return err
			}
			user.GroupID = &group.ShortID
			user.IsLeader = true
			result.Group = &group
			result.CreatedGroup = true
		}

		result.User = &user
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case result.CreatedUser && result.CreatedGroup:
		result.Message = "user and family group created"
	case result.CreatedGroup:
		result.Message = "family group created for existing user"
	default:
		result.Message = "user and family group already existed"
	}

	logger.InfoWithUser(result.User.ShortID, "identity_provisioned", map[string]interface{}{
		"group_id":      result.Group.ShortID,
		"created_user":  result.CreatedUser,
		"created_group": result.CreatedGroup,
	})
	return result, nil
}

// createLeaderFromIdentity synthesizes a leader row from the registry record
// and caller hints. The registry lookup is mandatory only when no hints can
// stand in for it.
func (s *FamilyService) createLeaderFromIdentity(ctx context.Context, tx *gorm.DB, identityKey string, hints ProfileHints) (*models.User, error) {
	record, err := s.Registry.FindPatient(ctx, identityKey)
	if err != nil {
		if hints.empty() {
			if errors.Is(err, ErrNotFound) {
				return nil, fail(ErrNotFound, "identity could not be resolved")
			}
			return nil, err
		}
		record = &PatientRecord{}
	}

	email := firstNonEmpty(record.Email, hints.Email, fallbackEmail(identityKey))

	password, err := generatePassword()
	if err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}

	shortID, err := allocateShortID(userShortIDExists(tx))
	if err != nil {
		return nil, err
	}

	user := models.User{
		ShortID:          shortID,
		IdentityKey:      identityKey,
		Email:            email,
		Username:         generatedUsername(identityKey),
		PasswordHash:     hash,
		FirstName:        firstNonEmpty(record.Name, hints.FirstName),
		LastNamePaternal: firstNonEmpty(record.PaternalSurname, hints.LastNamePaternal),
		LastNameMaternal: firstNonEmpty(record.MaternalSurname, hints.LastNameMaternal),
		IsActive:         true,
		IsLeader:         true,
	}
	if err := tx.Create(&user).Error; err != nil {
		return nil, translateStoreError(err, "identity already registered")
	}
	return &user, nil
}

// reconcileProfile overwrites only the mutable fields that differ from freshly
// resolved values, and forces the leader flag. Registry absence is not an
// error here; the user already exists.
func (s *FamilyService) reconcileProfile(ctx context.Context, tx *gorm.DB, user *models.User, hints ProfileHints) error {
	record, err := s.Registry.FindPatient(ctx, user.IdentityKey)
	if err != nil {
		record = &PatientRecord{}
	}

	updates := map[string]interface{}{}
	if email := firstNonEmpty(record.Email, hints.Email); email != "" && email != user.Email {
		updates["email"] = email
		user.Email = email
	}
	if name := firstNonEmpty(record.Name, hints.FirstName); name != "" && name != user.FirstName {
		updates["first_name"] = name
		user.FirstName = name
	}
	if surname := firstNonEmpty(record.PaternalSurname, hints.LastNamePaternal); surname != "" && surname != user.LastNamePaternal {
		updates["last_name_paternal"] = surname
		user.LastNamePaternal = surname
	}
	if surname := firstNonEmpty(record.MaternalSurname, hints.LastNameMaternal); surname != "" && surname != user.LastNameMaternal {
		updates["last_name_maternal"] = surname
		user.LastNameMaternal = surname
	}
	if !user.IsLeader {
		updates["is_leader"] = true
		user.IsLeader = true
	}

	if len(updates) == 0 {
		return nil
	}
	if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return translateStoreError(err, "email already registered to another user")
	}
	return nil
}

type AddMemberParams struct {
	IdentityKey        string
	Email              string
	FirstName          string
	LastNamePaternal   string
	LastNameMaternal   string
	RequestingLeaderID string
}

// AddMember attaches an existing free user to the group or creates a new
// member row, capacity permitting. The count check and the write share one
// transaction so the capacity ceiling holds at the store boundary.
func (s *FamilyService) AddMember(ctx context.Context, groupShortID string, params AddMemberParams) (*models.User, error) {
	var member models.User

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.FamilyGroup
		if err := tx.First(&group, "short_id = ?", groupShortID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fail(ErrNotFound, "group not found")
			}
			return err
		}
		if params.RequestingLeaderID != "" && params.RequestingLeaderID != group.LeaderID {
			return fail(ErrForbidden, "only the group leader can add members")
		}

		var count int64
		if err := tx.Model(&models.User{}).Where("group_id = ?", group.ShortID).Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(group.MaxMembers) {
			return fail(ErrConflict, "group is full")
		}

		err := tx.First(&member, "identity_key = ?", params.IdentityKey).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			password, err := generatePassword()
			if err != nil {
				return err
			}
			hash, err := utils.HashPassword(password)
			if err != nil {
				return err
			}
			shortID, err := allocateShortID(userShortIDExists(tx))
			if err != nil {
				return err
			}
			member = models.User{
				ShortID:          shortID,
				IdentityKey:      params.IdentityKey,
				Email:            firstNonEmpty(params.Email, fallbackEmail(params.IdentityKey)),
				Username:         generatedUsername(params.IdentityKey),
				PasswordHash:     hash,
				FirstName:        params.FirstName,
				LastNamePaternal: params.LastNamePaternal,
				LastNameMaternal: params.LastNameMaternal,
				IsActive:         true,
				GroupID:          &group.ShortID,
			}
			if err := tx.Create(&member).Error; err != nil {
				return translateStoreError(err, "identity or email already registered")
			}
			return nil
		case err != nil:
			return err
		}

		if member.GroupID != nil {
			if *member.GroupID == group.ShortID {
				return fail(ErrConflict, "user is already a member of this group")
			}
			return fail(ErrConflict, "user already belongs to another group")
		}
		if err := tx.Model(&models.User{}).Where("id = ?", member.ID).Update("group_id", group.ShortID).Error; err != nil {
			return err
		}
		member.GroupID = &group.ShortID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// RemoveMember detaches a member from the group without deleting the user row.
// The leader cannot be removed this way; that only happens through group
// deletion or an explicit leadership transfer.
func (s *FamilyService) RemoveMember(ctx context.Context, groupShortID, memberShortID, requestingLeaderID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.FamilyGroup
		if err := tx.First(&group, "short_id = ?", groupShortID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fail(ErrNotFound, "group not found")
			}
			return err
		}
		if requestingLeaderID != group.LeaderID {
			return fail(ErrForbidden, "only the group leader can remove members")
		}
		if memberShortID == group.LeaderID {
			return fail(ErrForbidden, "the leader cannot be removed from their own group")
		}

		var member models.User
		if err := tx.First(&member, "short_id = ?", memberShortID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fail(ErrNotFound, "member not found")
			}
			return err
		}
		if member.GroupID == nil || *member.GroupID != group.ShortID {
			return fail(ErrNotFound, "user is not a member of this group")
		}

		return tx.Model(&models.User{}).Where("id = ?", member.ID).Update("group_id", nil).Error
	})
}

type GroupPatch struct {
	AppToken   *string
	MaxMembers *int
	LeaderID   *string
}

// UpdateGroup applies the patch verbatim to the group row. Leader reassignment
// deliberately does not re-link the old and new leaders' user rows; see
// DESIGN.md for why that source behavior is preserved.
func (s *FamilyService) UpdateGroup(ctx context.Context, groupShortID string, patch GroupPatch, requestingLeaderID string) (*models.FamilyGroup, error) {
	var group models.FamilyGroup

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&group, "short_id = ?", groupShortID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fail(ErrNotFound, "group not found")
			}
			return err
		}
		if requestingLeaderID != "" && requestingLeaderID != group.LeaderID {
			return fail(ErrForbidden, "only the group leader can update the group")
		}

		updates := map[string]interface{}{}
		if patch.AppToken != nil {
			updates["app_token"] = *patch.AppToken
		}
		if patch.MaxMembers != nil {
			updates["max_members"] = *patch.MaxMembers
		}
		if patch.LeaderID != nil && *patch.LeaderID != group.LeaderID {
			var newLeader models.User
			if err := tx.First(&newLeader, "short_id = ?", *patch.LeaderID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fail(ErrNotFound, "new leader not found")
				}
				return err
			}
			if newLeader.GroupID != nil {
				return fail(ErrConflict, "new leader already belongs to a group")
			}
			updates["leader_id"] = *patch.LeaderID
		}

		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&models.FamilyGroup{}).Where("id = ?", group.ID).Updates(updates).Error; err != nil {
			return translateStoreError(err, "token or leader already in use by another group")
		}
		return tx.First(&group, "id = ?", group.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// DeleteGroup removes the group row. Detaching every member (the leader
// included) is the store's ON DELETE SET NULL cascade, so there is no window
// where the group is gone but members still point at it.
func (s *FamilyService) DeleteGroup(ctx context.Context, groupShortID, requestingLeaderID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.FamilyGroup
		if err := tx.First(&group, "short_id = ?", groupShortID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fail(ErrNotFound, "group not found")
			}
			return err
		}
		if requestingLeaderID != "" && requestingLeaderID != group.LeaderID {
			return fail(ErrForbidden, "only the group leader can delete the group")
		}
		return tx.Delete(&models.FamilyGroup{}, "id = ?", group.ID).Error
	})
}

// GetGroup loads a group with its members preloaded.
func (s *FamilyService) GetGroup(ctx context.Context, groupShortID string) (*models.FamilyGroup, error) {
	var group models.FamilyGroup
	err := s.DB.WithContext(ctx).Preload("Members").First(&group, "short_id = ?", groupShortID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fail(ErrNotFound, "group not found")
		}
		return nil, err
	}
	return &group, nil
}

func userShortIDExists(tx *gorm.DB) func(string) (bool, error) {
	return func(candidate string) (bool, error) {
		var count int64
		err := tx.Model(&models.User{}).Where("short_id = ?", candidate).Count(&count).Error
		return count > 0, err
	}
}

func groupShortIDExists(tx *gorm.DB) func(string) (bool, error) {
	return func(candidate string) (bool, error) {
		var count int64
		err := tx.Model(&models.FamilyGroup{}).Where("short_id = ?", candidate).Count(&count).Error
		return count > 0, err
	}
}

func appTokenExists(tx *gorm.DB) func(string) (bool, error) {
	return func(candidate string) (bool, error) {
		var count int64
		err := tx.Model(&models.FamilyGroup{}).Where("app_token = ?", candidate).Count(&count).Error
		return count > 0, err
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// generatedUsername derives a username from the numeric prefix of the
// identity key, e.g. "11111111-1" becomes "fam11111111".
func generatedUsername(identityKey string) string {
	digits := numericPrefix(identityKey)
	if digits == "" {
		return "fam" + strings.ToLower(identityKey)
	}
	return "fam" + digits
}

func numericPrefix(identityKey string) string {
	for i, r := range identityKey {
		if r < '0' || r > '9' {
			return identityKey[:i]
		}
	}
	return identityKey
}

func fallbackEmail(identityKey string) string {
	digits := numericPrefix(identityKey)
	if digits == "" {
		digits = strings.ToLower(identityKey)
	}
	return digits + "@autoprov.famcare.local"
}
