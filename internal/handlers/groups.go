package handlers

import (
	"strings"

	"github.com/famcare/backend/internal/middleware"
	"github.com/famcare/backend/internal/models"
	"github.com/famcare/backend/internal/services"
	"github.com/famcare/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type GroupsHandler struct {
	DB     *gorm.DB
	Family *services.FamilyService
}

func NewGroupsHandler(db *gorm.DB, family *services.FamilyService) *GroupsHandler {
	return &GroupsHandler{DB: db, Family: family}
}

type createGroupRequest struct {
	LeaderID   string `json:"leaderId"`
	GroupID    string `json:"groupId"`
	AppToken   string `json:"appToken"`
	MaxMembers int    `json:"maxMembers"`
}

func (h *GroupsHandler) Create(c *fiber.Ctx) error {
	var req createGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.LeaderID = strings.TrimSpace(req.LeaderID)
	if req.LeaderID == "" {
		return utils.Error(c, fiber.StatusBadRequest, "leaderId is required")
	}
	if req.MaxMembers != 0 && (req.MaxMembers < 1 || req.MaxMembers > models.DefaultMaxMembers) {
		return utils.Error(c, fiber.StatusBadRequest, "maxMembers must be between 1 and 8")
	}

	group, leader, err := h.Family.CreateGroup(c.UserContext(), services.CreateGroupParams{
		LeaderShortID: req.LeaderID,
		GroupID:       strings.TrimSpace(req.GroupID),
		AppToken:      strings.TrimSpace(req.AppToken),
		MaxMembers:    req.MaxMembers,
	})
	if err != nil {
		return respondServiceError(c, err, "failed creating group")
	}

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"group":  group,
		"leader": leader,
	})
}

func (h *GroupsHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.FamilyGroup{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting groups")
	}

	var groups []models.FamilyGroup
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&groups).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing groups")
	}

	return utils.Paginated(c, groups, p.Page, p.Limit, total)
}

func (h *GroupsHandler) Get(c *fiber.Ctx) error {
	group, err := h.Family.GetGroup(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading group")
	}
	return utils.Success(c, fiber.StatusOK, group)
}

type updateGroupRequest struct {
	AppToken   *string `json:"appToken"`
	MaxMembers *int    `json:"maxMembers"`
	LeaderID   *string `json:"leaderId"`
}

func (h *GroupsHandler) Update(c *fiber.Ctx) error {
	var req updateGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.AppToken == nil && req.MaxMembers == nil && req.LeaderID == nil {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}
	if req.MaxMembers != nil && (*req.MaxMembers < 1 || *req.MaxMembers > models.DefaultMaxMembers) {
		return utils.Error(c, fiber.StatusBadRequest, "maxMembers must be between 1 and 8")
	}

	group, err := h.Family.UpdateGroup(c.UserContext(), c.Params("id"), services.GroupPatch{
		AppToken:   req.AppToken,
		MaxMembers: req.MaxMembers,
		LeaderID:   req.LeaderID,
	}, requesterShortID(c))
	if err != nil {
		return respondServiceError(c, err, "failed updating group")
	}
	return utils.Success(c, fiber.StatusOK, group)
}

func (h *GroupsHandler) Delete(c *fiber.Ctx) error {
	if err := h.Family.DeleteGroup(c.UserContext(), c.Params("id"), requesterShortID(c)); err != nil {
		return respondServiceError(c, err, "failed deleting group")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "group deleted"})
}

type addMemberRequest struct {
	IdentityKey      string `json:"identityKey"`
	Email            string `json:"email"`
	FirstName        string `json:"firstName"`
	LastNamePaternal string `json:"lastNamePaternal"`
	LastNameMaternal string `json:"lastNameMaternal"`
}

func (h *GroupsHandler) AddMember(c *fiber.Ctx) error {
	var req addMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.IdentityKey = strings.TrimSpace(req.IdentityKey)
	if req.IdentityKey == "" {
		return utils.Error(c, fiber.StatusBadRequest, "identityKey is required")
	}

	member, err := h.Family.AddMember(c.UserContext(), c.Params("id"), services.AddMemberParams{
		IdentityKey:        req.IdentityKey,
		Email:              strings.TrimSpace(req.Email),
		FirstName:          req.FirstName,
		LastNamePaternal:   req.LastNamePaternal,
		LastNameMaternal:   req.LastNameMaternal,
		RequestingLeaderID: requesterShortID(c),
	})
	if err != nil {
		return respondServiceError(c, err, "failed adding member")
	}
	return utils.Success(c, fiber.StatusCreated, member)
}

func (h *GroupsHandler) RemoveMember(c *fiber.Ctx) error {
	requester := requesterShortID(c)
	if requester == "" {
		return utils.Error(c, fiber.StatusForbidden, "only the group leader can remove members")
	}

	err := h.Family.RemoveMember(c.UserContext(), c.Params("id"), c.Params("shortId"), requester)
	if err != nil {
		return respondServiceError(c, err, "failed removing member")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "member removed"})
}

// requesterShortID identifies the caller when their identity has a local user
// row. Empty means "trusted caller": the engine skips the leadership check for
// operations where the requester is optional.
func requesterShortID(c *fiber.Ctx) string {
	if user := middleware.GetCurrentUser(c); user != nil {
		return user.ShortID
	}
	return ""
}
