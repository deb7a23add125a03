package handlers

import (
	"strings"

	"github.com/famcare/backend/internal/models"
	"github.com/famcare/backend/internal/services"
	"github.com/famcare/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type LeadersHandler struct {
	DB      *gorm.DB
	Leaders *services.LeaderService
}

func NewLeadersHandler(db *gorm.DB, leaders *services.LeaderService) *LeadersHandler {
	return &LeadersHandler{DB: db, Leaders: leaders}
}

type createLeaderRequest struct {
	IdentityKey      string `json:"identityKey"`
	Email            string `json:"email"`
	FirstName        string `json:"firstName"`
	LastNamePaternal string `json:"lastNamePaternal"`
	LastNameMaternal string `json:"lastNameMaternal"`
	Password         string `json:"password"`
}

func (h *LeadersHandler) Create(c *fiber.Ctx) error {
	var req createLeaderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.IdentityKey = strings.TrimSpace(req.IdentityKey)
	req.Email = strings.TrimSpace(req.Email)
	if req.IdentityKey == "" {
		return utils.Error(c, fiber.StatusBadRequest, "identityKey is required")
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return utils.Error(c, fiber.StatusBadRequest, "invalid email")
	}

	leader, err := h.Leaders.CreateLeader(c.UserContext(), services.CreateLeaderParams{
		IdentityKey:      req.IdentityKey,
		Email:            req.Email,
		FirstName:        req.FirstName,
		LastNamePaternal: req.LastNamePaternal,
		LastNameMaternal: req.LastNameMaternal,
		Password:         req.Password,
	})
	if err != nil {
		return respondServiceError(c, err, "failed creating leader")
	}
	return utils.Success(c, fiber.StatusCreated, leader)
}

func (h *LeadersHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)
	search := strings.TrimSpace(c.Query("search"))

	query := h.DB.Model(&models.User{}).Where("is_leader = ?", true)
	if search != "" {
		searchValue := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR identity_key LIKE ?",
			searchValue,
			searchValue,
			searchValue,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting leaders")
	}

	var leaders []models.User
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&leaders).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing leaders")
	}

	return utils.Paginated(c, leaders, p.Page, p.Limit, total)
}

func (h *LeadersHandler) Get(c *fiber.Ctx) error {
	leader, err := h.Leaders.GetLeader(c.UserContext(), c.Params("shortId"))
	if err != nil {
		return respondServiceError(c, err, "failed loading leader")
	}
	return utils.Success(c, fiber.StatusOK, leader)
}

type updateLeaderRequest struct {
	Email            *string `json:"email"`
	FirstName        *string `json:"firstName"`
	LastNamePaternal *string `json:"lastNamePaternal"`
	LastNameMaternal *string `json:"lastNameMaternal"`
	Password         *string `json:"password"`
	IsActive         *bool   `json:"isActive"`
}

func (h *LeadersHandler) Update(c *fiber.Ctx) error {
	var req updateLeaderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Email != nil && !strings.Contains(*req.Email, "@") {
		return utils.Error(c, fiber.StatusBadRequest, "invalid email")
	}

	leader, err := h.Leaders.UpdateLeader(c.UserContext(), c.Params("shortId"), services.LeaderPatch{
		Email:            req.Email,
		FirstName:        req.FirstName,
		LastNamePaternal: req.LastNamePaternal,
		LastNameMaternal: req.LastNameMaternal,
		Password:         req.Password,
		IsActive:         req.IsActive,
	})
	if err != nil {
		return respondServiceError(c, err, "failed updating leader")
	}
	return utils.Success(c, fiber.StatusOK, leader)
}

func (h *LeadersHandler) Delete(c *fiber.Ctx) error {
	if err := h.Leaders.DeleteLeader(c.UserContext(), c.Params("shortId")); err != nil {
		return respondServiceError(c, err, "failed deleting leader")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "leader deleted"})
}
