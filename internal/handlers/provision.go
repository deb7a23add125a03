package handlers

import (
	"github.com/famcare/backend/internal/middleware"
	"github.com/famcare/backend/internal/services"
	"github.com/famcare/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type ProvisionHandler struct {
	Family *services.FamilyService
}

func NewProvisionHandler(family *services.FamilyService) *ProvisionHandler {
	return &ProvisionHandler{Family: family}
}

type provisionRequest struct {
	Email            string `json:"email"`
	FirstName        string `json:"firstName"`
	LastNamePaternal string `json:"lastNamePaternal"`
	LastNameMaternal string `json:"lastNameMaternal"`
}

// Provision runs the idempotent find-or-create flow for the authenticated
// identity. The body is optional; fields act as hints when the patient
// registry has no record.
func (h *ProvisionHandler) Provision(c *fiber.Ctx) error {
	identityKey := middleware.GetIdentityKey(c)
	if identityKey == "" {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req provisionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	result, err := h.Family.EnsureGroupForIdentity(c.UserContext(), identityKey, services.ProfileHints{
		Email:            req.Email,
		FirstName:        req.FirstName,
		LastNamePaternal: req.LastNamePaternal,
		LastNameMaternal: req.LastNameMaternal,
	})
	if err != nil {
		return respondServiceError(c, err, "failed provisioning family group")
	}

	status := fiber.StatusOK
	if result.CreatedUser || result.CreatedGroup {
		status = fiber.StatusCreated
	}
	return utils.Success(c, status, result)
}
