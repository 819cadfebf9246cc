// internal/handlers/application.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/loanbridge/loanbridge-backend/internal/services"
	"github.com/loanbridge/loanbridge-backend/internal/utils"
)

type ApplicationHandler struct {
	applicationService *services.ApplicationService
	calculationService *services.OfferCalculationService
	offerService       *services.OfferService
	selectionService   *services.OfferSelectionService
}

func NewApplicationHandler(applicationService *services.ApplicationService,
	calculationService *services.OfferCalculationService,
	offerService *services.OfferService,
	selectionService *services.OfferSelectionService) *ApplicationHandler {
	return &ApplicationHandler{
		applicationService: applicationService,
		calculationService: calculationService,
		offerService:       offerService,
		selectionService:   selectionService,
	}
}

// POST /applications
func (h *ApplicationHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}

	application, err := h.applicationService.CreateApplication(c.Request.Context(), userID, &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, application)
}

// GET /applications
func (h *ApplicationHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	result, err := h.applicationService.ListApplications(c.Request.Context(), userID, params)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.PaginatedResponse(c, result)
}

// GET /applications/:id
func (h *ApplicationHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	applicationID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	application, err := h.applicationService.GetApplication(c.Request.Context(), userID, applicationID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, application)
}

// POST /applications/:id/submit
func (h *ApplicationHandler) Submit(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	applicationID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	application, err := h.applicationService.SubmitApplication(c.Request.Context(), userID, applicationID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, application)
}

// POST /applications/:id/withdraw
func (h *ApplicationHandler) Withdraw(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	applicationID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}

	application, err := h.applicationService.WithdrawApplication(c.Request.Context(), userID, applicationID, req.Reason)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, application)
}

// GET /applications/:id/history
func (h *ApplicationHandler) History(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	applicationID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	history, err := h.applicationService.GetStatusHistory(c.Request.Context(), userID, applicationID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, history)
}

// GET /applications/:id/offers
func (h *ApplicationHandler) Offers(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	applicationID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	offers, err := h.offerService.GetOffersForApplication(c.Request.Context(), userID, applicationID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, offers)
}

// POST /applications/:id/calculate-offers
func (h *ApplicationHandler) CalculateOffers(c *gin.Context) {
	applicationID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	offerIDs, err := h.calculationService.CalculateOffers(c.Request.Context(), applicationID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"offers_created": len(offerIDs),
		"offer_ids":      offerIDs,
	})
}

// POST /admin/applications/:id/review
func (h *ApplicationHandler) StartReview(c *gin.Context) {
	applicationID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	application, err := h.applicationService.StartReview(c.Request.Context(), applicationID, officerID(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, application)
}

// POST /applications/:id/offers/:offerId/select
func (h *ApplicationHandler) SelectOffer(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	applicationID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	offerID, ok := pathUUID(c, "offerId")
	if !ok {
		return
	}

	response, err := h.selectionService.SelectOffer(c.Request.Context(), applicationID, userID, offerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, response)
}
