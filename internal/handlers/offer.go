// internal/handlers/offer.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/loanbridge/loanbridge-backend/internal/models"
	"github.com/loanbridge/loanbridge-backend/internal/services"
	"github.com/loanbridge/loanbridge-backend/internal/utils"
)

type OfferHandler struct {
	offerService *services.OfferService
}

func NewOfferHandler(offerService *services.OfferService) *OfferHandler {
	return &OfferHandler{
		offerService: offerService,
	}
}

// GET /bank/offers
func (h *OfferHandler) ListBankOffers(c *gin.Context) {
	bankID, ok := currentBankID(c)
	if !ok {
		return
	}

	status := models.OfferStatus(c.Query("status"))
	offers, err := h.offerService.GetBankOffers(c.Request.Context(), bankID, status)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, offers)
}

// POST /bank/offers/:id/submit
func (h *OfferHandler) Submit(c *gin.Context) {
	bankID, ok := currentBankID(c)
	if !ok {
		return
	}
	offerID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	offer, err := h.offerService.SubmitOffer(c.Request.Context(), bankID, offerID, officerID(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, offer)
}

// POST /bank/offers/:id/withdraw
func (h *OfferHandler) Withdraw(c *gin.Context) {
	bankID, ok := currentBankID(c)
	if !ok {
		return
	}
	offerID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	offer, err := h.offerService.WithdrawOffer(c.Request.Context(), bankID, offerID, officerID(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, offer)
}

func officerID(c *gin.Context) *uuid.UUID {
	raw, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
