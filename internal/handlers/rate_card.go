// internal/handlers/rate_card.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/loanbridge/loanbridge-backend/internal/models"
	"github.com/loanbridge/loanbridge-backend/internal/services"
	"github.com/loanbridge/loanbridge-backend/internal/utils"
)

type RateCardHandler struct {
	rateCardService *services.RateCardService
}

func NewRateCardHandler(rateCardService *services.RateCardService) *RateCardHandler {
	return &RateCardHandler{
		rateCardService: rateCardService,
	}
}

// PUT /bank/rate-cards
func (h *RateCardHandler) Upsert(c *gin.Context) {
	bankID, ok := currentBankID(c)
	if !ok {
		return
	}

	var req services.UpsertRateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}

	card, err := h.rateCardService.UpsertRateCard(c.Request.Context(), bankID, &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, card)
}

// GET /bank/rate-cards
func (h *RateCardHandler) List(c *gin.Context) {
	bankID, ok := currentBankID(c)
	if !ok {
		return
	}

	cards, err := h.rateCardService.GetActiveRateCards(c.Request.Context(), bankID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, cards)
}

// GET /bank/rate-cards/history
func (h *RateCardHandler) History(c *gin.Context) {
	bankID, ok := currentBankID(c)
	if !ok {
		return
	}

	loanType := models.LoanType(c.Query("loan_type"))
	currency := models.Currency(c.Query("currency"))
	if loanType == "" || currency == "" {
		utils.BadRequestResponse(c, "loan_type and currency are required", nil)
		return
	}

	cards, err := h.rateCardService.GetRateCardHistory(c.Request.Context(), bankID, loanType, currency)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, cards)
}
