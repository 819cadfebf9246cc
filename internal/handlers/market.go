// internal/handlers/market.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/loanbridge/loanbridge-backend/internal/services"
	"github.com/loanbridge/loanbridge-backend/internal/utils"
)

type MarketHandler struct {
	marketService *services.MarketAnalysisService
}

func NewMarketHandler(marketService *services.MarketAnalysisService) *MarketHandler {
	return &MarketHandler{
		marketService: marketService,
	}
}

// GET /bank/market-analysis
func (h *MarketHandler) Analysis(c *gin.Context) {
	bankID, ok := currentBankID(c)
	if !ok {
		return
	}

	analysis, err := h.marketService.GetMarketAnalysis(c.Request.Context(), bankID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, analysis)
}
