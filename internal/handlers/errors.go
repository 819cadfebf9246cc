// internal/handlers/errors.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/loanbridge/loanbridge-backend/internal/apperrors"
	"github.com/loanbridge/loanbridge-backend/internal/utils"
)

// handleServiceError maps the service-layer error taxonomy onto HTTP
// responses. Any error not in the taxonomy is treated as internal.
func handleServiceError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	var invalidState *apperrors.InvalidStateError
	var invalidTransition *apperrors.InvalidTransitionError
	var offerExpired *apperrors.OfferExpiredError
	var insufficientData *apperrors.InsufficientMarketDataError

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		utils.NotFoundResponse(c, "Resource")
	case errors.Is(err, apperrors.ErrUnauthorized):
		utils.ForbiddenResponse(c, "")
	case errors.Is(err, apperrors.ErrConcurrencyConflict):
		utils.ConflictResponse(c, "The resource was modified concurrently. Please retry.")
	case errors.As(err, &invalidState):
		utils.ConflictResponse(c, invalidState.Error())
	case errors.As(err, &invalidTransition):
		utils.ConflictResponse(c, invalidTransition.Error())
	case errors.As(err, &offerExpired):
		utils.ConflictResponse(c, offerExpired.Error())
	case errors.As(err, &insufficientData):
		utils.UnprocessableResponse(c, "INSUFFICIENT_MARKET_DATA", insufficientData.Error())
	default:
		utils.InternalErrorResponse(c, "")
	}
}

// currentUserID reads the authenticated user's id from the gin context.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	raw, ok := utils.GetUserIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}
	return id, true
}

// currentBankID reads the authenticated bank officer's bank id.
func currentBankID(c *gin.Context) (uuid.UUID, bool) {
	raw, ok := utils.GetBankIDFromContext(c)
	if !ok {
		utils.ForbiddenResponse(c, "No bank associated with this account")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		utils.ForbiddenResponse(c, "No bank associated with this account")
		return uuid.Nil, false
	}
	return id, true
}

// pathUUID parses a uuid path parameter, responding 400 on failure.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}
