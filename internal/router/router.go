// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/loanbridge/loanbridge-backend/internal/config"
	"github.com/loanbridge/loanbridge-backend/internal/handlers"
	"github.com/loanbridge/loanbridge-backend/internal/middleware"
	"github.com/loanbridge/loanbridge-backend/internal/services"
	"github.com/loanbridge/loanbridge-backend/internal/utils"
)

// Services bundles the service layer so main can share instances between the
// HTTP surface and the scheduler.
type Services struct {
	Auth         *services.AuthService
	Applications *services.ApplicationService
	Calculation  *services.OfferCalculationService
	Selection    *services.OfferSelectionService
	Offers       *services.OfferService
	RateCards    *services.RateCardService
	Market       *services.MarketAnalysisService
	Expiration   *services.OfferExpirationService
	Notification *services.NotificationService
}

// BuildServices wires the full service graph.
func BuildServices(db *gorm.DB, cfg *config.Config) *Services {
	auditService := services.NewAuditService(db)
	notificationService := services.NewNotificationService(db, cfg, nil)
	statusTransitions := services.NewStatusTransitionService(db, auditService)
	nextSteps := services.NewNextStepsService()

	return &Services{
		Auth:         services.NewAuthService(db, cfg),
		Applications: services.NewApplicationService(db, auditService, notificationService, statusTransitions, nil),
		Calculation:  services.NewOfferCalculationService(db, cfg, auditService, statusTransitions, nil),
		Selection:    services.NewOfferSelectionService(db, auditService, notificationService, nextSteps, statusTransitions, nil),
		Offers:       services.NewOfferService(db, cfg, auditService, notificationService, nil),
		RateCards:    services.NewRateCardService(db, auditService, nil),
		Market:       services.NewMarketAnalysisService(db, cfg),
		Expiration:   services.NewOfferExpirationService(db, cfg, auditService, notificationService, statusTransitions, nil),
		Notification: notificationService,
	}
}

func Initialize(db *gorm.DB, cfg *config.Config, svcs *Services) *gin.Engine {
	authHandler := handlers.NewAuthHandler(svcs.Auth)
	applicationHandler := handlers.NewApplicationHandler(svcs.Applications, svcs.Calculation, svcs.Offers, svcs.Selection)
	offerHandler := handlers.NewOfferHandler(svcs.Offers)
	rateCardHandler := handlers.NewRateCardHandler(svcs.RateCards)
	marketHandler := handlers.NewMarketHandler(svcs.Market)

	utils.SetJWTSecret(cfg.JWT.SecretKey)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())
	if gin.Mode() != gin.TestMode {
		r.Use(middleware.GeneralRateLimit())
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		auth := v1.Group("/auth")
		if gin.Mode() != gin.TestMode {
			auth.Use(middleware.AuthRateLimit())
		}
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		// Borrower routes
		applications := v1.Group("/applications")
		applications.Use(middleware.AuthRequired(), middleware.BorrowerRequired())
		{
			applications.POST("", applicationHandler.Create)
			applications.GET("", applicationHandler.List)
			applications.GET("/:id", applicationHandler.Get)
			applications.POST("/:id/submit", applicationHandler.Submit)
			applications.POST("/:id/withdraw", applicationHandler.Withdraw)
			applications.GET("/:id/history", applicationHandler.History)
			applications.GET("/:id/offers", applicationHandler.Offers)
			applications.POST("/:id/offers/:offerId/select", applicationHandler.SelectOffer)
		}

		// Bank routes
		bank := v1.Group("/bank")
		bank.Use(middleware.AuthRequired(), middleware.BankOfficerRequired())
		{
			bank.GET("/offers", offerHandler.ListBankOffers)
			bank.POST("/offers/:id/submit", offerHandler.Submit)
			bank.POST("/offers/:id/withdraw", offerHandler.Withdraw)
			bank.PUT("/rate-cards", rateCardHandler.Upsert)
			bank.GET("/rate-cards", rateCardHandler.List)
			bank.GET("/rate-cards/history", rateCardHandler.History)
			bank.GET("/market-analysis", marketHandler.Analysis)
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.POST("/applications/:id/review", applicationHandler.StartReview)
			admin.POST("/applications/:id/calculate-offers", applicationHandler.CalculateOffers)
		}
	}

	return r
}
