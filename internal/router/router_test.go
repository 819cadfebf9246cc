// internal/router/router_test.go
package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/loanbridge/loanbridge-backend/internal/config"
	"github.com/loanbridge/loanbridge-backend/internal/database"
	"github.com/loanbridge/loanbridge-backend/internal/models"
)

type RouterTestSuite struct {
	suite.Suite
	db     *gorm.DB
	router *gin.Engine
}

func (suite *RouterTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	suite.Require().NoError(err)
	sqlDB, err := db.DB()
	suite.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)
	suite.Require().NoError(database.RunMigrations(db))
	suite.db = db

	cfg := &config.Config{
		Environment: "test",
		JWT:         config.JWTConfig{SecretKey: "test-secret", AccessTokenTTL: 1},
		Offer:       config.OfferConfig{ValidityPeriodHours: 24, WarningWindowHours: 24, CalculationTimeout: 10},
		Market:      config.MarketConfig{MinimumBanks: 3},
		Scheduler:   config.SchedulerConfig{ExpirationSpec: "0 0 * * *", WarningSpec: "0 * * * *", OutboxInterval: 30},
	}

	svcs := BuildServices(db, cfg)
	suite.router = Initialize(db, cfg, svcs)
}

func (suite *RouterTestSuite) request(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		suite.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *RouterTestSuite) registerBorrower(email string) string {
	w := suite.request("POST", "/v1/auth/register", "", map[string]interface{}{
		"email":     email,
		"password":  "Str0ng!Pass",
		"full_name": "Router Test Borrower",
		"user_type": "borrower",
	})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var response struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response))
	suite.Require().NotEmpty(response.Data.Token)
	return response.Data.Token
}

func (suite *RouterTestSuite) TestHealthCheck() {
	w := suite.request("GET", "/health", "", nil)
	suite.Equal(http.StatusOK, w.Code)
}

func (suite *RouterTestSuite) TestApplicationLifecycle() {
	token := suite.registerBorrower("router1@example.com")

	w := suite.request("POST", "/v1/applications", token, map[string]interface{}{
		"loan_type":   "personal",
		"currency":    "EUR",
		"loan_amount": 25000,
		"term_months": 36,
	})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Data models.Application `json:"data"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &created))
	suite.Equal(models.ApplicationStatusDraft, created.Data.Status)

	w = suite.request("POST", "/v1/applications/"+created.Data.ID.String()+"/submit", token, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	// Submitting twice conflicts with the transition table.
	w = suite.request("POST", "/v1/applications/"+created.Data.ID.String()+"/submit", token, nil)
	suite.Equal(http.StatusConflict, w.Code)

	w = suite.request("GET", "/v1/applications/"+created.Data.ID.String()+"/history", token, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
}

func (suite *RouterTestSuite) TestAuthenticationRequired() {
	w := suite.request("GET", "/v1/applications", "", nil)
	suite.Equal(http.StatusUnauthorized, w.Code)
}

func (suite *RouterTestSuite) TestBankRoutesRejectBorrowers() {
	token := suite.registerBorrower("router2@example.com")

	w := suite.request("GET", "/v1/bank/rate-cards", token, nil)
	suite.Equal(http.StatusForbidden, w.Code)
}

func (suite *RouterTestSuite) TestUnknownApplicationIs404() {
	token := suite.registerBorrower("router3@example.com")

	w := suite.request("GET", "/v1/applications/"+uuid.NewString(), token, nil)
	suite.Equal(http.StatusNotFound, w.Code)
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}
