// internal/services/market_analysis_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/loanbridge/loanbridge-backend/internal/apperrors"
	"github.com/loanbridge/loanbridge-backend/internal/config"
	"github.com/loanbridge/loanbridge-backend/internal/models"
)

// MarketAnalysisService computes anonymized market statistics over the active
// rate cards of competing banks. Peer banks are never identified in the
// output; segments with too few distinct banks are suppressed entirely.
type MarketAnalysisService struct {
	db     *gorm.DB
	config *config.Config
}

func NewMarketAnalysisService(db *gorm.DB, cfg *config.Config) *MarketAnalysisService {
	return &MarketAnalysisService{db: db, config: cfg}
}

type MarketSegmentAnalysis struct {
	LoanType          models.LoanType            `json:"loan_type"`
	Currency          models.Currency            `json:"currency"`
	BankCount         int                        `json:"bank_count"`
	AverageApr        decimal.Decimal            `json:"average_apr"`
	MedianApr         decimal.Decimal            `json:"median_apr"`
	MinApr            decimal.Decimal            `json:"min_apr"`
	MaxApr            decimal.Decimal            `json:"max_apr"`
	AverageFeePercent decimal.Decimal            `json:"average_fee_percent"`
	AverageInsurance  decimal.Decimal            `json:"average_insurance_percent"`
	AverageProcessing int                        `json:"average_processing_days"`
	YourApr           decimal.Decimal            `json:"your_apr"`
	YourPercentile    int                        `json:"your_percentile"`
	Position          models.CompetitivePosition `json:"position"`
}

type MarketAnalysisResponse struct {
	BankID          uuid.UUID                  `json:"bank_id"`
	Segments        []MarketSegmentAnalysis    `json:"segments"`
	OverallPosition models.CompetitivePosition `json:"overall_position"`
}

// GetMarketAnalysis returns per-segment statistics for every segment the bank
// has an active rate card in. A segment with fewer distinct banks than the
// configured minimum yields InsufficientMarketDataError for the whole
// request when the bank has no reportable segment, and is skipped otherwise.
func (s *MarketAnalysisService) GetMarketAnalysis(ctx context.Context, bankID uuid.UUID) (*MarketAnalysisResponse, error) {
	var ownCards []models.BankRateCard
	err := s.db.WithContext(ctx).
		Where("bank_id = ? AND valid_to IS NULL", bankID).
		Find(&ownCards).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load rate cards: %w", err)
	}
	if len(ownCards) == 0 {
		return nil, fmt.Errorf("bank %s has no active rate cards: %w", bankID, apperrors.ErrNotFound)
	}

	response := &MarketAnalysisResponse{BankID: bankID}
	var lastInsufficient *apperrors.InsufficientMarketDataError

	for i := range ownCards {
		segment, err := s.analyzeSegment(ctx, &ownCards[i])
		if err != nil {
			var insufficient *apperrors.InsufficientMarketDataError
			if errors.As(err, &insufficient) {
				lastInsufficient = insufficient
				logrus.WithFields(logrus.Fields{
					"bank_id":   bankID,
					"loan_type": ownCards[i].LoanType,
					"currency":  ownCards[i].Currency,
					"found":     insufficient.Found,
				}).Info("Skipping market segment with insufficient data")
				continue
			}
			return nil, err
		}
		response.Segments = append(response.Segments, *segment)
	}

	if len(response.Segments) == 0 {
		if lastInsufficient != nil {
			return nil, lastInsufficient
		}
		return nil, &apperrors.InsufficientMarketDataError{Found: 0, Required: s.config.Market.MinimumBanks}
	}

	response.OverallPosition = s.overallPosition(response.Segments)
	return response, nil
}

func (s *MarketAnalysisService) analyzeSegment(ctx context.Context, own *models.BankRateCard) (*MarketSegmentAnalysis, error) {
	var cards []models.BankRateCard
	err := s.db.WithContext(ctx).
		Where("loan_type = ? AND currency = ? AND valid_to IS NULL", own.LoanType, own.Currency).
		Find(&cards).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load segment rate cards: %w", err)
	}

	banks := map[uuid.UUID]bool{}
	for i := range cards {
		banks[cards[i].BankID] = true
	}
	if len(banks) < s.config.Market.MinimumBanks {
		return nil, &apperrors.InsufficientMarketDataError{
			Found:    len(banks),
			Required: s.config.Market.MinimumBanks,
		}
	}

	aprs := make([]decimal.Decimal, 0, len(cards))
	sumApr := decimal.Zero
	sumFee := decimal.Zero
	sumInsurance := decimal.Zero
	sumProcessing := 0
	for i := range cards {
		aprs = append(aprs, cards[i].BaseApr)
		sumApr = sumApr.Add(cards[i].BaseApr)
		sumFee = sumFee.Add(cards[i].OriginationFeePercent)
		sumInsurance = sumInsurance.Add(cards[i].InsurancePercent)
		sumProcessing += cards[i].ProcessingTimeDays
	}
	sort.Slice(aprs, func(a, b int) bool { return aprs[a].LessThan(aprs[b]) })

	n := int64(len(aprs))
	percentile := aprPercentile(aprs, own.BaseApr)

	segment := &MarketSegmentAnalysis{
		LoanType:          own.LoanType,
		Currency:          own.Currency,
		BankCount:         len(banks),
		AverageApr:        sumApr.DivRound(decimal.NewFromInt(n), 2),
		MedianApr:         medianApr(aprs),
		MinApr:            aprs[0],
		MaxApr:            aprs[len(aprs)-1],
		AverageFeePercent: sumFee.DivRound(decimal.NewFromInt(n), 2),
		AverageInsurance:  sumInsurance.DivRound(decimal.NewFromInt(n), 2),
		AverageProcessing: sumProcessing / int(n),
		YourApr:           own.BaseApr,
		YourPercentile:    percentile,
		Position:          positionForPercentile(percentile),
	}
	return segment, nil
}

// aprPercentile ranks an APR against the segment: lower APR means a higher
// percentile. Rank is one plus the count of strictly lower APRs, so ties
// share the better rank.
func aprPercentile(sorted []decimal.Decimal, own decimal.Decimal) int {
	n := len(sorted)
	rank := 1
	for _, apr := range sorted {
		if apr.LessThan(own) {
			rank++
		}
	}
	return int(math.Round(float64(n-rank+1) / float64(n) * 100))
}

func medianApr(sorted []decimal.Decimal) decimal.Decimal {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).DivRound(decimal.NewFromInt(2), 2)
}

func positionForPercentile(percentile int) models.CompetitivePosition {
	switch {
	case percentile >= 75:
		return models.CompetitivePositionMoreCompetitive
	case percentile >= 25:
		return models.CompetitivePositionAverage
	default:
		return models.CompetitivePositionLessCompetitive
	}
}

func (s *MarketAnalysisService) overallPosition(segments []MarketSegmentAnalysis) models.CompetitivePosition {
	total := 0
	for i := range segments {
		total += segments[i].YourPercentile
	}
	return positionForPercentile(total / len(segments))
}
