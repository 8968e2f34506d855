package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/roundbot/internal/domain"
	"github.com/alanyoungcy/roundbot/internal/position"
)

// OpenCounter reports how many positions are currently open.
type OpenCounter interface {
	Count() int
}

// RiskService applies the sizing gate to entry intents.
type RiskService struct {
	sizing    position.Sizing
	positions OpenCounter
	logger    *slog.Logger
}

// NewRiskService creates a RiskService.
func NewRiskService(sizing position.Sizing, positions OpenCounter, logger *slog.Logger) *RiskService {
	return &RiskService{
		sizing:    sizing,
		positions: positions,
		logger:    logger.With(slog.String("component", "risk_service")),
	}
}

// Sizing returns the configured caps.
func (s *RiskService) Sizing() position.Sizing { return s.sizing }

// SizeEntry converts intent into a share count at price and checks it
// against every cap. A rejection is a *position.AdmissionError.
func (s *RiskService) SizeEntry(ctx context.Context, intent domain.EntryIntent, price float64) (float64, error) {
	usd := intent.SizeUSD
	if usd <= 0 {
		usd = s.sizing.MaxPositionUSD
	}
	shares := s.sizing.SharesFor(usd, price)
	if err := s.sizing.Admit(shares, price, s.positions.Count()); err != nil {
		var ae *position.AdmissionError
		if errors.As(err, &ae) {
			s.logger.InfoContext(ctx, "entry rejected",
				slog.String("asset", intent.Asset),
				slog.String("direction", string(intent.Direction)),
				slog.String("cap", ae.Cap),
				slog.Float64("value", ae.Value),
				slog.Float64("limit", ae.Limit),
			)
		}
		return 0, fmt.Errorf("risk_service: %w", err)
	}
	return shares, nil
}
