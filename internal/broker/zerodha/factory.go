package zerodha

import (
	"context"
	"strings"

	"order-executor/internal/interfaces"
	"order-executor/internal/logger"
)

const ModeDryRun = "DRY_RUN"

// NewGateway returns the paper gateway in DRY_RUN mode and the live Kite
// gateway otherwise.
func NewGateway(ctx context.Context, p Params, paper PaperParams) (interfaces.Gateway, error) {
	if strings.EqualFold(p.Mode, ModeDryRun) {
		if paper.Exchange == "" {
			paper.Exchange = p.Exchange
		}
		logger.Info(ctx, "Using paper gateway", "exchange", paper.Exchange, "seed_price", paper.SeedPrice)
		return NewPaper(paper), nil
	}

	z, err := NewZerodha(p)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "Using Kite gateway", "exchange", p.Exchange, "product", z.p.Product)
	return z, nil
}
