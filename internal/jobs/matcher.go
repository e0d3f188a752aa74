package jobs

import (
	"context"

	"go.uber.org/zap"

	"github.com/spigell/jd-validator/internal/index"
	"github.com/spigell/jd-validator/internal/logger"
)

// Querier runs nearest-neighbour queries for a list of skills.
type Querier interface {
	Query(ctx context.Context, skills []string) (index.MatchGroup, error)
}

// Matcher finds portfolio links relevant to a job's skills.
type Matcher struct {
	index  Querier
	logger *zap.Logger
}

// NewMatcher creates a Matcher over the skill index.
func NewMatcher(idx Querier, log *zap.Logger) *Matcher {
	return &Matcher{index: idx, logger: logger.OrNop(log)}
}

// Match returns one group of portfolio metadata per skill of rec, in order.
// A record without skills matches nothing.
func (m *Matcher) Match(ctx context.Context, rec Record) (index.MatchGroup, error) {
	if len(rec.Skills) == 0 {
		return index.MatchGroup{}, nil
	}

	group, err := m.index.Query(ctx, rec.Skills)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("skills matched",
		zap.String("role", rec.Role),
		zap.Int("skills", len(rec.Skills)),
		zap.Int("links", len(group.Links())),
	)

	return group, nil
}
