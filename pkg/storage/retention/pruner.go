// Package retention prunes old transcript entries on a cron schedule.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kgourjau/BridgeAI/pkg/storage"
)

// ErrInvalidDays is returned for a non-positive retention period.
var ErrInvalidDays = errors.New("retention days must be positive")

// Pruner deletes transcript entries older than the retention period.
type Pruner struct {
	driver storage.Driver
	days   int
	logger *zap.Logger

	// now is replaced in tests.
	now func() time.Time
}

// NewPruner returns a Pruner keeping days worth of entries.
func NewPruner(driver storage.Driver, days int, logger *zap.Logger) (*Pruner, error) {
	if days <= 0 {
		return nil, ErrInvalidDays
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pruner{
		driver: driver,
		days:   days,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Cutoff is the instant before which entries are pruned.
func (p *Pruner) Cutoff() time.Time {
	return p.now().UTC().AddDate(0, 0, -p.days)
}

// Prune runs one pruning cycle and reports how many entries were deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	cutoff := p.Cutoff()

	deleted, err := p.driver.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning entries before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	p.logger.Debug("pruned transcript",
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", deleted),
	)
	return deleted, nil
}
