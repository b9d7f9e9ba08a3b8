package capacity

import (
	"context"
	"log/slog"
	"time"

	"tixgate/pkg/logger"
)

// Sweeper periodically reclaims expired, uncommitted holds. It is safe to
// run one per service instance: the repository's row gates make
// overlapping sweeps release each hold at most once.
type Sweeper struct {
	service  Service
	interval time.Duration
	batch    int
	log      *logger.Logger
}

func NewSweeper(service Service, interval time.Duration, batch int, log *logger.Logger) *Sweeper {
	return &Sweeper{
		service:  service,
		interval: interval,
		batch:    batch,
		log:      log,
	}
}

// Start runs the sweep loop until ctx is cancelled
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("capacity sweeper started",
		slog.Duration("interval", s.interval),
		slog.Int("batch", s.batch),
	)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("capacity sweeper stopped")
			return
		case <-ticker.C:
			swept, err := s.service.SweepExpired(ctx, s.batch)
			if err != nil {
				s.log.Error("capacity sweep failed", slog.Any("error", err))
				continue
			}
			if swept > 0 {
				s.log.Info("released expired holds", slog.Int("count", swept))
			}
		}
	}
}
