package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shulebox/circulation/internal/circulation"
	"github.com/shulebox/circulation/internal/config"
)

const runTimeout = 5 * time.Minute

// Scheduler runs the background sweeps: overdue flagging, reservation
// claim-window expiry, and popularity recompute. Every sweep is idempotent;
// a missed or doubled run changes nothing.
type Scheduler struct {
	c   *cron.Cron
	svc *circulation.Service
	log *slog.Logger
}

func Start(svc *circulation.Service, log *slog.Logger, cfg config.Config) (*Scheduler, error) {
	s := &Scheduler{c: cron.New(), svc: svc, log: log}

	if _, err := s.c.AddFunc(cfg.Jobs.OverdueSweep, s.run("overdue_sweep", s.svc.SweepOverdue)); err != nil {
		return nil, err
	}
	if _, err := s.c.AddFunc(cfg.Jobs.ReservationSweep, s.run("reservation_sweep", s.svc.SweepExpiredReservations)); err != nil {
		return nil, err
	}
	if _, err := s.c.AddFunc(cfg.Jobs.PopularitySweep, s.run("popularity_sweep", s.svc.RecomputePopularity)); err != nil {
		return nil, err
	}

	s.c.Start()
	return s, nil
}

func (s *Scheduler) run(name string, sweep func(ctx context.Context) (int, error)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		n, err := sweep(ctx)
		if err != nil {
			s.log.Error("sweep failed", "job", name, "err", err)
			return
		}
		s.log.Info("sweep complete", "job", name, "affected", n)
	}
}

// Stop waits for any running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}
