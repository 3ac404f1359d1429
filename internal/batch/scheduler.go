package batch

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler triggers batch runs on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	orch   *Orchestrator
	logger *zap.Logger
}

// NewScheduler creates an idle scheduler around the orchestrator.
func NewScheduler(orch *Orchestrator, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(),
		orch:   orch,
		logger: logger,
	}
}

// Schedule registers a batch run under a cron expression and starts the
// scheduler. Runs overlap-free is not enforced here; batch runs are
// sequential per invocation and expected to finish well within the
// schedule interval.
func (s *Scheduler) Schedule(spec string, opts Options) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Info("scheduled batch run starting", zap.String("inputDir", opts.InputDir))
		summary, err := s.orch.Run(context.Background(), opts)
		if err != nil {
			s.logger.Error("scheduled batch run failed", zap.Error(err))
			return
		}
		s.logger.Info("scheduled batch run finished",
			zap.String("runId", summary.RunID.String()),
			zap.Int("succeeded", summary.SuccessfulAnalyses),
			zap.Int("failed", summary.FailedAnalyses))
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
