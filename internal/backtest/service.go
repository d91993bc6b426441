package backtest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"options-desk/internal/audit"
	apperrors "options-desk/internal/errors"
	"options-desk/internal/logging"
	"options-desk/internal/models"
	"options-desk/internal/store"
)

// Service orchestrates the backtest run lifecycle: create, execute,
// and query runs and their results.
type Service struct {
	store   store.DataStore
	engine  *Engine
	auditor *audit.Auditor
	maxLegs int
	logger  zerolog.Logger
}

// NewService creates a backtest service.
func NewService(st store.DataStore, engine *Engine, auditor *audit.Auditor, maxLegs int, logger zerolog.Logger) *Service {
	if maxLegs < 1 {
		maxLegs = 10
	}
	return &Service{
		store:   st,
		engine:  engine,
		auditor: auditor,
		maxLegs: maxLegs,
		logger:  logger,
	}
}

// CreateRun validates the request and persists a new run in the
// running state. Legs are frozen at creation time.
func (s *Service) CreateRun(ctx context.Context, run *models.BacktestRun) error {
	if run.Name == "" {
		return apperrors.NewValidationError("name", run.Name, "name is required")
	}
	if run.BacktestDate.IsZero() {
		return apperrors.NewValidationError("backtest_date", run.BacktestDate, "backtest date is required")
	}
	if len(run.Legs) == 0 {
		return apperrors.NewValidationError("legs", len(run.Legs), "at least one leg is required")
	}
	if len(run.Legs) > s.maxLegs {
		return apperrors.NewValidationError("legs", len(run.Legs), "too many legs")
	}
	for i, leg := range run.Legs {
		if err := leg.Validate(); err != nil {
			return apperrors.Wrapf(err, "leg %d", i+1)
		}
	}

	if err := s.store.SaveRun(ctx, run); err != nil {
		return apperrors.Wrap(err, "persisting run")
	}

	s.auditor.Record(ctx, "create", "backtest", run.ID, run.UserID, map[string]interface{}{
		"name": run.Name,
		"date": run.BacktestDate.Format("2006-01-02"),
		"legs": len(run.Legs),
	}, run)

	return nil
}

// Execute computes the net premium series for a running run and makes
// its single terminal transition. On success the samples are persisted
// and the run completes; any failure marks the run failed with the
// reason. The returned error reflects the execution outcome.
func (s *Service) Execute(ctx context.Context, run *models.BacktestRun) error {
	started := time.Now()

	samples, err := s.engine.Run(ctx, run.Legs, run.BacktestDate)
	if err != nil {
		return s.fail(ctx, run, err)
	}
	if len(samples) == 0 {
		return s.fail(ctx, run, apperrors.Wrap(apperrors.ErrDataUnavailable, "no overlapping samples across legs"))
	}

	if err := s.store.SaveResults(ctx, run.ID, samples); err != nil {
		return s.fail(ctx, run, apperrors.Wrap(err, "persisting results"))
	}

	start := samples[0].NetPremium
	end := samples[len(samples)-1].NetPremium
	completedAt := time.Now().UTC()

	if err := s.store.CompleteRun(ctx, run.ID, start.String(), end.String(), completedAt); err != nil {
		return apperrors.NewRunError(run.ID, "complete", "marking run completed", err)
	}

	run.Status = models.RunCompleted
	run.NetPremiumStart = &start
	run.NetPremiumEnd = &end
	run.CompletedAt = &completedAt

	logging.LogBacktest(s.logger, run.ID, string(models.RunCompleted), len(samples), time.Since(started))
	s.auditor.Record(ctx, "complete", "backtest", run.ID, run.UserID, map[string]interface{}{
		"samples":           len(samples),
		"net_premium_start": start.String(),
		"net_premium_end":   end.String(),
	}, nil)

	return nil
}

func (s *Service) fail(ctx context.Context, run *models.BacktestRun, cause error) error {
	completedAt := time.Now().UTC()
	if err := s.store.FailRun(ctx, run.ID, cause.Error(), completedAt); err != nil {
		s.logger.Error().Err(err).Int64("run_id", run.ID).Msg("Failed to mark run failed")
	} else {
		run.Status = models.RunFailed
		run.Error = cause.Error()
		run.CompletedAt = &completedAt
	}

	logging.LogBacktest(s.logger, run.ID, string(models.RunFailed), 0, 0)
	s.auditor.Record(ctx, "fail", "backtest", run.ID, run.UserID, map[string]interface{}{
		"error": cause.Error(),
	}, nil)

	return cause
}

// Get returns a run owned by the user.
func (s *Service) Get(ctx context.Context, id, userID int64) (*models.BacktestRun, error) {
	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.UserID != userID {
		return nil, apperrors.ErrForbidden
	}
	return run, nil
}

// List returns the user's runs, newest first.
func (s *Service) List(ctx context.Context, userID int64, limit int) ([]models.BacktestRun, error) {
	return s.store.ListRuns(ctx, store.RunFilter{UserID: userID, Limit: limit})
}

// Results returns the ordered sample series of a completed run.
func (s *Service) Results(ctx context.Context, id, userID int64) ([]models.NetPremiumSample, error) {
	run, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if run.Status != models.RunCompleted {
		return nil, apperrors.ErrRunNotCompleted
	}
	return s.store.GetResults(ctx, id)
}

// Summary returns derived statistics for a completed run.
func (s *Service) Summary(ctx context.Context, id, userID int64) (*models.BacktestSummary, error) {
	samples, err := s.Results(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return Summarize(samples), nil
}
