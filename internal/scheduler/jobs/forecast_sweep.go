package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/renewcast/internal/contracts"
	"github.com/wonny/renewcast/internal/pipeline"
	"github.com/wonny/renewcast/pkg/logger"
)

// Sweeper runs the pipeline for every site of a type (pipeline.Runner)
type Sweeper interface {
	RunAll(ctx context.Context, t contracts.GenerationType) (*pipeline.BatchResult, error)
}

// ForecastSweepJob refreshes the forecasts of all sites of one generation type
type ForecastSweepJob struct {
	sweeper  Sweeper
	genType  contracts.GenerationType
	schedule string
	logger   *logger.Logger
}

// NewForecastSweepJob creates a sweep job for t on the given cron schedule
func NewForecastSweepJob(sweeper Sweeper, t contracts.GenerationType, schedule string, log *logger.Logger) *ForecastSweepJob {
	return &ForecastSweepJob{
		sweeper:  sweeper,
		genType:  t,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *ForecastSweepJob) Name() string {
	return "forecast_sweep_" + string(j.genType)
}

// Schedule returns the cron schedule
func (j *ForecastSweepJob) Schedule() string {
	return j.schedule
}

// Run executes the sweep.
// 일부 사이트 실패는 로그만 남기고, 전체 실패일 때만 에러 반환 (재시도 대상)
func (j *ForecastSweepJob) Run(ctx context.Context) error {
	j.logger.WithField("generation_type", string(j.genType)).Info("Starting scheduled forecast sweep")

	batch, err := j.sweeper.RunAll(ctx, j.genType)
	if batch == nil {
		return fmt.Errorf("%s sweep: %w", j.genType, err)
	}

	for _, o := range batch.Results {
		if o.Err == nil {
			continue
		}
		j.logger.WithFields(map[string]interface{}{
			"site_id": o.SiteID,
			"stage":   o.Stage,
			"error":   o.Error,
		}).Warn("Site forecast failed during sweep")
	}

	if batch.Failed > 0 && batch.Succeeded == 0 {
		return fmt.Errorf("%s sweep: all %d sites failed: %w", j.genType, batch.Failed, err)
	}

	j.logger.WithFields(map[string]interface{}{
		"generation_type": string(j.genType),
		"succeeded":       batch.Succeeded,
		"failed":          batch.Failed,
	}).Info("Forecast sweep completed")

	return nil
}

// SweepJobs returns one sweep job per generation type
func SweepJobs(sweeper Sweeper, solarSchedule, windSchedule string, log *logger.Logger) []*ForecastSweepJob {
	return []*ForecastSweepJob{
		NewForecastSweepJob(sweeper, contracts.Solar, solarSchedule, log),
		NewForecastSweepJob(sweeper, contracts.Wind, windSchedule, log),
	}
}
