package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/renewcast/internal/contracts"
	"github.com/wonny/renewcast/internal/pipeline"
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "발전량 예측 실행 및 조회",
	Long: `사이트별 발전량 예측 파이프라인을 실행하거나 저장된 결과를 조회합니다.

파이프라인 단계:
- ingestion   : Open-Meteo 시간별 예보 수집
- prediction  : 학습된 모델로 시간별 발전량 예측
- aggregation : 일광 시간(7-20시) 필터 후 일별 합계 (태양광만 필터)
- persistence : 시간별/일별 예측 upsert (단일 트랜잭션)

명령어:
  run      특정 사이트 실행
  run-all  타입별 전체 사이트 실행
  show     저장된 일별 예측과 석탄 보충 추천 조회`,
}

var (
	// run / show 플래그
	forecastSiteID int64

	// run-all 플래그
	forecastType string

	// show 플래그
	forecastPeriod string
)

var forecastRunCmd = &cobra.Command{
	Use:   "run",
	Short: "특정 사이트 예측 실행",
	Long: `한 사이트에 대해 수집 → 예측 → 집계 → 저장을 실행합니다.

Example:
  go run ./cmd/renewcast forecast run --site 1`,
	RunE: runForecastSite,
}

var forecastRunAllCmd = &cobra.Command{
	Use:   "run-all",
	Short: "타입별 전체 사이트 예측 실행",
	Long: `해당 타입의 모든 사이트를 실행합니다. 한 사이트의 실패는 다른 사이트에 영향을 주지 않습니다.

Example:
  go run ./cmd/renewcast forecast run-all --type solar
  go run ./cmd/renewcast forecast run-all --type wind`,
	RunE: runForecastAll,
}

var forecastShowCmd = &cobra.Command{
	Use:   "show",
	Short: "저장된 일별 예측 및 추천 조회",
	Long: `저장된 일별 예측과 기간별 석탄 보충 추천을 출력합니다.

Example:
  go run ./cmd/renewcast forecast show --site 1
  go run ./cmd/renewcast forecast show --site 1 --period past`,
	RunE: runForecastShow,
}

func init() {
	rootCmd.AddCommand(forecastCmd)
	forecastCmd.AddCommand(forecastRunCmd)
	forecastCmd.AddCommand(forecastRunAllCmd)
	forecastCmd.AddCommand(forecastShowCmd)

	forecastRunCmd.Flags().Int64Var(&forecastSiteID, "site", 0, "site id (required)")
	forecastRunCmd.MarkFlagRequired("site")

	forecastRunAllCmd.Flags().StringVar(&forecastType, "type", "", "generation type: solar|wind (required)")
	forecastRunAllCmd.MarkFlagRequired("type")

	forecastShowCmd.Flags().Int64Var(&forecastSiteID, "site", 0, "site id (required)")
	forecastShowCmd.Flags().StringVar(&forecastPeriod, "period", "upcoming", "recommendation period: upcoming|today|past")
	forecastShowCmd.MarkFlagRequired("site")
}

// signalContext is cancelled on Ctrl+C so an interrupted run rolls back cleanly
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runForecastSite(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	PrintHeader("Forecast Run",
		[2]string{"Site", fmt.Sprintf("#%d", forecastSiteID)},
		[2]string{"Store", a.cfg.Store},
		[2]string{"Days", fmt.Sprintf("%d", a.runner.Options().ForecastDays)},
	)

	result, err := a.runner.RunSite(ctx, forecastSiteID)
	if err != nil {
		PrintError(fmt.Sprintf("[%s] %v", stageLabel(err), err))
		return err
	}

	printRunResult(result)
	return nil
}

func runForecastAll(cmd *cobra.Command, args []string) error {
	t, err := contracts.ParseGenerationType(forecastType)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	PrintHeader("Forecast Sweep",
		[2]string{"Type", string(t)},
		[2]string{"Parallel", fmt.Sprintf("%d", a.runner.Options().Concurrency)},
	)

	start := time.Now()
	batch, err := a.runner.RunAll(ctx, t)
	if batch == nil {
		PrintError(err.Error())
		return err
	}

	widths := []int{6, 12, 10, 40}
	PrintTableHeader([]string{"Site", "Stage", "Days", "Result"}, widths)
	for _, o := range batch.Results {
		if o.Err != nil {
			PrintTableRow([]string{fmt.Sprintf("#%d", o.SiteID), o.Stage, "-", "❌ " + o.Error}, widths)
			continue
		}
		PrintTableRow([]string{
			fmt.Sprintf("#%d", o.SiteID), "done",
			fmt.Sprintf("%d", len(o.Result.Daily)),
			fmt.Sprintf("✅ %d created / %d updated", o.Result.Counts.Created(), o.Result.Counts.Updated()),
		}, widths)
	}
	PrintSeparator()
	fmt.Printf("Succeeded: %d  Failed: %d  (%.2fs)\n", batch.Succeeded, batch.Failed, time.Since(start).Seconds())

	if batch.Failed > 0 {
		PrintWarning(fmt.Sprintf("%d site(s) failed", batch.Failed))
	}
	// 부분 실패는 종료 코드로 알림
	return err
}

func runForecastShow(cmd *cobra.Command, args []string) error {
	period, err := pipeline.ParsePeriod(forecastPeriod)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	site, err := a.backend.Sites.Get(ctx, forecastSiteID)
	if err != nil {
		return err
	}

	today := time.Now().In(a.runner.Zone(*site))
	from, to := pipeline.PeriodUpcoming.Range(today)
	daily, err := a.backend.Store.DailyRange(ctx, *site, from, to)
	if err != nil {
		return fmt.Errorf("get daily predictions: %w", err)
	}

	PrintHeader(site.Name,
		[2]string{"Site", fmt.Sprintf("#%d (%s)", site.ID, site.Type)},
		[2]string{"Location", site.Location},
		[2]string{"Threshold", fmt.Sprintf("%.2f", site.ThresholdValue)},
	)

	widths := []int{12, 14, 12, 34}
	PrintTableHeader([]string{"Date", "Predicted", "Actual", "Recommendation"}, widths)
	for _, d := range daily {
		actual := "-"
		if d.TotalActualGeneration != nil {
			actual = fmt.Sprintf("%.2f", *d.TotalActualGeneration)
		}
		PrintTableRow([]string{
			d.Date.Format(contracts.DateLayout),
			fmt.Sprintf("%.2f", d.TotalPredictedGeneration),
			actual,
			messageOrDash(d.RecommendationMessage),
		}, widths)
	}
	if len(daily) == 0 {
		fmt.Println("(no stored predictions, run `forecast run` first)")
	}

	pfrom, pto := period.Range(today)
	records := daily
	if period != pipeline.PeriodUpcoming {
		if records, err = a.backend.Store.DailyRange(ctx, *site, pfrom, pto); err != nil {
			return fmt.Errorf("get daily predictions: %w", err)
		}
	}
	rec := pipeline.EvaluateRecommendation(*site, period, today, records)

	fmt.Println()
	PrintSeparator()
	fmt.Printf("Recommendation (%s: %s ~ %s)\n", rec.Period, rec.From, rec.To)
	PrintKeyValue("Shortfall days", fmt.Sprintf("%d", len(rec.Days)), 14)
	PrintKeyValue("Total deficit", fmt.Sprintf("%.2f", rec.TotalDeficit), 14)
	PrintKeyValue("Coal required", fmt.Sprintf("%.2f kg", rec.CoalRequiredKg), 14)
	return nil
}

func printRunResult(result *pipeline.RunResult) {
	PrintKeyValue("Run ID", result.RunID, 12)
	PrintKeyValue("Observations", fmt.Sprintf("%d", result.Observations), 12)
	PrintKeyValue("Hourly", fmt.Sprintf("%d (%d after filter)", result.Hourly, result.Filtered), 12)
	PrintKeyValue("Persisted", fmt.Sprintf("%d created / %d updated", result.Counts.Created(), result.Counts.Updated()), 12)
	PrintSeparator()

	widths := []int{12, 14, 34}
	PrintTableHeader([]string{"Date", "Predicted", "Recommendation"}, widths)
	for _, d := range result.Daily {
		PrintTableRow([]string{
			d.Date.Format(contracts.DateLayout),
			fmt.Sprintf("%.2f", d.TotalPredictedGeneration),
			messageOrDash(d.RecommendationMessage()),
		}, widths)
	}

	fmt.Println()
	PrintSuccess(fmt.Sprintf("Site #%d completed in %.2fs", result.SiteID, result.Duration.Seconds()))
}

func stageLabel(err error) string {
	if stage, ok := contracts.StageOf(err); ok {
		return string(stage)
	}
	return "error"
}

func messageOrDash(msg *string) string {
	if msg == nil {
		return "-"
	}
	return *msg
}
