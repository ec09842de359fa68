package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/renewcast/pkg/config"
)

var (
	// Global flags
	storeFlag string
	verbose   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "renewcast",
	Short: "Renewcast - 태양광/풍력 발전량 예측 파이프라인",
	Long: `Renewcast Unified CLI

날씨 예보 → 시간별 예측 → 일광 필터 → 일별 집계 → 저장.
일별 예측이 임계값 미만이면 석탄 보충량을 추천합니다.

Usage:
  go run ./cmd/renewcast [command]

Examples:
  go run ./cmd/renewcast forecast run --site 1
  go run ./cmd/renewcast forecast run-all --type wind
  go run ./cmd/renewcast api
  go run ./cmd/renewcast scheduler start
  go run ./cmd/renewcast db migrate`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&storeFlag, "store", "", "persistence backend override (postgres|memory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig reads the environment and applies global flag overrides
func loadConfig() (*config.Config, error) {
	// 검증 전에 적용해야 memory 모드에서 DATABASE_URL이 필요 없음
	if storeFlag != "" {
		os.Setenv("STORE", storeFlag)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}
