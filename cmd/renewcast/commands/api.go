package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/renewcast/internal/api"
	"github.com/wonny/renewcast/internal/api/handlers"
	"github.com/wonny/renewcast/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- HTTP API 서버 시작
- 예측 실행 트리거 제공
- 저장된 예측/추천 조회 제공

Endpoints:
  GET  /health                          - Health check
  GET  /metrics                         - Prometheus metrics
  POST /api/sites/{id}/forecast         - 사이트 예측 실행
  POST /api/forecast/{type}/refresh     - 타입별 전체 사이트 실행
  GET  /api/sites/{id}/daily            - 일별 예측 (ensure=true 시 오늘 데이터 생성)
  GET  /api/sites/{id}/hourly           - 시간별 예측
  GET  /api/sites/{id}/recommendation   - 석탄 보충 추천

Example:
  go run ./cmd/renewcast api
  go run ./cmd/renewcast api --port 8089`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본값: PORT 환경변수)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Renewcast API Server ===")

	// 1. Wire dependencies
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	// Override port if flag is set
	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	a.log.WithFields(map[string]interface{}{
		"port":  a.cfg.Port,
		"env":   a.cfg.Env,
		"store": a.cfg.Store,
	}).Info("Initializing API server")

	// 2. Create handler
	cache := redis.NewCache(a.redis, "renewcast")
	forecastHandler := handlers.NewForecastHandler(a.runner, a.backend.Sites, a.backend.Store, cache, a.log.WithComponent("api.forecast"))

	// 3. Create router
	var metricsHandler http.Handler
	if a.cfg.MetricsEnabled {
		metricsHandler = a.metrics.Handler()
	}
	router := api.NewRouter(forecastHandler, metricsHandler, a.health, a.log)

	// 4. Create server
	server := api.New(a.cfg, a.log, router)

	// 5. Start server with graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	a.log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	a.log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}
