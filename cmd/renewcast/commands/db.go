package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/renewcast/internal/storage"
	"github.com/wonny/renewcast/pkg/config"
	"github.com/wonny/renewcast/pkg/database"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "PostgreSQL 스키마 및 연결 관리",
	Long: `데이터베이스 스키마를 적용하거나 연결 상태를 확인합니다.

Subcommands:
  migrate - 스키마 적용 (sites, hourly/daily solar/wind predictions)
  seed    - YAML 사이트 파일을 sites 테이블에 등록
  check   - 연결 테스트 및 풀 통계

Example:
  go run ./cmd/renewcast db migrate
  go run ./cmd/renewcast db seed --file sites.example.yaml
  go run ./cmd/renewcast db check`,
}

var seedFile string

var (
	dbMigrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "스키마 적용",
		RunE:  runDBMigrate,
	}

	dbSeedCmd = &cobra.Command{
		Use:   "seed",
		Short: "사이트 등록",
		Long: `YAML 사이트 파일의 항목을 sites 테이블에 등록합니다.
파일의 id는 검증에만 쓰이고, 실제 id는 데이터베이스가 부여합니다.`,
		RunE: runDBSeed,
	}

	dbCheckCmd = &cobra.Command{
		Use:   "check",
		Short: "연결 테스트",
		RunE:  runDBCheck,
	}
)

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbSeedCmd)
	dbCmd.AddCommand(dbCheckCmd)

	dbSeedCmd.Flags().StringVar(&seedFile, "file", "sites.example.yaml", "sites YAML file")
}

// openDB connects to Postgres regardless of the selected store
func openDB() (*config.Config, *database.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return cfg, db, nil
}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	_, db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := storage.Migrate(ctx, db); err != nil {
		PrintError(err.Error())
		return err
	}

	PrintSuccess("Schema applied")
	return nil
}

func runDBSeed(cmd *cobra.Command, args []string) error {
	sites, err := storage.LoadSitesFile(seedFile)
	if err != nil {
		return err
	}

	_, db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	dir := storage.NewPostgresSites(db.Pool)

	widths := []int{6, 28, 8, 24}
	PrintTableHeader([]string{"ID", "Name", "Type", "Location"}, widths)
	for _, s := range sites {
		created, err := dir.Create(ctx, s)
		if err != nil {
			return err
		}
		PrintTableRow([]string{fmt.Sprintf("#%d", created.ID), created.Name, string(created.Type), created.Location}, widths)
	}

	fmt.Println()
	PrintSuccess(fmt.Sprintf("%d site(s) registered", len(sites)))
	return nil
}

func runDBCheck(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Renewcast Database Connection Test ===")

	cfg, db, err := openDB()
	if err != nil {
		return fmt.Errorf("❌ %w", err)
	}
	defer db.Close()
	fmt.Printf("✅ Connected (ENV: %s)\n", cfg.Env)
	fmt.Printf("   Database URL: %s\n\n", maskPassword(cfg.Database.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := db.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("❌ Health check failed: %w", err)
	}

	fmt.Println("✅ Health Check Results:")
	fmt.Printf("   Healthy: %v\n", status.Healthy)
	fmt.Printf("   Response Time: %v\n\n", status.ResponseTime)

	fmt.Println("📊 Connection Pool Statistics:")
	fmt.Printf("   Max Connections: %d\n", status.Stats.MaxConns)
	fmt.Printf("   Total Connections: %d\n", status.Stats.TotalConns)
	fmt.Printf("   Acquired Connections: %d\n", status.Stats.AcquiredConns)
	fmt.Printf("   Idle Connections: %d\n", status.Stats.IdleConns)
	fmt.Printf("   Acquire Count: %d\n", status.Stats.AcquireCount)
	fmt.Printf("   Acquire Duration: %v\n", status.Stats.AcquireDuration)

	return nil
}

// maskPassword hides the password of a connection URL for display
func maskPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
