package commands

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/renewcast/internal/contracts"
	"github.com/wonny/renewcast/internal/model"
	"github.com/wonny/renewcast/internal/predictor"
	"github.com/wonny/renewcast/pkg/logger"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "학습된 모델 관리",
}

var modelsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "모델 manifest 및 아티팩트 검증",
	Long: `MODELS_MANIFEST가 가리키는 manifest를 읽고, 타입별 아티팩트를 로드해
feature 스키마와 체크섬을 출력합니다.

Example:
  go run ./cmd/renewcast models check`,
	RunE: runModelsCheck,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsCheckCmd)
}

func runModelsCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	manifest, err := model.LoadManifest(cfg.Models.ManifestPath)
	if err != nil {
		PrintError(err.Error())
		return err
	}
	registry := model.NewRegistry(manifest, logger.Nop().Zerolog())

	PrintHeader("Model Check", [2]string{"Manifest", cfg.Models.ManifestPath})

	var failed int
	for _, t := range contracts.GenerationTypes {
		a, err := registry.Get(t)
		if err != nil {
			PrintError(fmt.Sprintf("%s: %v", t, err))
			failed++
			continue
		}
		if err := checkContract(t, a); err != nil {
			PrintError(fmt.Sprintf("%s: %v", t, err))
			failed++
			continue
		}
		PrintSuccess(string(t))
		PrintKeyValue("Schema", a.SchemaVersion, 9)
		PrintKeyValue("Regressor", regressorSummary(a), 9)
		PrintKeyValue("Features", strings.Join(a.Features, ", "), 9)
		PrintKeyValue("SHA256", a.Checksum, 9)
	}

	if failed > 0 {
		return fmt.Errorf("%d model(s) failed to load", failed)
	}
	return nil
}

func regressorSummary(a *model.Artifact) string {
	if a.Regressor.Kind == model.KindForest {
		return fmt.Sprintf("%s (%d trees)", a.Regressor.Kind, len(a.Regressor.Trees))
	}
	return a.Regressor.Kind
}

// checkContract compares the artifact with the feature rows the predictor builds
func checkContract(t contracts.GenerationType, a *model.Artifact) error {
	version, names := predictor.SolarSchemaVersion, predictor.SolarFeatures{}.Names()
	if t == contracts.Wind {
		version, names = predictor.WindSchemaVersion, predictor.WindFeatures{}.Names()
	}
	if a.SchemaVersion != version || !slices.Equal(a.Features, names) {
		return fmt.Errorf("feature contract mismatch: artifact %s %v, predictor %s %v", a.SchemaVersion, a.Features, version, names)
	}
	return nil
}
