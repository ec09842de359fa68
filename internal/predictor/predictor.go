package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/rs/zerolog"

	"github.com/wonny/renewcast/internal/contracts"
	"github.com/wonny/renewcast/internal/model"
)

// Wind turbine operating range in m/s (both bounds valid)
const (
	CutInSpeed  = 3.0
	CutOutSpeed = 25.0
)

// Predictor turns observations into one hourly prediction each, in input order
type Predictor interface {
	Predict(ctx context.Context, observations []contracts.WeatherObservation, siteID int64) ([]contracts.HourlyPrediction, error)
	Type() contracts.GenerationType
}

// ModelSource resolves the trained model of a generation type (model.Registry)
type ModelSource interface {
	Get(t contracts.GenerationType) (*model.Artifact, error)
}

// New returns the predictor variant of t
func New(t contracts.GenerationType, models ModelSource, log zerolog.Logger) (Predictor, error) {
	switch t {
	case contracts.Solar:
		return NewSolarPredictor(models, log), nil
	case contracts.Wind:
		return NewWindPredictor(models, log), nil
	}
	return nil, &contracts.PredictionError{Message: fmt.Sprintf("unsupported generation type %q", t)}
}

type featureRow interface {
	Names() []string
	Vector() []float64
}

// SolarPredictor applies the solar.v1 contract.
// Hours without sunshine and with below-median radiation are forced to zero.
type SolarPredictor struct {
	models ModelSource
	log    zerolog.Logger
}

func NewSolarPredictor(models ModelSource, log zerolog.Logger) *SolarPredictor {
	return &SolarPredictor{
		models: models,
		log:    log.With().Str("component", "predictor.solar").Logger(),
	}
}

func (p *SolarPredictor) Type() contracts.GenerationType { return contracts.Solar }

func (p *SolarPredictor) Predict(ctx context.Context, observations []contracts.WeatherObservation, siteID int64) ([]contracts.HourlyPrediction, error) {
	rows := SolarFeaturesFrom(observations)
	return predict(ctx, p.log, p.models, contracts.Solar, SolarSchemaVersion, siteID, observations, rows,
		func(f SolarFeatures) bool { return f.Sunshine == 0 && f.Radiation < 0 })
}

// WindPredictor applies the wind.v1 contract.
// Speeds outside [CutInSpeed, CutOutSpeed] are forced to zero.
type WindPredictor struct {
	models ModelSource
	log    zerolog.Logger
}

func NewWindPredictor(models ModelSource, log zerolog.Logger) *WindPredictor {
	return &WindPredictor{
		models: models,
		log:    log.With().Str("component", "predictor.wind").Logger(),
	}
}

func (p *WindPredictor) Type() contracts.GenerationType { return contracts.Wind }

func (p *WindPredictor) Predict(ctx context.Context, observations []contracts.WeatherObservation, siteID int64) ([]contracts.HourlyPrediction, error) {
	rows := WindFeaturesFrom(observations)
	return predict(ctx, p.log, p.models, contracts.Wind, WindSchemaVersion, siteID, observations, rows,
		func(f WindFeatures) bool { return f.WindSpeed < CutInSpeed || f.WindSpeed > CutOutSpeed })
}

// predict is shared by both variants: contract check, inference, clamps, snapshots.
// Any failure returns a PredictionError and no predictions.
func predict[F featureRow](
	ctx context.Context,
	log zerolog.Logger,
	models ModelSource,
	t contracts.GenerationType,
	version string,
	siteID int64,
	observations []contracts.WeatherObservation,
	rows []F,
	clamp func(F) bool,
) ([]contracts.HourlyPrediction, error) {
	if len(rows) == 0 {
		return []contracts.HourlyPrediction{}, nil
	}

	artifact, err := models.Get(t)
	if err != nil {
		return nil, &contracts.PredictionError{SiteID: siteID, Message: "model unavailable", Err: err}
	}

	names := rows[0].Names()
	if artifact.SchemaVersion != version || !slices.Equal(artifact.Features, names) {
		return nil, &contracts.PredictionError{
			SiteID: siteID,
			Message: fmt.Sprintf("feature contract mismatch: model %s %v, predictor %s %v",
				artifact.SchemaVersion, artifact.Features, version, names),
		}
	}

	matrix := make([][]float64, len(rows))
	for i, row := range rows {
		vec := row.Vector()
		for j, v := range vec {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &contracts.PredictionError{
					SiteID:  siteID,
					Message: fmt.Sprintf("feature %s is not finite at %s", names[j], observations[i].Time.Format("2006-01-02T15:04")),
				}
			}
		}
		matrix[i] = vec
	}

	if err := ctx.Err(); err != nil {
		return nil, &contracts.PredictionError{SiteID: siteID, Message: "cancelled before inference", Err: err}
	}

	outputs, err := artifact.Predict(matrix)
	if err != nil {
		return nil, &contracts.PredictionError{SiteID: siteID, Message: "inference failed", Err: err}
	}

	predictions := make([]contracts.HourlyPrediction, len(rows))
	clamped, negative := 0, 0
	for i, row := range rows {
		y := outputs[i]
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, &contracts.PredictionError{SiteID: siteID, Message: fmt.Sprintf("model output not finite for row %d", i)}
		}
		if clamp(row) {
			y = 0
			clamped++
		}
		if y < 0 {
			negative++
		}

		snapshot, err := json.Marshal(row)
		if err != nil {
			return nil, &contracts.PredictionError{SiteID: siteID, Message: "encode feature snapshot", Err: err}
		}

		predictions[i] = contracts.HourlyPrediction{
			SiteID:              siteID,
			Timestamp:           observations[i].Time,
			FeatureSnapshot:     snapshot,
			PredictedGeneration: y,
		}
	}

	log.Debug().
		Int64("site_id", siteID).
		Int("rows", len(rows)).
		Int("clamped", clamped).
		Str("schema_version", version).
		Msg("predictions computed")

	if negative > 0 {
		// 모델 출력은 그대로 저장
		log.Warn().
			Int64("site_id", siteID).
			Int("negative", negative).
			Str("schema_version", version).
			Msg("model produced negative generation")
	}

	return predictions, nil
}
