package contracts

import (
	"errors"
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestParseGenerationType(t *testing.T) {
	tests := []struct {
		in      string
		want    GenerationType
		wantErr bool
	}{
		{"solar", Solar, false},
		{"Wind", Wind, false},
		{" SOLAR ", Solar, false},
		{"hydro", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseGenerationType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseGenerationType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseGenerationType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStageOf(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   Stage
		wantOK bool
	}{
		{"ingestion", &IngestionError{SiteID: 1, Message: "weather provider unreachable"}, StageIngestion, true},
		{"prediction", &PredictionError{SiteID: 1, Message: "feature contract mismatch"}, StagePrediction, true},
		{"persistence", &PersistenceError{SiteID: 1, Message: "transaction rolled back"}, StagePersistence, true},
		{"wrapped", fmt.Errorf("run: %w", &PersistenceError{SiteID: 2}), StagePersistence, true},
		{"not found", ErrSiteNotFound, "", false},
		{"nil", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := StageOf(tt.err)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("StageOf() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestStageErrorMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := &IngestionError{SiteID: 7, Message: "weather provider unreachable", Err: cause}

	want := "ingestion failed for site 7: weather provider unreachable: connection refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("IngestionError should unwrap to its cause")
	}

	if got := (&PredictionError{}).Error(); got != "prediction failed" {
		t.Errorf("empty PredictionError = %q", got)
	}
}

func TestDailyPrediction_RecommendationMessage(t *testing.T) {
	below := DailyPrediction{Date: time.Now(), TotalPredictedGeneration: 1200.45, BelowThreshold: true}
	msg := below.RecommendationMessage()
	if msg == nil || *msg != "Energy generation below threshold" {
		t.Errorf("below threshold message = %v", msg)
	}

	above := DailyPrediction{Date: time.Now(), TotalPredictedGeneration: 1500}
	if above.RecommendationMessage() != nil {
		t.Error("message should be nil when not below threshold")
	}
}

func TestCivilDate(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	ts := time.Date(2024, 6, 1, 23, 30, 0, 0, loc)

	got := CivilDate(ts)
	if got.Format(DateLayout) != "2024-06-01" || got.Hour() != 0 || got.Location() != loc {
		t.Errorf("CivilDate() = %v", got)
	}
}

func TestPersistCounts(t *testing.T) {
	c := PersistCounts{HourlyCreated: 24, DailyCreated: 1, HourlyUpdated: 3, DailyUpdated: 2}
	if c.Created() != 25 || c.Updated() != 5 {
		t.Errorf("Created/Updated = %d/%d", c.Created(), c.Updated())
	}
}

func TestSiteZone(t *testing.T) {
	tests := []struct {
		tz     string
		wantOK bool
	}{
		{"", false},
		{"Asia/Kolkata", true},
		{"Mars/Olympus", false},
	}
	for _, tt := range tests {
		loc, ok := Site{Timezone: tt.tz}.Zone()
		if ok != tt.wantOK {
			t.Errorf("Zone(%q) ok = %v, want %v", tt.tz, ok, tt.wantOK)
			continue
		}
		if ok && loc.String() != tt.tz {
			t.Errorf("Zone(%q) = %s", tt.tz, loc)
		}
	}
}
