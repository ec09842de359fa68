package contracts

import (
	"context"
	"time"
)

// SiteDirectory gives read-only access to registered sites
// ⭐ SSOT: 사이트 조회 인터페이스
type SiteDirectory interface {
	Get(ctx context.Context, id int64) (*Site, error)
	ListByType(ctx context.Context, t GenerationType) ([]Site, error)
}

// WeatherSource fetches an hourly series for a location descriptor (ingestion stage)
// ⭐ SSOT: 날씨 수집 단계 인터페이스
type WeatherSource interface {
	Fetch(ctx context.Context, location string, days int, t GenerationType) ([]WeatherObservation, error)
}

// ForecastStore persists one run and serves the stored series (persistence stage)
// ⭐ SSOT: 저장 단계 인터페이스
type ForecastStore interface {
	Persist(ctx context.Context, site Site, hourly []HourlyPrediction, daily []DailyPrediction) (PersistCounts, error)
	HourlyForDate(ctx context.Context, site Site, date time.Time) ([]HourlyRecord, error)
	DailyRange(ctx context.Context, site Site, from, to time.Time) ([]DailyRecord, error)
	HasDailyOn(ctx context.Context, site Site, date time.Time) (bool, error)
}
