package storage

import (
	"context"
	"database/sql"

	"github.com/lachiem1/cashflow/internal/settings"
)

const chartSettingsKey = "chart_settings"

// ChartSettingsStore persists settings.Config as one JSON document in
// app_config.
type ChartSettingsStore struct {
	repo *AppConfigRepo
}

func NewChartSettingsStore(db *sql.DB) *ChartSettingsStore {
	return &ChartSettingsStore{repo: NewAppConfigRepo(db)}
}

func (s *ChartSettingsStore) Load(ctx context.Context) (*settings.Config, error) {
	raw, ok, err := s.repo.Get(ctx, chartSettingsKey)
	if err != nil || !ok {
		return nil, err
	}
	return settings.Decode([]byte(raw))
}

func (s *ChartSettingsStore) Save(ctx context.Context, cfg *settings.Config) error {
	data, err := settings.Encode(cfg)
	if err != nil {
		return err
	}
	return s.repo.Set(ctx, chartSettingsKey, string(data))
}

func (s *ChartSettingsStore) Clear(ctx context.Context) error {
	return s.repo.Delete(ctx, chartSettingsKey)
}
