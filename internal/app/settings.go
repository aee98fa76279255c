package app

import (
	"context"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
)

type SettingsService struct {
	repo ports.SettingsRepository
}

func NewSettingsService(repo ports.SettingsRepository) *SettingsService {
	return &SettingsService{repo: repo}
}

func (s *SettingsService) Get(ctx context.Context) (domain.PollSettings, error) {
	if s == nil || s.repo == nil {
		return domain.DefaultPollSettings(), nil
	}
	got, err := s.repo.Get(ctx)
	if err != nil {
		return domain.PollSettings{}, err
	}
	return got.Normalize(), nil
}

func (s *SettingsService) Put(ctx context.Context, settings domain.PollSettings) (domain.PollSettings, error) {
	return s.repo.Put(ctx, settings.Normalize())
}
