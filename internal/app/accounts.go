package app

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
	"github.com/rs/xid"
)

type AccountService struct {
	repo ports.AccountRepository
	bus  ports.EventBus
}

func NewAccountService(repo ports.AccountRepository, bus ports.EventBus) *AccountService {
	return &AccountService{repo: repo, bus: bus}
}

type AccountDTO struct {
	ID string `json:"id"`

	Platform         domain.Platform `json:"platform"`
	PlatformUserID   string          `json:"platformUserId"`
	PlatformUsername string          `json:"platformUsername"`
	IsEnabled        bool            `json:"isEnabled"`

	LastCheckedAt time.Time `json:"lastCheckedAt"`
	NextCheckAt   time.Time `json:"nextCheckAt"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func toAccountDTO(a domain.PlatformAccount) AccountDTO {
	return AccountDTO{
		ID:               a.ID,
		Platform:         a.Platform,
		PlatformUserID:   a.PlatformUserID,
		PlatformUsername: a.PlatformUsername,
		IsEnabled:        a.IsEnabled,
		LastCheckedAt:    a.LastCheckedAt,
		NextCheckAt:      a.NextCheckAt,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

type CreateAccountRequest struct {
	Platform         string `json:"platform"`
	PlatformUserID   string `json:"platformUserId"`
	PlatformUsername string `json:"platformUsername"`
}

// Create enregistre un compte, vérifiable immédiatement (next_check_at = now).
func (s *AccountService) Create(ctx context.Context, req CreateAccountRequest) (AccountDTO, error) {
	platform, err := domain.ParsePlatform(req.Platform)
	if err != nil {
		return AccountDTO{}, &ValidationError{Field: "platform", Message: err.Error()}
	}
	userID := strings.TrimSpace(req.PlatformUserID)
	username := strings.TrimSpace(req.PlatformUsername)
	if userID == "" {
		return AccountDTO{}, &ValidationError{Field: "platformUserId", Message: "required"}
	}

	now := time.Now().UTC()
	created, err := s.repo.Create(ctx, domain.PlatformAccount{
		ID:               xid.New().String(),
		Platform:         platform,
		PlatformUserID:   userID,
		PlatformUsername: username,
		IsEnabled:        true,
		NextCheckAt:      now,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return AccountDTO{}, err
	}
	s.publish("account.created", created)
	return toAccountDTO(created), nil
}

func (s *AccountService) Get(ctx context.Context, id string) (AccountDTO, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return AccountDTO{}, err
	}
	return toAccountDTO(a), nil
}

func (s *AccountService) List(ctx context.Context, limit int) ([]AccountDTO, error) {
	accts, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]AccountDTO, 0, len(accts))
	for _, a := range accts {
		out = append(out, toAccountDTO(a))
	}
	return out, nil
}

func (s *AccountService) SetEnabled(ctx context.Context, id string, enabled bool) (AccountDTO, error) {
	updated, err := s.repo.SetEnabled(ctx, id, enabled)
	if err != nil {
		return AccountDTO{}, err
	}
	s.publish("account.updated", updated)
	return toAccountDTO(updated), nil
}

func (s *AccountService) publish(topic string, a domain.PlatformAccount) {
	if s.bus == nil {
		return
	}
	b, err := json.Marshal(toAccountDTO(a))
	if err != nil {
		return
	}
	s.bus.Publish(topic, b)
}
