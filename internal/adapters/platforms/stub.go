package platforms

import (
	"context"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
)

// Stub déclare chaque compte hors ligne, sans appel réseau. Sert de
// placeholder pour les plateformes sans API exploitable.
type Stub struct {
	platform domain.Platform
}

func NewStub(p domain.Platform) *Stub { return &Stub{platform: p} }

func (s *Stub) Platform() domain.Platform { return s.platform }

func (s *Stub) Fetch(ctx context.Context, accounts []domain.PlatformAccount) ports.FetchResult {
	fr := ports.NewFetchResult()
	for _, a := range accounts {
		fr.Snapshots[a.PlatformUserID] = domain.OfflineSnapshot(a.PlatformUserID)
	}
	return fr
}
