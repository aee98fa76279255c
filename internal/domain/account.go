package domain

import "time"

// PlatformAccount identifie une chaîne de créateur sur une plateforme.
// PlatformUserID est la clé de jointure avec les Snapshots.
type PlatformAccount struct {
	ID       string
	Platform Platform

	PlatformUserID   string
	PlatformUsername string

	IsEnabled bool

	LastCheckedAt time.Time
	NextCheckAt   time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// QueryName renvoie l'alias utilisé pour interroger la plateforme.
func (a PlatformAccount) QueryName() string {
	if a.PlatformUsername != "" {
		return a.PlatformUsername
	}
	return a.PlatformUserID
}
