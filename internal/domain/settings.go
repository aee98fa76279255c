package domain

// PollSettings regroupe les réglages modifiables à chaud du poller.
type PollSettings struct {
	// Nombre max de comptes sélectionnés par passage.
	BatchSize int `json:"batchSize"`

	// Comptes réconciliés en parallèle.
	AccountConcurrency int `json:"accountConcurrency"`
}

func DefaultPollSettings() PollSettings {
	return PollSettings{
		BatchSize:          1000,
		AccountConcurrency: 4,
	}
}

// Normalize remplace les valeurs hors bornes par les valeurs par défaut.
func (s PollSettings) Normalize() PollSettings {
	def := DefaultPollSettings()
	if s.BatchSize <= 0 {
		s.BatchSize = def.BatchSize
	}
	if s.BatchSize > 10000 {
		s.BatchSize = 10000
	}
	if s.AccountConcurrency <= 0 {
		s.AccountConcurrency = def.AccountConcurrency
	}
	if s.AccountConcurrency > 64 {
		s.AccountConcurrency = 64
	}
	return s
}
