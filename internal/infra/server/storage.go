package server

import (
	"github.com/rs/zerolog/log"

	"github.com/fedus/safe-crossing-cf/internal/config"
	"github.com/fedus/safe-crossing-cf/internal/domain/crossing"
	"github.com/fedus/safe-crossing-cf/internal/infra/memory"
	"github.com/fedus/safe-crossing-cf/internal/infra/sqlstore"
)

// Storage is the crossing.Store picked by config, along with what it takes to set it up and tear it down
type Storage struct {
	Store crossing.Store
	Setup Setup
	close func() error
}

// OpenStorage opens the configured store. An unset driver means the in-memory store.
func OpenStorage(settings config.Storage) (*Storage, error) {
	if settings.InMemory() {
		log.Warn().Msg("Using the in-memory store; nothing survives a restart")
		return &Storage{
			Store: memory.NewStore(settings),
			Setup: NewSetup(nil),
			close: func() error { return nil },
		}, nil
	}
	store, err := sqlstore.Open(settings)
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver", string(settings.Driver)).Msg("Opened SQL store")
	return &Storage{
		Store: store,
		Setup: NewSetup(store),
		close: store.Close,
	}, nil
}

func (s *Storage) Close() error {
	return s.close()
}
