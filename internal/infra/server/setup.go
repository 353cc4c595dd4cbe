package server

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Setup abstracts away:
//
// 1. Setting up storage for running the voting service
// 2. Checking that things are set up
type Setup interface {

	// Check returns an error if all the necessary setup is not complete
	Check(ctx context.Context) error

	// RunIfNeeded attempts to run the subroutines necessary, no more no less
	RunIfNeeded(ctx context.Context) error
}

// Migrator is implemented by stores with a schema
type Migrator interface {
	PendingMigrations(ctx context.Context) ([]string, error)
	Migrate(ctx context.Context) (uint, error)
}

// NewSetup returns a Setup for the given Migrator; a nil Migrator has nothing to set up
func NewSetup(migrator Migrator) Setup {
	if migrator == nil {
		return noopSetup{}
	}
	return &impl{migrator: migrator}
}

type impl struct {
	migrator Migrator
}

func (i *impl) Check(ctx context.Context) error {
	if pending, err := i.migrator.PendingMigrations(ctx); err != nil {
		return err
	} else if len(pending) > 0 {
		return MigrationsPending{Names: pending}
	} else {
		return nil
	}
}

func (i *impl) RunIfNeeded(ctx context.Context) error {
	if err := i.Check(ctx); err != nil {
		if _, pending := err.(MigrationsPending); !pending {
			log.Info().Msg("Skipping migrations")
			return err
		}
	} else {
		log.Info().Msg("Storage already set up")
		return nil
	}

	log.Info().Msg("Applying migrations")
	applied, err := i.migrator.Migrate(ctx)
	if err != nil {
		log.Error().Err(err).Uint("applied", applied).Msg("Could not apply migrations")
		return err
	}
	log.Info().Uint("applied", applied).Msg("Setup complete")
	return nil
}

type noopSetup struct{}

func (n noopSetup) Check(ctx context.Context) error {
	return nil
}

func (n noopSetup) RunIfNeeded(ctx context.Context) error {
	return nil
}

// <-- Errors

type MigrationsPending struct {
	Names []string
}

func (e MigrationsPending) Error() string {
	return fmt.Sprintf("Migrations not applied yet: %v", e.Names)
}

//     Errors -->
