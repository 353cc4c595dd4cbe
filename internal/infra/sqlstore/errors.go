package sqlstore

import (
	"fmt"

	"github.com/fedus/safe-crossing-cf/internal/config"
)

// <-- Errors

type UnsupportedDriver struct {
	Driver config.StorageDriver
}

func (e UnsupportedDriver) Error() string {
	return fmt.Sprintf("Unsupported SQL driver [%s], expected one of [%s, %s]", e.Driver, config.SqliteDriver, config.PostgresDriver)
}

type MissingDSN struct {
	Driver config.StorageDriver
}

func (e MissingDSN) Error() string {
	return fmt.Sprintf("No DSN configured for the [%s] driver", e.Driver)
}

//     Errors -->
