package config

import "time"

// TopLevel exists so that the config file can be namespaced; viper's UnmarshalKey doesn't play
// well with env vars
type TopLevel struct {
	SafeCrossing struct {
		Server App `json:"server" mapstructure:"server"`
	} `json:"safe_crossing" mapstructure:"safe_crossing"`
}

type App struct {
	BindAddress     string        `json:"bind_address" mapstructure:"bind_address"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	Storage         Storage       `json:"storage" mapstructure:"storage"`
	ApmClient       *ApmClient    `json:"apm,omitempty" mapstructure:"apm"`
	Auth            *Auth         `json:"auth,omitempty" mapstructure:"auth"`
	Logging         *Logging      `json:"logging,omitempty" mapstructure:"logging"`
	Voting          Voting        `json:"voting" mapstructure:"voting"`
	Audit           Audit         `json:"audit" mapstructure:"audit"`
}

type Logging struct {
	Json  *bool   `json:"json,omitempty" mapstructure:"json"`
	File  *string `json:"file,omitempty" mapstructure:"file"`
	Level *string `json:"level,omitempty" mapstructure:"level"`
}

// StorageDriver picks the crossing.Store implementation
type StorageDriver string

const (
	MemoryDriver   StorageDriver = "memory"
	SqliteDriver   StorageDriver = "sqlite"
	PostgresDriver StorageDriver = "postgres"
)

type Storage struct {
	Driver StorageDriver `json:"driver" mapstructure:"driver"`
	// DSN is a file path for sqlite and a connection URL for postgres; ignored for memory
	DSN string `json:"-" mapstructure:"dsn"`
	// How many times a conflicting transaction is attempted before giving up
	TransactionAttempts uint `json:"transaction_attempts" mapstructure:"transaction_attempts"`
	MaxOpenConns        int  `json:"max_open_conns" mapstructure:"max_open_conns"`
	// SeedFile, when set, is imported every time the server starts. Crossings that already exist are left alone.
	SeedFile string `json:"seed_file,omitempty" mapstructure:"seed_file"`
}

// InMemory is true when nothing written to the store outlives the process
func (s Storage) InMemory() bool {
	return s.Driver == "" || s.Driver == MemoryDriver
}

type ApmClient struct {
	Address     *string `json:"address,omitempty" mapstructure:"address"`
	SecretToken *string `json:"-" mapstructure:"secret_token"`
}

type Auth struct {
	BasicAuth []BasicAuthUser `json:"basic_auth" mapstructure:"basic_auth"`
}

type BasicAuthUser struct {
	Name     string `json:"name" mapstructure:"name"`
	Password string `json:"-" mapstructure:"password"`
}

type Voting struct {
	// InitChunkSize is how many unseenBy writes go into each batch during user initialization.
	// Must stay below crossing.MaxBatchWrites to leave room for the final user write.
	InitChunkSize uint `json:"init_chunk_size" mapstructure:"init_chunk_size"`
	// ScanPageSize is how many crossings are read per page when walking all of them
	ScanPageSize uint `json:"scan_page_size" mapstructure:"scan_page_size"`
	// MaxBatchQuantity caps the quantity of a single feed page
	MaxBatchQuantity uint `json:"max_batch_quantity" mapstructure:"max_batch_quantity"`
}

type Audit struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	// Schedule is a standard cron expression
	Schedule string `json:"schedule" mapstructure:"schedule"`
}

// DefaultVoting is used by tests and as the fallback for unset values
var DefaultVoting = Voting{
	InitChunkSize:    498,
	ScanPageSize:     1000,
	MaxBatchQuantity: 500,
}
