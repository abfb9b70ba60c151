package engine

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/blockberries/pollberry/types"
)

// Store backends
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
)

// MaxAccountSize is the largest account the engine allocates
const MaxAccountSize = 10 * 1024 * 1024

// StoreConfig selects and configures the account store
type StoreConfig struct {
	Backend string `yaml:"backend"`

	// Firestore settings
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
	Collection      string `yaml:"collection"`
}

// Config holds configuration for the ledger engine
type Config struct {
	// ChainID is mixed into every transaction's sign bytes
	ChainID string `yaml:"chain_id"`

	// Program names; ids are derived with types.ProgramID
	PollProgram  string `yaml:"poll_program"`
	TallyProgram string `yaml:"tally_program"`

	// WAL configuration
	WALPath           string `yaml:"wal_path"`
	WALSync           bool   `yaml:"wal_sync"` // Force sync on every commit
	WALMaxSegmentSize int64  `yaml:"wal_max_segment_size"`

	// WALFlushInterval bounds how long an unsynced commit stays in the
	// WAL buffer when WALSync is off. Zero disables the background flush.
	WALFlushInterval time.Duration `yaml:"wal_flush_interval"`

	// WALRetainSlots keeps this many committed slots in the WAL and lets
	// older segments be deleted. Zero keeps everything. Only valid with a
	// durable store, since the WAL is the memory store's only copy.
	WALRetainSlots uint64 `yaml:"wal_retain_slots"`

	// Rent: MinimumBalance(size) = RentBase + size*RentPerByte
	RentBase    uint64 `yaml:"rent_base"`
	RentPerByte uint64 `yaml:"rent_per_byte"`

	Store StoreConfig `yaml:"store"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		ChainID:           "pollberry-local",
		PollProgram:       "pollberry.poll",
		TallyProgram:      "pollberry.tally",
		WALPath:           "data/wal",
		WALSync:           true,
		WALMaxSegmentSize: 64 * 1024 * 1024,
		WALFlushInterval:  time.Second,
		RentBase:          890880,
		RentPerByte:       6960,
		Store: StoreConfig{
			Backend:    BackendMemory,
			Collection: "accounts",
		},
	}
}

// ValidateBasic performs basic validation of the config
func (cfg *Config) ValidateBasic() error {
	if cfg.ChainID == "" {
		return fmt.Errorf("%w: chain_id is empty", ErrInvalidConfig)
	}
	if cfg.PollProgram == "" || cfg.TallyProgram == "" {
		return fmt.Errorf("%w: program names must be set", ErrInvalidConfig)
	}
	if cfg.PollProgram == cfg.TallyProgram {
		return fmt.Errorf("%w: poll and tally programs share a name", ErrInvalidConfig)
	}
	if cfg.WALPath == "" {
		return fmt.Errorf("%w: wal_path is empty", ErrInvalidConfig)
	}
	if cfg.WALMaxSegmentSize < 0 {
		return fmt.Errorf("%w: negative wal_max_segment_size", ErrInvalidConfig)
	}
	if cfg.WALFlushInterval < 0 {
		return fmt.Errorf("%w: negative wal_flush_interval", ErrInvalidConfig)
	}
	if cfg.RentPerByte > (math.MaxUint64-cfg.RentBase)/MaxAccountSize {
		return fmt.Errorf("%w: rent for a %d byte account overflows", ErrInvalidConfig, MaxAccountSize)
	}

	switch cfg.Store.Backend {
	case BackendMemory:
	case BackendFirestore:
		if cfg.Store.Collection == "" {
			return fmt.Errorf("%w: firestore collection is empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, cfg.Store.Backend)
	}
	if cfg.WALRetainSlots > 0 && cfg.Store.Backend != BackendFirestore {
		return fmt.Errorf("%w: wal_retain_slots needs the %s backend", ErrInvalidConfig, BackendFirestore)
	}
	return nil
}

// PollProgramID returns the id of the poll program
func (cfg *Config) PollProgramID() types.Address {
	return types.ProgramID(cfg.PollProgram)
}

// TallyProgramID returns the id of the tally program
func (cfg *Config) TallyProgramID() types.Address {
	return types.ProgramID(cfg.TallyProgram)
}

// MinimumBalance returns the balance an account of size bytes must hold.
// Sizes above MaxAccountSize cost math.MaxUint64.
func (cfg *Config) MinimumBalance(size int) uint64 {
	if size < 0 {
		size = 0
	}
	if size > MaxAccountSize {
		return math.MaxUint64
	}
	return cfg.RentBase + uint64(size)*cfg.RentPerByte
}

// LoadConfig reads a YAML config file. Fields absent from the file keep
// their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config over the defaults and validates it
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.ValidateBasic(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML
func (cfg *Config) Save(path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
