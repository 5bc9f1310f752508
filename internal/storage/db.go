package storage

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config is the ambient, on-disk configuration for a database directory:
// buffer pool sizing. It is stored as YAML at
// <home>/akasha.yaml and written atomically so a crash mid-write never
// leaves a half-written config behind.
type Config struct {
	ShardCount    int `yaml:"shard_count"`
	SlotsPerShard int `yaml:"slots_per_shard"`
}

// DefaultConfig returns the configuration newly created databases use.
func DefaultConfig() Config {
	return Config{ShardCount: DefaultShardCount, SlotsPerShard: DefaultSlotsPerShard}
}

func configPath(homeDir string) string {
	return homeDir + string(os.PathSeparator) + "akasha.yaml"
}

// LoadConfig reads the config file from homeDir, returning DefaultConfig
// if it doesn't exist yet.
func LoadConfig(homeDir string) (Config, error) {
	data, err := os.ReadFile(configPath(homeDir))
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("storage: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("storage: parse config: %w", err)
	}
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = DefaultShardCount
	}
	if cfg.SlotsPerShard <= 0 {
		cfg.SlotsPerShard = DefaultSlotsPerShard
	}
	return cfg, nil
}

// Save persists cfg to homeDir/akasha.yaml using an atomic rename so
// concurrent readers never observe a partial file.
func (cfg Config) Save(homeDir string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("storage: marshal config: %w", err)
	}
	return atomicWriteFile(configPath(homeDir), data)
}

// DB is a handle onto one akasha database directory, wiring together the
// file layer, buffer pool, and catalog.
type DB struct {
	homeDir    string
	fm         *FileSystemManager
	io         *IoManager
	Pool       *BufferPool
	Catalog    *TableCatalog
	sched      *Scheduler
	InstanceID uuid.UUID
}

// Create initializes a brand-new, empty database directory at homeDir
// with the default buffer pool sizing. It fails if the directory
// already holds a database (a relations file is present).
func Create(ctx context.Context, homeDir string, logger *log.Logger) (*DB, error) {
	return CreateWithConfig(ctx, homeDir, DefaultConfig(), logger)
}

// CreateWithConfig is Create with an explicit buffer pool configuration,
// e.g. a deliberately small pool to exercise eviction under test.
func CreateWithConfig(ctx context.Context, homeDir string, cfg Config, logger *log.Logger) (*DB, error) {
	fm, err := NewFileSystemManager(homeDir)
	if err != nil {
		return nil, err
	}
	if fm.Exists(RelationsFileID) {
		return nil, fmt.Errorf("storage: %q already contains a database", homeDir)
	}

	if err := cfg.Save(homeDir); err != nil {
		return nil, err
	}

	io := NewIoManager(fm, logger)
	pool := NewBufferPool(io, cfg.ShardCount, cfg.SlotsPerShard)
	cat, err := InitThenLoad(ctx, io, pool)
	if err != nil {
		io.Close()
		return nil, err
	}

	db := &DB{homeDir: homeDir, fm: fm, io: io, Pool: pool, Catalog: cat, InstanceID: uuid.New()}
	db.sched = NewScheduler(db, logger)
	db.sched.Start()
	io.logger.Printf("storage: opened %q as instance %s (new database)", homeDir, db.InstanceID)
	return db, nil
}

// Open reopens an existing database directory, reconstructing the
// catalog from the two system tables.
func Open(ctx context.Context, homeDir string, logger *log.Logger) (*DB, error) {
	fm, err := NewFileSystemManager(homeDir)
	if err != nil {
		return nil, err
	}
	if !fm.Exists(RelationsFileID) {
		return nil, fmt.Errorf("storage: %q does not contain a database", homeDir)
	}

	cfg, err := LoadConfig(homeDir)
	if err != nil {
		return nil, err
	}

	io := NewIoManager(fm, logger)
	pool := NewBufferPool(io, cfg.ShardCount, cfg.SlotsPerShard)
	cat, err := Load(ctx, io, pool)
	if err != nil {
		io.Close()
		return nil, err
	}

	db := &DB{homeDir: homeDir, fm: fm, io: io, Pool: pool, Catalog: cat, InstanceID: uuid.New()}
	db.sched = NewScheduler(db, logger)
	db.sched.Start()
	io.logger.Printf("storage: opened %q as instance %s (existing database)", homeDir, db.InstanceID)
	return db, nil
}

// Flush writes back every dirty buffer-pool frame and waits for the
// writes to drain.
func (db *DB) Flush() {
	db.Pool.Flush()
}

// Close stops the background flush scheduler, flushes every dirty
// frame, and closes all open relation files.
func (db *DB) Close() error {
	db.sched.Stop()
	db.Flush()
	if err := db.io.Close(); err != nil {
		db.fm.Close()
		return err
	}
	return db.fm.Close()
}
