package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/glebarez/sqlite" // pure-Go SQLite driver, no CGO required
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mccartyp/govee-artnet-lan-bridge/internal/bus"
)

// currentSchemaVersion is compared against the stored meta row at Open; the
// process refuses to start if the stored version is newer than this binary
// understands (spec §4.C).
const currentSchemaVersion = 1

// Store is the transactional registry described in spec §4.C. Multi-statement
// mutations run inside db.Transaction, matching the teacher's repository
// pattern; MarkStale, DeleteState, RecordPollSuccess and RecordPollFailure
// each issue a single statement without an explicit transaction.
type Store struct {
	db        *gorm.DB
	bus       *bus.Bus
	logger    *slog.Logger
	protocols ProtocolRegistry
}

// Wrapper wraps an aggregated device payload into one or more
// protocol-specific wire messages, per spec §4.C's payload-wrapping rules.
// internal/protocols.Registry implements this structurally, avoiding an
// import cycle between store and protocols.
type Wrapper interface {
	Wrap(payload map[string]any) ([][]byte, error)
}

// ProtocolRegistry resolves a device's protocol tag to its Wrapper.
type ProtocolRegistry interface {
	Resolve(protocol string) (Wrapper, bool)
}

// SetProtocolRegistry wires the protocol dispatch table used by
// EnqueueState. Must be called before EnqueueState is used.
func (s *Store) SetProtocolRegistry(reg ProtocolRegistry) {
	s.protocols = reg
}

// ValidationError is returned by mutation methods for illegal input, never
// surfaced past the Store's API boundary to ingest (spec §7).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Open connects to a SQLite database in WAL mode, migrates the schema, and
// enforces the version gate.
func Open(path string, eventBus *bus.Bus, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create db directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1) // single writer; SQLite serializes anyway
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Device{}, &Mapping{}, &PendingState{}, &DeadLetter{}, &schemaMeta{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	if err := checkSchemaVersion(db); err != nil {
		return nil, err
	}

	logger.Info("database opened", "path", path)
	return &Store{db: db, bus: eventBus, logger: logger}, nil
}

func checkSchemaVersion(db *gorm.DB) error {
	var row schemaMeta
	err := db.Where("key = ?", "schema_version").First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return db.Create(&schemaMeta{Key: "schema_version", Value: strconv.Itoa(currentSchemaVersion)}).Error
	}
	if err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}
	stored, err := strconv.Atoi(row.Value)
	if err != nil {
		return fmt.Errorf("store: invalid schema_version value %q", row.Value)
	}
	if stored > currentSchemaVersion {
		return fmt.Errorf("store: database schema version %d is newer than this binary supports (%d); refusing to start", stored, currentSchemaVersion)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) publish(topic bus.Topic, event any) {
	if s.bus != nil {
		s.bus.Publish(topic, event)
	}
}
