// File: internal/store/store.go
package store

import (
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/iyunix/go-branchchat/internal/domain"
)

// Kind names a logical record table. Transactions declare the kinds they
// touch; watchers subscribe to them.
type Kind string

const (
	KindChats    Kind = "chats"
	KindMessages Kind = "messages"
)

// Logger defines the logging interface the store needs.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

type Config struct {
	Path string // database file path, or ":memory:"
}

// Store owns the SQLite database, the per-kind transaction locks, the insert
// sequence counter and the watch registry. Construct one instance at startup,
// pass it by reference, Close it on shutdown.
type Store struct {
	db     *gorm.DB
	logger Logger

	muMu   sync.Mutex
	kindMu map[Kind]*sync.Mutex

	seqMu   sync.Mutex
	lastSeq uint64

	watches *registry
}

// Open opens (or creates) the database and migrates the chat and message
// tables.
func Open(cfg Config, logger Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, domain.NewStorageError("store.Open", "failed to open database", err)
	}
	// A single connection keeps ":memory:" databases coherent and makes
	// SQLite's single-writer model explicit.
	if sqlDB, dbErr := db.DB(); dbErr == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&domain.Chat{}, &domain.Message{}); err != nil {
		return nil, domain.NewStorageError("store.Open", "failed to migrate schema", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
		kindMu: map[Kind]*sync.Mutex{
			KindChats:    {},
			KindMessages: {},
		},
		watches: newRegistry(),
	}
	if err := s.loadSeq(); err != nil {
		return nil, err
	}
	logger.Info("store opened", "path", cfg.Path, "last_seq", s.lastSeq)
	return s, nil
}

// loadSeq seeds the insert counter from the highest sequence already on disk.
func (s *Store) loadSeq() error {
	var last uint64
	err := s.db.Model(&domain.Message{}).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&last).Error
	if err != nil {
		return domain.NewStorageError("store.Open", "failed to read sequence counter", err)
	}
	s.lastSeq = last
	return nil
}

// NextSeq returns the next value of the monotonic insert counter.
func (s *Store) NextSeq() uint64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.lastSeq++
	return s.lastSeq
}

// DB exposes read access to committed records. All mutation must go through
// Transaction.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases all watches and the underlying database.
func (s *Store) Close() error {
	s.watches.closeAll()
	sqlDB, err := s.db.DB()
	if err != nil {
		return domain.NewStorageError("store.Close", "failed to access database handle", err)
	}
	if err := sqlDB.Close(); err != nil {
		return domain.NewStorageError("store.Close", "failed to close database", err)
	}
	s.logger.Info("store closed")
	return nil
}

// lockFor returns the lock for a kind, creating one for kinds the store was
// not opened with.
func (s *Store) lockFor(kind Kind) *sync.Mutex {
	s.muMu.Lock()
	defer s.muMu.Unlock()
	mu, ok := s.kindMu[kind]
	if !ok {
		mu = &sync.Mutex{}
		s.kindMu[kind] = mu
	}
	return mu
}
