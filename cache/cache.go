// Package cache stores compiled chunks in SQLite, keyed by source text.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/loxbc/compiler"
	"github.com/chazu/loxbc/pkg/bytecode"
)

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("cache closed")

// Store is a SQLite-backed chunk cache. It is safe for concurrent use.
type Store struct {
	db           *sql.DB
	path         string
	lineComments bool
	log          commonlog.Logger
	mu           sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLineComments marks the cache as holding chunks compiled with line
// comments enabled. It is part of the cache key, and Compile passes it to
// the lexer.
func WithLineComments(enabled bool) Option {
	return func(s *Store) {
		s.lineComments = enabled
	}
}

// WithLogger sets the logger for hit and miss reporting.
func WithLogger(log commonlog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// Open opens or creates the cache database at path. Parent directories are
// created as needed.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path: path,
		log:  commonlog.GetLogger("loxbc.cache"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS chunks (
		key TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		data BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	s.db = db
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database connection. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// key hashes the lexer mode together with the source.
func (s *Store) key(source string) string {
	h := sha256.New()
	if s.lineComments {
		h.Write([]byte("comments\x00"))
	} else {
		h.Write([]byte("plain\x00"))
	}
	h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached chunk for source. The boolean is false on a miss.
// Entries written by another format version, or that fail to decode, count
// as misses.
func (s *Store) Get(source string) (*bytecode.Chunk, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, false, ErrClosed
	}

	var (
		version int
		data    []byte
	)
	err := s.db.QueryRow("SELECT version, data FROM chunks WHERE key = ?", s.key(source)).Scan(&version, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("querying chunk: %w", err)
	}

	if version != int(bytecode.FormatVersion) {
		s.log.Debugf("ignoring cached chunk with format version %d", version)
		return nil, false, nil
	}
	chunk, err := bytecode.UnmarshalChunk(data)
	if err != nil {
		s.log.Warningf("discarding unreadable cached chunk: %s", err)
		return nil, false, nil
	}
	return chunk, true, nil
}

// Put stores chunk as the compiled form of source, replacing any existing
// entry.
func (s *Store) Put(source string, chunk *bytecode.Chunk) error {
	data, err := bytecode.MarshalChunk(chunk)
	if err != nil {
		return fmt.Errorf("encoding chunk: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrClosed
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO chunks (key, version, data, created_at) VALUES (?, ?, ?, ?)",
		s.key(source), int(bytecode.FormatVersion), data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving chunk: %w", err)
	}
	return nil
}

// Compile returns the cached chunk for source, compiling and storing it on a
// miss. The boolean reports a cache hit. Compile errors are returned as-is
// and nothing is stored for them.
func (s *Store) Compile(source string) (*bytecode.Chunk, bool, error) {
	chunk, ok, err := s.Get(source)
	if err != nil {
		return nil, false, err
	}
	if ok {
		s.log.Debugf("cache hit for %d bytes of source", len(source))
		return chunk, true, nil
	}

	var opts []compiler.Option
	if s.lineComments {
		opts = append(opts, compiler.WithLexerOptions(compiler.WithLineComments()))
	}
	chunk, err = compiler.Compile(source, opts...)
	if err != nil {
		return nil, false, err
	}

	s.log.Debugf("cache miss, storing %d instructions", chunk.CodeLen())
	if err := s.Put(source, chunk); err != nil {
		return nil, false, err
	}
	return chunk, false, nil
}

// Len returns the number of cached entries.
func (s *Store) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return 0, ErrClosed
	}
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// Clear removes every cached entry.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrClosed
	}
	if _, err := s.db.Exec("DELETE FROM chunks"); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}
	return nil
}
