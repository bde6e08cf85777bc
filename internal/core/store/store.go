package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/config"
)

const (
	driverLibsql = "libsql"
	memoryDSN    = ":memory:"
	authTokenKey = "authToken"
)

// Store keeps the ledger snapshot in a libsql database, either a local file
// or a remote libsql:// endpoint.
type Store struct {
	DB       *sql.DB
	location string
}

// Open connects to the database described by cfg and verifies it answers.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	dsn, err := libsqlDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverLibsql, dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql store: %w", err)
	}
	if dsn == memoryDSN {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping libsql store: %w", err)
	}

	return &Store{DB: db, location: redact(dsn)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return fmt.Errorf("%w: libsql store is not initialized", ErrStorageInit)
	}
	return s.DB.PingContext(ctx)
}

// Location returns the DSN with the auth token masked.
func (s *Store) Location() string {
	if s == nil {
		return ""
	}
	return s.location
}

// libsqlDSN prefers cfg.URL (plus auth token) over cfg.Path. Plain paths
// become file: DSNs and their directory is created.
func libsqlDSN(cfg config.StoreConfig) (string, error) {
	if raw := strings.TrimSpace(cfg.URL); raw != "" {
		return withAuthToken(raw, cfg.AuthToken)
	}

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return "", errors.New("store path or url is required")
	case path == memoryDSN, strings.HasPrefix(path, "libsql:"):
		return path, nil
	case strings.HasPrefix(path, "file:"):
		parsed, err := url.Parse(path)
		if err != nil {
			return "", fmt.Errorf("invalid store path: %w", err)
		}
		local := parsed.Path
		if local == "" {
			local = parsed.Opaque
		}
		if err := ensureStoreDir(strings.TrimPrefix(local, "//")); err != nil {
			return "", err
		}
		return path, nil
	default:
		if err := ensureStoreDir(path); err != nil {
			return "", err
		}
		return "file:" + filepath.Clean(path), nil
	}
}

func withAuthToken(dsn, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	query := parsed.Query()
	if query.Get(authTokenKey) == "" {
		query.Set(authTokenKey, token)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}

func redact(dsn string) string {
	parsed, err := url.Parse(dsn)
	if err != nil || parsed.Query().Get(authTokenKey) == "" {
		return dsn
	}
	query := parsed.Query()
	query.Set(authTokenKey, "REDACTED")
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// ensureStoreDir creates the parent directory of path.
func ensureStoreDir(path string) error {
	if strings.TrimSpace(path) == "" || path == memoryDSN {
		return nil
	}
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	// #nosec G301 -- data directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
