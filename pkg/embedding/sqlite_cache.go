package embedding

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/XiaoConstantine/retrievolve/pkg/errors"
)

// SQLiteCache persists embedding vectors across runs, keyed the same way as
// the in-memory cache. WAL mode keeps concurrent readers cheap during a run.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache opens (or creates) a cache database at path.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	if path == "" {
		path = "retrievolve_cache.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidConfiguration, "opening embedding cache database")
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	schema := `
	CREATE TABLE IF NOT EXISTS embedding_cache (
		key        TEXT PRIMARY KEY,
		vector     BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.InvalidConfiguration, "initializing embedding cache schema")
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrap(err, errors.InvalidConfiguration, "configuring embedding cache")
		}
	}

	return &SQLiteCache{db: db}, nil
}

func (c *SQLiteCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	var blob []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT vector FROM embedding_cache WHERE key = ?`, key).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return decodeVector(blob), true, nil
}

func (c *SQLiteCache) Set(ctx context.Context, key string, vector []float32) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO embedding_cache (key, vector, created_at) VALUES (?, ?, ?)`,
		key, encodeVector(vector), time.Now().Unix())
	return err
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
