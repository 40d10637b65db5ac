package tilecache

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver
)

// LocalBackend stores tile blobs in a sqlite database, gzip-compressed,
// keyed by (kind, zoom_level, tile_column, tile_row). Mirrors the
// teacher's internal/mbtiles.Writer/Reader pragmas and schema style, but
// as one read-write type instead of a split writer/reader pair, since
// this cache is read and written by the same process.
type LocalBackend struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenLocalBackend opens (creating if necessary) a sqlite-backed tile
// cache at path.
func OpenLocalBackend(path string) (*LocalBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tile cache database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 50000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS tiles (
			kind        TEXT NOT NULL,
			zoom_level  INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row    INTEGER NOT NULL,
			tile_data   BLOB NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS tile_index
			ON tiles (kind, zoom_level, tile_column, tile_row);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tile cache schema: %w", err)
	}

	return &LocalBackend{db: db}, nil
}

// Get looks up a cached tile, returning (nil, false, nil) on a miss.
func (b *LocalBackend) Get(ctx context.Context, kind Kind, z, x, y int) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var compressed []byte
	err := b.db.QueryRowContext(ctx,
		"SELECT tile_data FROM tiles WHERE kind=? AND zoom_level=? AND tile_column=? AND tile_row=?",
		string(kind), z, x, y,
	).Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query tile cache: %w", err)
	}

	data, err := gunzip(compressed)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decompress cached tile: %w", err)
	}
	return data, true, nil
}

// Put stores a tile, overwriting any existing entry for the same key.
func (b *LocalBackend) Put(ctx context.Context, kind Kind, z, x, y int, data []byte) error {
	compressed, err := gzipBytes(data)
	if err != nil {
		return fmt.Errorf("failed to compress tile: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	_, err = b.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO tiles (kind, zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?, ?)",
		string(kind), z, x, y, compressed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert tile into cache: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (b *LocalBackend) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close tile cache database: %w", err)
	}
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzip(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}
