// Package tilecache memoizes fetched raster/vector tile bytes keyed by
// (kind, z, x, y), so repeated generate() calls over overlapping bboxes
// don't re-fetch tiles from the DEM/MVT servers (§8 Testable Property 6).
//
// Adapted from the teacher's internal/mbtiles writer/reader pair: same
// database/sql + modernc.org/sqlite + gzip idiom, generalized from a
// single-format MBTiles file (one "kind" of tile per database, TMS row
// numbering) into a generic two-kind (raster DEM, vector MVT) blob store
// addressed in plain XYZ, since this cache is private working state, not
// a file meant to be opened by other MBTiles-compatible tools.
package tilecache

import "context"

// Kind distinguishes the two tile flavors the engine fetches.
type Kind string

const (
	KindRaster Kind = "raster"
	KindVector Kind = "vector"
)

// Backend is the storage interface a Cache delegates to. LocalBackend
// (sqlite) and S3Backend (object storage) both implement it, so a
// deployment can point the cache at local disk or a bucket without
// changing any caller.
type Backend interface {
	Get(ctx context.Context, kind Kind, z, x, y int) ([]byte, bool, error)
	Put(ctx context.Context, kind Kind, z, x, y int, data []byte) error
	Close() error
}

// Cache wraps a Backend with the get-or-fetch idiom every tile client
// call site wants: check the cache, and only call fetch on a miss.
type Cache struct {
	backend Backend
}

// New wraps a Backend in a Cache.
func New(backend Backend) *Cache {
	return &Cache{backend: backend}
}

// GetOrFetch returns the cached bytes for (kind,z,x,y) if present;
// otherwise it calls fetch, stores the result, and returns it. A fetch
// error is never cached — only successful fetches are memoized.
func (c *Cache) GetOrFetch(ctx context.Context, kind Kind, z, x, y int, fetch func(ctx context.Context) ([]byte, error)) ([]byte, bool, error) {
	if data, ok, err := c.backend.Get(ctx, kind, z, x, y); err != nil {
		return nil, false, err
	} else if ok {
		return data, true, nil
	}

	data, err := fetch(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := c.backend.Put(ctx, kind, z, x, y, data); err != nil {
		return data, false, err
	}
	return data, false, nil
}

// Close releases the underlying backend's resources.
func (c *Cache) Close() error {
	return c.backend.Close()
}
