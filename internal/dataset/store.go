package dataset

import (
	"context"
	"os"
	"path/filepath"
	"time"

	planerrors "github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/errors"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/metrics"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/model"
	"go.uber.org/zap"
)

// Active is the dataset currently served, with the file it came from.
type Active struct {
	Path    string
	Name    string
	ModTime time.Time
	Dataset *model.Dataset
}

// Store resolves the active dataset through the finder and the cache.
type Store struct {
	finder  *Finder
	cache   *Cache
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewStore creates a store. m may be nil.
func NewStore(finder *Finder, cache *Cache, m *metrics.Metrics, logger *zap.Logger) *Store {
	return &Store{
		finder:  finder,
		cache:   cache,
		metrics: m,
		logger:  logger,
	}
}

// Active returns the newest consolidated dataset, parsing it at most once per file version.
func (s *Store) Active(ctx context.Context) (*Active, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.finder.Latest()
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, planerrors.InvalidDataset(path, err)
	}
	key := Key{Path: path, ModTime: info.ModTime().UTC(), Size: info.Size()}

	if ds, ok := s.cache.Get(key); ok {
		if s.metrics != nil {
			s.metrics.RecordCacheHit()
		}
		return &Active{Path: path, Name: filepath.Base(path), ModTime: key.ModTime, Dataset: ds}, nil
	}
	if s.metrics != nil {
		s.metrics.RecordCacheMiss()
	}

	start := time.Now()
	ds, err := Load(path)
	if s.metrics != nil {
		s.metrics.RecordDatasetLoad(err, time.Since(start))
	}
	if err != nil {
		s.logger.Error("failed to load consolidated file", zap.String("path", path), zap.Error(err))
		return nil, err
	}

	s.cache.Put(key, ds)
	if s.metrics != nil {
		s.metrics.SetCacheEntries(s.cache.Size())
	}

	s.logger.Info("loaded consolidated file",
		zap.String("path", path),
		zap.Int64("size", info.Size()),
		zap.Int("brands", len(ds.Brands)),
		zap.Int("records", len(ds.Records)),
		zap.Duration("duration", time.Since(start)),
	)

	return &Active{Path: path, Name: filepath.Base(path), ModTime: key.ModTime, Dataset: ds}, nil
}

// Refresh clears the cache and returns how many entries were dropped.
func (s *Store) Refresh() int {
	n := s.cache.Clear()
	if s.metrics != nil {
		s.metrics.SetCacheEntries(0)
	}
	s.logger.Info("dataset cache cleared", zap.Int("cleared", n))
	return n
}

// Check reports whether a dataset is discoverable and parses.
func (s *Store) Check(ctx context.Context) error {
	_, err := s.Active(ctx)
	return err
}
