package main

import (
	"context"
	"sync"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
	"github.com/MimeLyc/yaml-translator/internal/cache"
	"github.com/MimeLyc/yaml-translator/internal/config"
	"github.com/MimeLyc/yaml-translator/internal/jobs"
	"github.com/MimeLyc/yaml-translator/internal/keyset"
	"github.com/MimeLyc/yaml-translator/internal/persistence"
	"github.com/MimeLyc/yaml-translator/pkg/log"
)

// storage bundles the cache medium and the job store. Both are nil-safe to
// close.
type storage struct {
	medium cache.Medium
	jobs   jobs.Store
	db     *persistence.SQLiteStore
}

func openStorage(cfg *config.Config) (*storage, error) {
	if cfg.Storage.Ephemeral {
		log.Warn("EPHEMERAL is set: progress and delivery jobs are kept in memory only")
		return &storage{medium: cache.NewMemoryMedium()}, nil
	}
	db, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, apperr.NewWithCause(apperr.ErrConfig, "open database", err).WithContext("path", cfg.DBPath())
	}
	return &storage{medium: db, jobs: db, db: db}, nil
}

func (s *storage) Close() {
	if s == nil || s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		log.Error("Failed to close database: %v", err)
	}
}

// remoteSource is the published language repository. Its base URL can be
// changed while the server runs.
type remoteSource struct {
	mu     sync.RWMutex
	loader *keyset.HTTPLoader
}

func newRemoteSource(baseURL string) *remoteSource {
	return &remoteSource{loader: keyset.NewHTTPLoader(baseURL)}
}

func (r *remoteSource) SetBaseURL(baseURL string) {
	r.mu.Lock()
	r.loader = keyset.NewHTTPLoader(baseURL)
	r.mu.Unlock()
}

func (r *remoteSource) current() *keyset.HTTPLoader {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loader
}

func (r *remoteSource) Load(ctx context.Context, languageCode string) (keyset.Mapping, error) {
	return r.current().Load(ctx, languageCode)
}

func (r *remoteSource) Fetch(ctx context.Context, languageCode string) ([]byte, error) {
	return r.current().Fetch(ctx, languageCode)
}

// newSourceLoader prefers the refreshed local mirror and falls back to the
// remote repository for languages it does not have.
func newSourceLoader(cfg *config.Config, remote *remoteSource) keyset.Loader {
	return keyset.NewFallbackLoader(keyset.NewDirLoader(cfg.Source.LangsDir), remote)
}
