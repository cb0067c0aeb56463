package resource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"capd/internal/domain"
)

// DataStore fetches named payloads from the registry data store.
type DataStore interface {
	DataStoreGet(ctx context.Context, name string) ([]byte, error)
}

// Fetcher resolves a reference to a path on the local disk.
type Fetcher interface {
	Fetch(ctx context.Context, ref domain.ResourceReference) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, ref domain.ResourceReference) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, ref domain.ResourceReference) (string, error) {
	return f(ctx, ref)
}

// Store dispatches references to the downloader of their scheme.
type Store struct {
	dataDir   string
	dataStore DataStore
	logger    *zap.Logger
}

func NewStore(dataDir string, dataStore DataStore, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		dataDir:   dataDir,
		dataStore: dataStore,
		logger:    logger.Named("resource_store"),
	}
}

func (s *Store) Fetch(ctx context.Context, ref domain.ResourceReference) (string, error) {
	switch ref.Scheme {
	case domain.SchemeFile, "":
		return s.fetchFile(ref)
	case domain.SchemeDatastore:
		return s.fetchDatastore(ctx, ref)
	default:
		return "", fmt.Errorf("fetch %s: %w", ref, domain.ErrUnsupportedScheme)
	}
}

func (s *Store) fetchFile(ref domain.ResourceReference) (string, error) {
	path := ref.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dataDir, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	s.logger.Debug("resource available on disk", zap.String("kind", string(ref.Kind)), zap.String("path", path))
	return path, nil
}

func (s *Store) fetchDatastore(ctx context.Context, ref domain.ResourceReference) (string, error) {
	if s.dataStore == nil {
		return "", fmt.Errorf("fetch %s: data store client not configured", ref)
	}
	name := strings.TrimLeft(ref.Path, "/")
	payload, err := s.dataStore.DataStoreGet(ctx, name)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", ref, err)
	}

	target, err := writeAtomic(s.dataDir, name, payload, 0o644)
	if err != nil {
		return "", err
	}

	s.logger.Info("resource downloaded from data store",
		zap.String("kind", string(ref.Kind)),
		zap.String("name", name),
		zap.String("path", target),
		zap.Int("bytes", len(payload)),
	)
	return target, nil
}

// writeAtomic writes payload to dir/base(name) through a temp file and rename.
func writeAtomic(dir, name string, payload []byte, perm os.FileMode) (string, error) {
	target := filepath.Join(dir, filepath.Base(name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure data dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", target, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("chmod %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close %s: %w", target, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("rename %s: %w", target, err)
	}
	return target, nil
}
