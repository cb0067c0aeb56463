package resource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"
)

const defaultCheckoutName = "init"

// Cloner fetches a repository into dir.
type Cloner interface {
	Clone(ctx context.Context, url, dir string) error
}

// GitCloner clones with go-git; no git binary is needed for remote URLs.
type GitCloner struct{}

func (GitCloner) Clone(ctx context.Context, url, dir string) error {
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: url})
	return err
}

// Initializer seeds the data directory from a repository before any resource
// is acquired, so file references can point into the checkout.
type Initializer struct {
	from    string
	dataDir string
	cloner  Cloner
	logger  *zap.Logger
}

func NewInitializer(from, dataDir string, cloner Cloner, logger *zap.Logger) *Initializer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cloner == nil {
		cloner = GitCloner{}
	}
	return &Initializer{
		from:    strings.TrimSpace(from),
		dataDir: dataDir,
		cloner:  cloner,
		logger:  logger.Named("initializer"),
	}
}

// Init returns the checkout path, or "" when no repository is configured.
// An existing checkout is reused.
func (i *Initializer) Init(ctx context.Context) (string, error) {
	if i.from == "" {
		return "", nil
	}
	if err := os.MkdirAll(i.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure data dir: %w", err)
	}
	target := filepath.Join(i.dataDir, CheckoutName(i.from))
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		i.logger.Info("reusing existing checkout", zap.String("path", target))
		return target, nil
	}
	if err := i.cloner.Clone(ctx, i.from, target); err != nil {
		return "", fmt.Errorf("clone %s: %w", i.from, err)
	}
	i.logger.Info("repository cloned", zap.String("url", i.from), zap.String("path", target))
	return target, nil
}

// CheckoutName derives the directory name of a repository URL:
// git@host:org/recipes.git and https://host/org/recipes both give "recipes".
func CheckoutName(url string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(url), "/")
	if idx := strings.LastIndexAny(trimmed, "/:"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(trimmed, ".git")
	if trimmed == "" || trimmed == "." || trimmed == ".." {
		return defaultCheckoutName
	}
	return trimmed
}
