package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	PathKey = "journal.path"
	KeepKey = "journal.keep"

	DefaultKeep     = 20
	journalFileMode = 0o600
	journalDirMode  = 0o700
	tempFilePattern = ".runs-*.toml.tmp"
)

// Journal keeps the most recent resolver runs in a TOML file.
type Journal struct {
	path string
	keep int
	mu   *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.RunJournal = (*Journal)(nil)

func NewJournal(cfg *viper.Viper) (*Journal, error) {
	if cfg == nil {
		return nil, errors.New("journal config is nil")
	}

	path := cfg.GetString(PathKey)
	if path == "" {
		return nil, errors.New("journal path is empty")
	}
	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}

	keep := DefaultKeep
	if cfg.IsSet(KeepKey) {
		keep = cfg.GetInt(KeepKey)
	}
	if keep <= 0 {
		return nil, fmt.Errorf("journal keep must be positive, got %d", keep)
	}

	return &Journal{path: path, keep: keep, mu: lockForPath(path)}, nil
}

func (j *Journal) Append(ctx context.Context, run domain.RunSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := j.read()
	if err != nil {
		return err
	}

	file.Runs = append(file.Runs, toSchema(run))
	if overflow := len(file.Runs) - j.keep; overflow > 0 {
		file.Runs = file.Runs[overflow:]
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return j.write(file)
}

// Recent returns up to limit runs, newest first. A non-positive limit
// returns every kept run.
func (j *Journal) Recent(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	file, err := j.read()
	if err != nil {
		return nil, err
	}

	runs := make([]domain.RunSummary, 0, len(file.Runs))
	for i := len(file.Runs) - 1; i >= 0; i-- {
		runs = append(runs, fromSchema(file.Runs[i]))
		if limit > 0 && len(runs) == limit {
			break
		}
	}
	return runs, nil
}

func (j *Journal) read() (journalSchema, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			file := journalSchema{}
			file.applyDefaults()
			return file, nil
		}
		return journalSchema{}, fmt.Errorf("read run journal: %w", err)
	}

	var file journalSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return journalSchema{}, fmt.Errorf("decode run journal: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return journalSchema{}, err
	}
	file.applyDefaults()
	return file, nil
}

func (j *Journal) write(file journalSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(j.path), journalDirMode); err != nil {
		return fmt.Errorf("create run journal directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode run journal: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(j.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp run journal: %w", err)
	}
	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp run journal: %w", err)
	}
	if err := tempFile.Chmod(journalFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp run journal: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp run journal: %w", err)
	}
	if err := os.Rename(tempName, j.path); err != nil {
		return fmt.Errorf("replace run journal: %w", err)
	}
	cleanup = false
	return nil
}

func normalizePath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve journal path: %w", err)
	}
	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}
	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}
