package pass

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
)

var ErrUnavailable = errors.New("pass command unavailable")

const missingEntryMarker = "is not in the password store"

type runFunc func(ctx context.Context, input string, args ...string) (stdout string, stderr string, err error)

// Store keeps credentials as single-line entries of the user's password store.
type Store struct {
	run runFunc
}

var _ ports.CredentialStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{run: runPass}
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value = strings.TrimSpace(value)
	if value == "" || strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("pass put %q: credential must be a single non-empty line", key)
	}

	_, stderr, err := s.run(ctx, value+"\n", "insert", "--echo", "--force", key)
	if err != nil {
		return commandError("put", key, err, stderr)
	}
	return nil
}

// Get returns the first line of the entry.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	stdout, stderr, err := s.run(ctx, "", "show", key)
	if err != nil {
		return "", commandError("get", key, err, stderr)
	}

	line, _, _ := strings.Cut(stdout, "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("pass get %q: %w", key, domain.ErrCredentialNotFound)
	}
	return line, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, stderr, err := s.run(ctx, "", "rm", "--force", key)
	if err != nil {
		err = commandError("delete", key, err, stderr)
		if errors.Is(err, domain.ErrCredentialNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func runPass(ctx context.Context, input string, args ...string) (string, string, error) {
	path, err := exec.LookPath("pass")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", "", ErrUnavailable
		}
		return "", "", fmt.Errorf("locate pass command: %w", err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	return stdout.String(), strings.TrimSpace(stderr.String()), err
}

func commandError(op string, key string, err error, stderr string) error {
	if strings.Contains(stderr, missingEntryMarker) {
		return fmt.Errorf("pass %s %q: %w", op, key, domain.ErrCredentialNotFound)
	}
	if stderr == "" {
		return fmt.Errorf("pass %s %q: %w", op, key, err)
	}
	return fmt.Errorf("pass %s %q: %w: %s", op, key, err, stderr)
}
