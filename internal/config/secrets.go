package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// SecretProvider resolves secret references to plaintext values. It returns
// a map of reference -> value for every reference it could resolve.
type SecretProvider interface {
	GetSecrets(ctx context.Context, refs []string) (map[string]string, error)
}

// FileSecretProvider treats each reference as a file path, the layout used by
// Docker and Kubernetes mounted secrets. Missing files are omitted from the
// result; other read errors fail the whole call. Trailing newlines are
// trimmed.
type FileSecretProvider struct{}

// GetSecrets implements SecretProvider.
func (FileSecretProvider) GetSecrets(ctx context.Context, refs []string) (map[string]string, error) {
	result := make(map[string]string, len(refs))
	for _, path := range refs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("secret resolution cancelled: %w", err)
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading secret file %s: %w", path, err)
		}
		result[path] = strings.TrimRight(string(data), "\r\n")
	}
	return result, nil
}
