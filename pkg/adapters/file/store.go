package file

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/threadgraph/pkg/codec"
	"github.com/aretw0/threadgraph/pkg/domain"
)

// Store implements ports.CheckpointStore using the local filesystem.
// Each checkpoint is one file under BasePath/<namespace>/.
//
// Compare-and-swap is enforced with an in-process mutex, so a directory must not be
// shared by several processes writing the same thread.
type Store struct {
	BasePath string

	codec codec.Codec
	mu    sync.Mutex
}

type Option func(*Store)

// partialExt marks files that are still being written.
const partialExt = ".partial"

// WithCodec sets the payload codec (JSON by default).
func WithCodec(c codec.Codec) Option {
	return func(s *Store) {
		s.codec = c
	}
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".threadgraph/checkpoints".
func New(basePath string, opts ...Option) *Store {
	if basePath == "" {
		basePath = filepath.Join(".threadgraph", "checkpoints")
	}
	s := &Store{BasePath: basePath, codec: codec.JSON{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) ext() string {
	if _, ok := s.codec.(codec.JSON); ok {
		return ".json"
	}
	return ".ckpt"
}

func (s *Store) dir(namespace string) string {
	return filepath.Join(s.BasePath, url.PathEscape(namespace))
}

func (s *Store) path(key domain.CheckpointKey) string {
	return filepath.Join(s.dir(key.Namespace), url.PathEscape(key.ThreadID)+s.ext())
}

// Get retrieves the checkpoint from disk.
func (s *Store) Get(ctx context.Context, key domain.CheckpointKey) (*domain.Checkpoint, error) {
	return s.read(key)
}

func (s *Store) read(key domain.CheckpointKey) (*domain.Checkpoint, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var cp domain.Checkpoint
	if err := s.codec.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	cp.Messages = domain.CloneMessages(cp.Messages)
	return &cp, nil
}

// Put writes the checkpoint atomically if the stored version still equals expectedVersion.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) Put(ctx context.Context, key domain.CheckpointKey, messages []domain.Message, expectedVersion int64) (*domain.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	existing, err := s.read(key)
	switch {
	case errors.Is(err, domain.ErrCheckpointNotFound):
	case err != nil:
		return nil, err
	default:
		current = existing.Version
	}
	if current != expectedVersion {
		return nil, fmt.Errorf("expected version %d, found %d: %w", expectedVersion, current, domain.ErrVersionConflict)
	}

	cp := &domain.Checkpoint{
		ThreadID:  key.ThreadID,
		Namespace: key.Namespace,
		Messages:  domain.CloneMessages(messages),
		Version:   current + 1,
		UpdatedAt: time.Now().UTC(),
	}
	data, err := s.codec.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	dir := s.dir(key.Namespace)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure checkpoint directory: %w", err)
	}

	// Same directory keeps the rename on one filesystem. The suffix never matches
	// a checkpoint extension, so List skips half-written files.
	tmpFile, err := os.CreateTemp(dir, "*"+partialExt)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return nil, fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return cp, nil
}

// Delete removes the checkpoint file.
func (s *Store) Delete(ctx context.Context, key domain.CheckpointKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint file: %w", err)
	}
	return nil
}

// List returns the threads checkpointed in namespace, sorted.
func (s *Store) List(ctx context.Context, namespace string) ([]string, error) {
	entries, err := os.ReadDir(s.dir(namespace))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	threads := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != s.ext() {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, s.ext()))
		if err != nil {
			continue
		}
		threads = append(threads, id)
	}
	sort.Strings(threads)
	return threads, nil
}
