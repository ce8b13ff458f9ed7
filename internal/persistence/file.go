package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/smilemakc/mbflow/internal/domain"
)

// FileStore is a file-backed checkpoint store: one artifact per checkpoint
// id named "<sanitizedId>.checkpoint.<ext>" under Directory. List ignores
// artifacts it cannot decode, treating them as partially written.
type FileStore struct {
	Directory string
	Codec     Codec
}

// NewFileStore creates a FileStore rooted at dir using codec, creating dir
// if it does not exist.
func NewFileStore(dir string, codec Codec) (*FileStore, error) {
	if codec == nil {
		codec = JSONCodec{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: create directory: %w", err)
	}
	return &FileStore{Directory: dir, Codec: codec}, nil
}

func sanitizeID(id string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return replacer.Replace(id)
}

func (s *FileStore) path(checkpointID string) string {
	return filepath.Join(s.Directory, fmt.Sprintf("%s.checkpoint.%s", sanitizeID(checkpointID), s.Codec.Ext()))
}

// Save implements Store. The artifact is written to a temp file in the
// same directory and renamed into place so a crash mid-write never leaves
// a torn artifact where the final name would be.
func (s *FileStore) Save(_ context.Context, checkpointID string, state domain.CheckpointState) error {
	data, err := s.Codec.Encode(state)
	if err != nil {
		return fmt.Errorf("persistence: encode checkpoint: %w", err)
	}

	target := s.path(checkpointID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("persistence: write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("persistence: finalize checkpoint: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, checkpointID string) (*domain.CheckpointState, error) {
	data, err := os.ReadFile(s.path(checkpointID))
	if err != nil {
		return nil, fmt.Errorf("persistence: read checkpoint: %w", err)
	}
	state, err := s.Codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("persistence: decode checkpoint: %w", err)
	}
	return &state, nil
}

// List implements Store, ordering entries by SavedAt descending and
// silently skipping artifacts that fail to decode.
func (s *FileStore) List(_ context.Context, instanceID string) ([]CheckpointMeta, error) {
	entries, err := os.ReadDir(s.Directory)
	if err != nil {
		return nil, fmt.Errorf("persistence: read directory: %w", err)
	}

	suffix := ".checkpoint." + s.Codec.Ext()
	var metas []CheckpointMeta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.Directory, entry.Name()))
		if err != nil {
			continue
		}
		state, err := s.Codec.Decode(data)
		if err != nil {
			continue
		}
		if state.InstanceID != instanceID {
			continue
		}
		checkpointID := strings.TrimSuffix(entry.Name(), suffix)
		metas = append(metas, metaFromState(checkpointID, state, len(data)))
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].SavedAt.After(metas[j].SavedAt) })
	return metas, nil
}

// Delete implements Store. Deleting a nonexistent artifact is not an
// error.
func (s *FileStore) Delete(_ context.Context, checkpointID string) error {
	err := os.Remove(s.path(checkpointID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("persistence: delete checkpoint: %w", err)
	}
	return nil
}

// DeleteAll implements Store.
func (s *FileStore) DeleteAll(ctx context.Context, instanceID string) error {
	metas, err := s.List(ctx, instanceID)
	if err != nil {
		return err
	}
	for _, meta := range metas {
		if err := s.Delete(ctx, meta.CheckpointID); err != nil {
			return err
		}
	}
	return nil
}
