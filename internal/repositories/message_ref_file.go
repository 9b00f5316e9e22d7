package repositories

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"example.com/flightguild/bot/internal/models"

	"github.com/pkg/errors"
)

// MessageRefStore persists the location of a single long-lived message
type MessageRefStore interface {
	Load(ctx context.Context) (models.MessageRef, error)
	Save(ctx context.Context, ref models.MessageRef) error
}

// FileMessageRefStore keeps the reference in a small JSON file
type FileMessageRefStore struct {
	mu   sync.Mutex
	path string
}

// NewFileMessageRefStore creates a store backed by path
func NewFileMessageRefStore(path string) *FileMessageRefStore {
	return &FileMessageRefStore{path: path}
}

// Load returns the stored reference, or a zero reference when none was saved
func (s *FileMessageRefStore) Load(ctx context.Context) (models.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ref models.MessageRef
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return ref, nil
	}
	if err != nil {
		return ref, errors.Wrap(err, "failed to read message reference")
	}
	if err := json.Unmarshal(data, &ref); err != nil {
		return models.MessageRef{}, errors.Wrap(err, "failed to parse message reference")
	}
	return ref, nil
}

// Save overwrites the stored reference
func (s *FileMessageRefStore) Save(ctx context.Context, ref models.MessageRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(ref, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode message reference")
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write message reference")
	}
	return nil
}
