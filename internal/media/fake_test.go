package media

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failing map[string]bool
	removed []string
	signed  int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}, types: map[string]string{}, failing: map[string]bool{}}
}

func (f *fakeStorage) Put(_ context.Context, id string, r io.Reader, _ int64, contentType string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[id] = b
	f.types[id] = contentType
	return nil
}

func (f *fakeStorage) PresignedURL(_ context.Context, id string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[id] {
		return "", errors.New("storage timeout")
	}
	if _, ok := f.objects[id]; !ok {
		return "", ErrObjectNotFound
	}
	f.signed++
	return "https://cdn.test/" + id + "?sig=1", nil
}

func (f *fakeStorage) Remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[id] {
		return errors.New("storage timeout")
	}
	f.removed = append(f.removed, id)
	delete(f.objects, id)
	return nil
}
