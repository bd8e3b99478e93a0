package device

import (
	"context"
	"sync"
)

// MemoryRepo holds credentials in memory, for tests.

type MemoryRepo struct {
	mu    sync.Mutex
	creds *Credentials
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Load(ctx context.Context) (Credentials, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.creds == nil {
		return Credentials{}, false, nil
	}
	return *r.creds, true, nil
}

func (r *MemoryRepo) Save(ctx context.Context, c Credentials) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds = &c
	return nil
}
