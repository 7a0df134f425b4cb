package accounts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/server/models"
	"github.com/google/uuid"
)

// InMemoryRepository keeps accounts in process memory. It backs the
// "memory" database mode and tests.
type InMemoryRepository struct {
	mu         sync.RWMutex
	byUsername map[string]models.Account
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{byUsername: make(map[string]models.Account)}
}

func (r *InMemoryRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUsername[account.UserName]; ok {
		return nil, ErrAlreadyExists
	}
	account.ID = uuid.NewString()
	account.CreatedAt = time.Now().UTC()
	r.byUsername[account.UserName] = *account
	return account, nil
}

func (r *InMemoryRepository) GetByUsername(ctx context.Context, userName string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byUsername[userName]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &a, nil
}

func (r *InMemoryRepository) List(ctx context.Context) ([]*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Account, 0, len(r.byUsername))
	for _, a := range r.byUsername {
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserName < out[j].UserName })
	return out, nil
}
