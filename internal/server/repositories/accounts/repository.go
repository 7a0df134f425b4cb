// Package accounts stores staff logins.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/shopkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByUsername(ctx context.Context, userName string) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
}
