package accounts

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRepository(t *testing.T) {
	ctx := context.Background()
	r := NewInMemoryRepository()

	a, err := r.Create(ctx, &models.Account{UserName: "bob", Role: "staff", Salt: []byte("s"), Verifier: []byte("v")})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)

	_, err = r.Create(ctx, &models.Account{UserName: "bob"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = r.Create(ctx, &models.Account{UserName: "alice", Role: "admin"})
	require.NoError(t, err)

	got, err := r.GetByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, []byte("v"), got.Verifier)

	_, err = r.GetByUsername(ctx, "carol")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].UserName)
}
