package server

import (
	"context"

	"github.com/homecanvas/homecanvas/design"
	"github.com/homecanvas/homecanvas/store"
)

// StoreTokenResolver resolves access tokens through the persistence layer's
// token table.
type StoreTokenResolver struct {
	Store store.Store
}

func (r StoreTokenResolver) Resolve(ctx context.Context, token string) (*design.User, error) {
	return r.Store.GetUserByToken(ctx, token)
}
