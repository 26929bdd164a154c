package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type CartRepository interface {
	// 無ければ作る（user_id 一意）。Items は読まない
	GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error)
	// SELECT ... FOR UPDATE。無ければ ErrNotFound
	LockByUserID(ctx context.Context, userID int64) (model.Cart, error)
	Clear(ctx context.Context, cartID int64) error
}

type CartItemRepository interface {
	// Product も一緒に読む
	ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error)
	FindByCartAndProduct(ctx context.Context, cartID int64, productID int64) (model.CartItem, bool, error)
	// 他人のカートの明細は ErrNotFound
	FindInCart(ctx context.Context, cartID int64, cartItemID int64) (model.CartItem, error)
	Create(ctx context.Context, item model.CartItem) (model.CartItem, error)
	UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error
	// 消えたら true
	DeleteInCart(ctx context.Context, cartID int64, cartItemID int64) (bool, error)
}
