package usecase

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"storefront/internal/domain/model"
	"storefront/internal/domain/money"
	repo "storefront/internal/repository"
)

// CartUsecase は /cart の業務ロジックです。
// 変更系はすべて1トランザクション内でカート行をロックしてから行います。
type CartUsecase struct {
	tx     repo.TransactionManager
	policy money.PricingPolicy
}

func NewCartUsecase(tx repo.TransactionManager, policy money.PricingPolicy) *CartUsecase {
	return &CartUsecase{tx: tx, policy: policy}
}

// price は追加時点の単価（スナップショット）を返します。
type CartItemView struct {
	ID             int64           `json:"id"`
	ProductID      int64           `json:"product_id"`
	Name           string          `json:"name"`
	Slug           string          `json:"slug"`
	Image          string          `json:"image"`
	Price          decimal.Decimal `json:"price"`
	Quantity       int64           `json:"quantity"`
	LineTotal      decimal.Decimal `json:"line_total"`
	AvailableStock int64           `json:"available_stock"`
}

type CartView struct {
	ID        int64           `json:"id"`
	Items     []CartItemView  `json:"items"`
	ItemCount int64           `json:"item_count"`
	IsEmpty   bool            `json:"is_empty"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
	Shipping  decimal.Decimal `json:"shipping"`
	Total     decimal.Decimal `json:"total"`
}

type AddItemOutput struct {
	Item CartItemView `json:"item"`
	Cart CartView     `json:"cart"`
}

type RemoveLineOutput struct {
	Removed bool     `json:"removed"`
	Cart    CartView `json:"cart"`
}

func toCartItemView(it model.CartItem) CartItemView {
	v := CartItemView{
		ID:        it.ID,
		ProductID: it.ProductID,
		Price:     it.Price,
		Quantity:  it.Quantity,
		LineTotal: it.LineTotal(),
	}
	if it.Product != nil {
		v.Name = it.Product.Name
		v.Slug = it.Product.Slug
		v.Image = it.Product.Image
		v.AvailableStock = it.Product.Stock
	}
	return v
}

// 合計は毎回明細から計算する
func buildCartView(cart model.Cart, policy money.PricingPolicy) CartView {
	items := make([]CartItemView, 0, len(cart.Items))
	for _, it := range cart.Items {
		items = append(items, toCartItemView(it))
	}
	totals := cart.Totals(policy)
	return CartView{
		ID:        cart.ID,
		Items:     items,
		ItemCount: cart.ItemCount(),
		IsEmpty:   cart.IsEmpty(),
		Subtotal:  totals.Subtotal,
		Tax:       totals.Tax,
		Shipping:  totals.Shipping,
		Total:     totals.Total,
	}
}

// 明細を読み直して CartView を作る
func loadCartView(ctx context.Context, r repo.TxRepos, cart model.Cart, policy money.PricingPolicy) (CartView, error) {
	items, err := r.CartItems().ListByCartID(ctx, cart.ID)
	if err != nil {
		return CartView{}, NewInternal(err)
	}
	cart.Items = items
	return buildCartView(cart, policy), nil
}

// カートを（無ければ作って）行ロックする
func lockCart(ctx context.Context, r repo.TxRepos, userID int64) (model.Cart, error) {
	if _, err := r.Carts().GetOrCreateByUserID(ctx, userID); err != nil {
		return model.Cart{}, NewInternal(err)
	}
	cart, err := r.Carts().LockByUserID(ctx, userID)
	if err != nil {
		return model.Cart{}, NewInternal(err)
	}
	return cart, nil
}

func (u *CartUsecase) GetCart(ctx context.Context, userID int64) (CartView, error) {
	if userID <= 0 {
		return CartView{}, NewUnauthorized()
	}

	var out CartView
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().GetOrCreateByUserID(ctx, userID)
		if err != nil {
			return NewInternal(err)
		}
		out, err = loadCartView(ctx, r, cart, u.policy)
		return err
	})
	if err != nil {
		return CartView{}, passThrough(err)
	}
	return out, nil
}

// 同じ商品は数量を加算（単価は最初に入れた時のまま）。新しい明細は現在の実売価格で作る
func (u *CartUsecase) AddItem(ctx context.Context, userID int64, productID int64, quantity int64) (AddItemOutput, error) {
	if userID <= 0 {
		return AddItemOutput{}, NewUnauthorized()
	}
	if productID <= 0 {
		return AddItemOutput{}, NewNotFound("product")
	}
	if quantity < 1 {
		return AddItemOutput{}, fieldError("quantity", "must be at least 1")
	}

	var out AddItemOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := lockCart(ctx, r, userID)
		if err != nil {
			return err
		}

		p, err := r.Products().FindByID(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewNotFound("product")
		}
		if err != nil {
			return NewInternal(err)
		}
		if !p.IsActive {
			return NewNotFound("product")
		}
		if !p.InStock() {
			return NewOutOfStock(p.Name)
		}

		existing, found, err := r.CartItems().FindByCartAndProduct(ctx, cart.ID, productID)
		if err != nil {
			return NewInternal(err)
		}

		newQty := quantity
		if found {
			newQty += existing.Quantity
		}
		if newQty > p.Stock {
			return NewInsufficientStock(p.Name, p.Stock)
		}

		var lineID int64
		if found {
			if err := r.CartItems().UpdateQuantity(ctx, existing.ID, newQty); err != nil {
				return NewInternal(err)
			}
			lineID = existing.ID
		} else {
			created, err := r.CartItems().Create(ctx, model.CartItem{
				CartID:    cart.ID,
				ProductID: productID,
				Quantity:  newQty,
				Price:     p.EffectivePrice(),
			})
			if err != nil {
				return NewInternal(err)
			}
			lineID = created.ID
		}

		view, err := loadCartView(ctx, r, cart, u.policy)
		if err != nil {
			return err
		}
		for _, it := range view.Items {
			if it.ID == lineID {
				out.Item = it
			}
		}
		out.Cart = view
		return nil
	})
	if err != nil {
		return AddItemOutput{}, passThrough(err)
	}
	return out, nil
}

// quantity <= 0 なら明細を削除。在庫を超える数量は拒否し、元の数量のまま
func (u *CartUsecase) UpdateLineQuantity(ctx context.Context, userID int64, lineID int64, quantity int64) (CartView, error) {
	if userID <= 0 {
		return CartView{}, NewUnauthorized()
	}
	if lineID <= 0 {
		return CartView{}, NewNotFound("cart item")
	}

	var out CartView
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := lockCart(ctx, r, userID)
		if err != nil {
			return err
		}

		item, err := r.CartItems().FindInCart(ctx, cart.ID, lineID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewNotFound("cart item")
		}
		if err != nil {
			return NewInternal(err)
		}

		if quantity <= 0 {
			if _, err := r.CartItems().DeleteInCart(ctx, cart.ID, lineID); err != nil {
				return NewInternal(err)
			}
		} else {
			p, err := r.Products().FindByID(ctx, item.ProductID)
			if errors.Is(err, repo.ErrNotFound) {
				return NewOutOfStock("this product")
			}
			if err != nil {
				return NewInternal(err)
			}
			if !p.IsActive {
				return NewNotFound("product")
			}
			if quantity > p.Stock {
				return NewInsufficientStock(p.Name, p.Stock)
			}
			if err := r.CartItems().UpdateQuantity(ctx, lineID, quantity); err != nil {
				return NewInternal(err)
			}
		}

		out, err = loadCartView(ctx, r, cart, u.policy)
		return err
	})
	if err != nil {
		return CartView{}, passThrough(err)
	}
	return out, nil
}

// 何度呼んでもよい。消えたかどうかを返す
func (u *CartUsecase) RemoveLine(ctx context.Context, userID int64, lineID int64) (RemoveLineOutput, error) {
	if userID <= 0 {
		return RemoveLineOutput{}, NewUnauthorized()
	}

	var out RemoveLineOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := lockCart(ctx, r, userID)
		if err != nil {
			return err
		}

		removed, err := r.CartItems().DeleteInCart(ctx, cart.ID, lineID)
		if err != nil {
			return NewInternal(err)
		}

		view, err := loadCartView(ctx, r, cart, u.policy)
		if err != nil {
			return err
		}
		out = RemoveLineOutput{Removed: removed, Cart: view}
		return nil
	})
	if err != nil {
		return RemoveLineOutput{}, passThrough(err)
	}
	return out, nil
}

func (u *CartUsecase) Clear(ctx context.Context, userID int64) (CartView, error) {
	if userID <= 0 {
		return CartView{}, NewUnauthorized()
	}

	var out CartView
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := lockCart(ctx, r, userID)
		if err != nil {
			return err
		}
		if err := r.Carts().Clear(ctx, cart.ID); err != nil {
			return NewInternal(err)
		}
		out, err = loadCartView(ctx, r, cart, u.policy)
		return err
	})
	if err != nil {
		return CartView{}, passThrough(err)
	}
	return out, nil
}
