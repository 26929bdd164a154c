package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/domain/money"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	repo "storefront/internal/repository"
	"storefront/internal/validator"
)

const (
	DefaultOrderNumberPrefix = "ORD"
	DefaultOrderNumberTries  = 10
	orderNumberRandomLength  = 5
	maxIdempotencyKeyLength  = 255
)

// 注文番号の採番設定
type CheckoutConfig struct {
	OrderNumberPrefix string
	MaxAttempts       int
}

type CheckoutUsecase struct {
	tx      repo.TransactionManager
	policy  money.PricingPolicy
	cfg     CheckoutConfig
	idGen   IDGenerator
	clock   Clock
	log     *logger.Logger
	metrics *metrics.ShopMetrics
}

func NewCheckoutUsecase(
	tx repo.TransactionManager,
	policy money.PricingPolicy,
	cfg CheckoutConfig,
	idGen IDGenerator,
	clock Clock,
	log *logger.Logger,
	m *metrics.ShopMetrics,
) *CheckoutUsecase {
	if cfg.OrderNumberPrefix == "" {
		cfg.OrderNumberPrefix = DefaultOrderNumberPrefix
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultOrderNumberTries
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CheckoutUsecase{
		tx:      tx,
		policy:  policy,
		cfg:     cfg,
		idGen:   idGen,
		clock:   clock,
		log:     log,
		metrics: m,
	}
}

// 配送先と連絡先。注文にそのままコピーされる（JSON / フォーム両対応）
type ShippingDetails struct {
	Name          string `json:"shipping_name" form:"shipping_name" validate:"required,max=255"`
	Email         string `json:"shipping_email" form:"shipping_email" validate:"required,email,max=255"`
	Phone         string `json:"shipping_phone" form:"shipping_phone" validate:"required,max=20"`
	Address       string `json:"shipping_address" form:"shipping_address" validate:"required,max=500"`
	City          string `json:"shipping_city" form:"shipping_city" validate:"required,max=100"`
	PostalCode    string `json:"shipping_postal_code" form:"shipping_postal_code" validate:"required,max=10"`
	CustomerNotes string `json:"customer_notes" form:"customer_notes" validate:"max=1000"`
}

func (s ShippingDetails) trimmed() ShippingDetails {
	return ShippingDetails{
		Name:          strings.TrimSpace(s.Name),
		Email:         strings.TrimSpace(s.Email),
		Phone:         strings.TrimSpace(s.Phone),
		Address:       strings.TrimSpace(s.Address),
		City:          strings.TrimSpace(s.City),
		PostalCode:    strings.TrimSpace(s.PostalCode),
		CustomerNotes: strings.TrimSpace(s.CustomerNotes),
	}
}

type CheckoutInput struct {
	Shipping       ShippingDetails
	IdempotencyKey string
}

// 確認画面用。空カートなら EMPTY_CART
func (u *CheckoutUsecase) Preview(ctx context.Context, userID int64) (CartView, error) {
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
		if err != nil {
			return err
		}
		if out.IsEmpty {
			return NewEmptyCart()
		}
		return nil
	})
	if err != nil {
		return CartView{}, passThrough(err)
	}
	return out, nil
}

// Checkout はカートを注文に変える。途中で失敗したら何も残さない
func (u *CheckoutUsecase) Checkout(ctx context.Context, userID int64, in CheckoutInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewUnauthorized()
	}
	ship := in.Shipping.trimmed()
	if fields := validator.Struct(ship); fields != nil {
		u.metrics.IncCheckout("validation_error")
		return OrderOutput{}, NewValidationError("invalid shipping details", fields)
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLength {
		u.metrics.IncCheckout("validation_error")
		return OrderOutput{}, fieldError("idempotency_key", fmt.Sprintf("must be at most %d characters", maxIdempotencyKeyLength))
	}

	ctx = u.log.WithUserID(ctx, userID)

	var out OrderOutput
	replayed := false
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 同じキーなら同じ結果
		if key != "" {
			existing, found, err := r.Orders().FindByIdempotencyKey(ctx, userID, key)
			if err != nil {
				return NewInternal(err)
			}
			if found {
				items, err := r.OrderItems().ListByOrderID(ctx, existing.ID)
				if err != nil {
					return NewInternal(err)
				}
				out = toCustomerOrderOutput(existing, items)
				replayed = true
				return nil
			}
		}

		cart, err := r.Carts().LockByUserID(ctx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewEmptyCart()
		}
		if err != nil {
			return NewInternal(err)
		}
		lines, err := r.CartItems().ListByCartID(ctx, cart.ID)
		if err != nil {
			return NewInternal(err)
		}
		if len(lines) == 0 {
			return NewEmptyCart()
		}
		cart.Items = lines

		products, err := lockProducts(ctx, r, lines)
		if err != nil {
			return err
		}

		orderItems := make([]model.OrderItem, 0, len(lines))
		for _, ci := range lines {
			p, ok := products[ci.ProductID]
			if !ok || !p.IsActive {
				return NewOutOfStock(productLabel(ci))
			}
			if ci.Quantity > p.Stock {
				return NewInsufficientStock(p.Name, p.Stock)
			}
			orderItems = append(orderItems, model.OrderItem{
				ProductID:   p.ID,
				ProductName: p.Name,
				ProductSKU:  p.SKU,
				Price:       ci.Price,
				Quantity:    ci.Quantity,
				Subtotal:    ci.LineTotal(),
			})
		}

		totals := cart.Totals(u.policy)
		now := u.clock.Now()

		number, err := u.allocateOrderNumber(ctx, r)
		if err != nil {
			return err
		}

		var idemKey *string
		if key != "" {
			idemKey = &key
		}
		orderID, err := r.Orders().Create(ctx, model.Order{
			OrderNumber:        number,
			UserID:             userID,
			Status:             model.OrderStatusPending,
			PaymentStatus:      model.PaymentStatusUnpaid,
			Subtotal:           totals.Subtotal,
			Tax:                totals.Tax,
			ShippingFee:        totals.Shipping,
			Total:              totals.Total,
			ShippingName:       ship.Name,
			ShippingEmail:      ship.Email,
			ShippingPhone:      ship.Phone,
			ShippingAddress:    ship.Address,
			ShippingCity:       ship.City,
			ShippingPostalCode: ship.PostalCode,
			CustomerNotes:      ship.CustomerNotes,
			IdempotencyKey:     idemKey,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
		if errors.Is(err, repo.ErrDuplicate) {
			return NewConflict("order already exists")
		}
		if err != nil {
			return NewInternal(err)
		}

		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return NewInternal(err)
		}

		// 条件付き減算。ロック済みでも 0 行なら在庫不足として全体を戻す
		for _, it := range orderItems {
			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, it.ProductID, it.Quantity)
			if err != nil {
				return NewInternal(err)
			}
			if !ok {
				return NewInsufficientStock(it.ProductName, products[it.ProductID].Stock)
			}
			if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
				ProductID:   it.ProductID,
				ActorUserID: userID,
				Delta:       -it.Quantity,
				Reason:      "order:" + number,
				CreatedAt:   now,
			}); err != nil {
				return NewInternal(err)
			}
		}

		if err := r.Carts().Clear(ctx, cart.ID); err != nil {
			return NewInternal(err)
		}

		created, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return NewInternal(err)
		}
		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewInternal(err)
		}
		out = toCustomerOrderOutput(created, items)
		return nil
	})
	if err != nil {
		err = passThrough(err)
		u.metrics.IncCheckout(checkoutOutcome(err))
		if he, ok := AsHTTPError(err); ok && he.Status >= 500 {
			u.log.Error(ctx, "checkout.failed", err)
		}
		return OrderOutput{}, err
	}

	if replayed {
		u.metrics.IncCheckout("replayed")
		u.log.Info(u.log.WithField(ctx, "order_number", out.OrderNumber), "checkout.replayed")
		return out, nil
	}

	u.metrics.IncCheckout("success")
	u.log.Info(u.log.WithFields(ctx, map[string]any{
		"order_number": out.OrderNumber,
		"order_id":     out.ID,
		"total":        out.Total.StringFixed(money.Scale),
		"lines":        len(out.Items),
	}), "checkout.completed")
	return out, nil
}

// 商品行を id 昇順でロック
func lockProducts(ctx context.Context, r repo.TxRepos, lines []model.CartItem) (map[int64]model.Product, error) {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, ci := range lines {
		if _, ok := seen[ci.ProductID]; ok {
			continue
		}
		seen[ci.ProductID] = struct{}{}
		ids = append(ids, ci.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	locked, err := r.Products().LockByIDs(ctx, ids)
	if err != nil {
		return nil, NewInternal(err)
	}
	byID := make(map[int64]model.Product, len(locked))
	for _, p := range locked {
		byID[p.ID] = p
	}
	return byID, nil
}

func productLabel(ci model.CartItem) string {
	if ci.Product != nil && ci.Product.Name != "" {
		return ci.Product.Name
	}
	return "this product"
}

// ORD-YYYYMMDD-XXXXX。衝突したら作り直す
func (u *CheckoutUsecase) allocateOrderNumber(ctx context.Context, r repo.TxRepos) (string, error) {
	date := u.clock.Now().UTC().Format("20060102")
	for attempt := 1; attempt <= u.cfg.MaxAttempts; attempt++ {
		candidate := fmt.Sprintf("%s-%s-%s", u.cfg.OrderNumberPrefix, date, randomCode(u.idGen, orderNumberRandomLength))
		exists, err := r.Orders().OrderNumberExists(ctx, candidate)
		if err != nil {
			return "", NewInternal(err)
		}
		if !exists {
			return candidate, nil
		}
		u.log.Warn(u.log.WithFields(ctx, map[string]any{
			"order_number": candidate,
			"attempt":      attempt,
		}), "checkout.order_number_collision")
	}

	err := NewOrderNumberCollision(u.cfg.MaxAttempts)
	u.log.Error(u.log.WithField(ctx, "attempts", u.cfg.MaxAttempts), "checkout.order_number_exhausted", err)
	return "", err
}

func checkoutOutcome(err error) string {
	he, ok := AsHTTPError(err)
	if !ok {
		return "error"
	}
	return strings.ToLower(string(he.Code))
}
