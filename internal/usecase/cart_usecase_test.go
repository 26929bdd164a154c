package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain/model"
)

func TestCartUsecase_GetCartCreatesEmptyCart(t *testing.T) {
	f := newShopFixture(t, uuidGen{})

	cart, err := f.cart.GetCart(context.Background(), 1)
	require.NoError(t, err)
	assert.NotZero(t, cart.ID)
	assert.True(t, cart.IsEmpty)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.Total.IsZero())
	assert.True(t, cart.Shipping.IsZero())
}

func TestCartUsecase_AddItemAccumulatesAndKeepsPrice(t *testing.T) {
	f := newShopFixture(t, uuidGen{})
	ctx := context.Background()
	mug := f.seedProduct(t, "Mug", "10.00", 10)

	first, err := f.cart.AddItem(ctx, 1, mug.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "10.00", first.Item.Price.StringFixed(2))
	assert.Equal(t, "Mug", first.Item.Name)

	// 値上げ後に追加しても明細の単価は変わらない
	require.NoError(t, f.conn.Model(&model.Product{}).Where("id = ?", mug.ID).Update("price", dec("12.00")).Error)

	for i := 0; i < 2; i++ {
		_, err = f.cart.AddItem(ctx, 1, mug.ID, 1)
		require.NoError(t, err)
	}

	cart, err := f.cart.GetCart(ctx, 1)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, first.Item.ID, cart.Items[0].ID)
	assert.Equal(t, int64(3), cart.Items[0].Quantity)
	assert.Equal(t, "10.00", cart.Items[0].Price.StringFixed(2))
	assert.Equal(t, "30.00", cart.Subtotal.StringFixed(2))
	assert.Equal(t, int64(3), cart.ItemCount)
}

func TestCartUsecase_AddItemUsesSalePrice(t *testing.T) {
	f := newShopFixture(t, uuidGen{})
	ctx := context.Background()
	mug := f.seedProduct(t, "Mug", "10.00", 10)
	require.NoError(t, f.conn.Model(&model.Product{}).Where("id = ?", mug.ID).Update("sale_price", dec("7.50")).Error)

	out, err := f.cart.AddItem(ctx, 1, mug.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "7.50", out.Item.Price.StringFixed(2))
	assert.Equal(t, "15.00", out.Item.LineTotal.StringFixed(2))
}

func TestCartUsecase_AddItemErrors(t *testing.T) {
	f := newShopFixture(t, uuidGen{})
	ctx := context.Background()
	mug := f.seedProduct(t, "Mug", "10.00", 2)
	empty := f.seedProduct(t, "Empty Box", "3.00", 0)
	hidden := f.seedProduct(t, "Hidden", "3.00", 5)
	require.NoError(t, f.conn.Model(&model.Product{}).Where("id = ?", hidden.ID).Update("is_active", false).Error)

	_, err := f.cart.AddItem(ctx, 1, 9999, 1)
	assert.True(t, IsCode(err, CodeNotFound))

	_, err = f.cart.AddItem(ctx, 1, hidden.ID, 1)
	assert.True(t, IsCode(err, CodeNotFound))

	_, err = f.cart.AddItem(ctx, 1, empty.ID, 1)
	assert.True(t, IsCode(err, CodeOutOfStock))

	_, err = f.cart.AddItem(ctx, 1, mug.ID, 0)
	assert.True(t, IsCode(err, CodeValidation))

	_, err = f.cart.AddItem(ctx, 1, mug.ID, 2)
	require.NoError(t, err)
	_, err = f.cart.AddItem(ctx, 1, mug.ID, 1)
	assert.True(t, IsCode(err, CodeInsufficientStock))

	cart, err := f.cart.GetCart(ctx, 1)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64(2), cart.Items[0].Quantity)
}

func TestCartUsecase_UpdateLineQuantity(t *testing.T) {
	f := newShopFixture(t, uuidGen{})
	ctx := context.Background()
	mug := f.seedProduct(t, "Mug", "10.00", 5)

	added, err := f.cart.AddItem(ctx, 1, mug.ID, 2)
	require.NoError(t, err)
	lineID := added.Item.ID

	cart, err := f.cart.UpdateLineQuantity(ctx, 1, lineID, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), cart.Items[0].Quantity)

	// 在庫超過は拒否され、数量はそのまま
	_, err = f.cart.UpdateLineQuantity(ctx, 1, lineID, 6)
	assert.True(t, IsCode(err, CodeInsufficientStock))
	cart, err = f.cart.GetCart(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), cart.Items[0].Quantity)

	// 他人の明細は見えない
	_, err = f.cart.UpdateLineQuantity(ctx, 2, lineID, 1)
	assert.True(t, IsCode(err, CodeNotFound))

	cart, err = f.cart.UpdateLineQuantity(ctx, 1, lineID, 0)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty)
}

func TestCartUsecase_UpdateLineQuantityRejectsInactiveProduct(t *testing.T) {
	f := newShopFixture(t, uuidGen{})
	ctx := context.Background()
	lamp := f.seedProduct(t, "Lamp", "40.00", 5)

	added, err := f.cart.AddItem(ctx, 1, lamp.ID, 1)
	require.NoError(t, err)
	require.NoError(t, f.conn.Model(&model.Product{}).Where("id = ?", lamp.ID).Update("is_active", false).Error)

	_, err = f.cart.UpdateLineQuantity(ctx, 1, added.Item.ID, 3)
	assert.True(t, IsCode(err, CodeNotFound), "unexpected error: %v", err)

	var line model.CartItem
	require.NoError(t, f.conn.First(&line, added.Item.ID).Error)
	assert.Equal(t, int64(1), line.Quantity)

	// 削除は非公開でも可能
	cart, err := f.cart.UpdateLineQuantity(ctx, 1, added.Item.ID, 0)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty)
}

func TestCartUsecase_RemoveLineIsIdempotent(t *testing.T) {
	f := newShopFixture(t, uuidGen{})
	ctx := context.Background()
	mug := f.seedProduct(t, "Mug", "10.00", 5)

	added, err := f.cart.AddItem(ctx, 1, mug.ID, 1)
	require.NoError(t, err)

	out, err := f.cart.RemoveLine(ctx, 1, added.Item.ID)
	require.NoError(t, err)
	assert.True(t, out.Removed)
	assert.True(t, out.Cart.IsEmpty)

	out, err = f.cart.RemoveLine(ctx, 1, added.Item.ID)
	require.NoError(t, err)
	assert.False(t, out.Removed)
}

func TestCartUsecase_Clear(t *testing.T) {
	f := newShopFixture(t, uuidGen{})
	ctx := context.Background()
	mug := f.seedProduct(t, "Mug", "10.00", 5)
	tee := f.seedProduct(t, "Tee", "20.00", 5)

	_, err := f.cart.AddItem(ctx, 1, mug.ID, 1)
	require.NoError(t, err)
	_, err = f.cart.AddItem(ctx, 1, tee.ID, 1)
	require.NoError(t, err)
	_, err = f.cart.AddItem(ctx, 2, tee.ID, 1)
	require.NoError(t, err)

	cart, err := f.cart.Clear(ctx, 1)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty)

	other, err := f.cart.GetCart(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, other.Items, 1)
}
