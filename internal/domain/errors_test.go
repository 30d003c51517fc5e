package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesByKind(t *testing.T) {
	err := fmt.Errorf("reserve: %w", InsufficientStock(12, 3, 5))

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NotErrorIs(t, err, ErrLastItem)

	derr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, int64(12), derr.ProductID)
	assert.Equal(t, 3, derr.Available)
	assert.Equal(t, 5, derr.Requested)
	assert.Equal(t, "insufficient stock for product 12: available 3, requested 5", derr.Error())
}

func TestAsErrorOnForeignError(t *testing.T) {
	_, ok := AsError(errors.New("disk full"))
	assert.False(t, ok)
}

func TestInternalHidesDetail(t *testing.T) {
	assert.Equal(t, "internal error", Internal().Error())
	assert.ErrorIs(t, Internal(), ErrInternal)
}

func TestKindIsNotFound(t *testing.T) {
	for _, k := range []Kind{KindCustomerNotFound, KindOrderNotFound, KindItemNotFound, KindProductNotFound} {
		assert.True(t, k.IsNotFound(), k)
	}
	for _, k := range []Kind{KindInvalidInput, KindInvalidState, KindInsufficientStock, KindLastItem, KindInternal} {
		assert.False(t, k.IsNotFound(), k)
	}
}
