package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyHashIsStableAndOneWay(t *testing.T) {
	h1 := KeyHash("order-42-attempt-1")
	h2 := KeyHash("order-42-attempt-1")
	h3 := KeyHash("order-42-attempt-2")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
	assert.NotContains(t, h1, "order-42")
}

func TestKeyHashKnownValue(t *testing.T) {
	// sha256("") pinned so an accidental algorithm change is caught.
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		KeyHash(""))
}

func TestRequestHashIsCanonical(t *testing.T) {
	a, err := RequestHash(map[string]any{
		"order_id": "abc",
		"amount":   int64(5000),
		"provider": "stripelike",
	})
	require.NoError(t, err)

	// Same fields, different insertion order.
	b, err := RequestHash(map[string]any{
		"provider": "stripelike",
		"amount":   int64(5000),
		"order_id": "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := RequestHash(map[string]any{
		"order_id": "abc",
		"amount":   int64(5001),
		"provider": "stripelike",
	})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestRequestHashCanonicalizesNestedMaps(t *testing.T) {
	a, err := RequestHash(map[string]any{
		"outer": map[string]any{"x": 1, "y": 2},
	})
	require.NoError(t, err)
	b, err := RequestHash(map[string]any{
		"outer": map[string]any{"y": 2, "x": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
