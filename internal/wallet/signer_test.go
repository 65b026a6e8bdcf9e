package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/content-rewards/pkg/utils"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestKeySigner(t *testing.T) {
	t.Run("Known key derives address", func(t *testing.T) {
		signer, err := NewKeySigner("0x" + testKey)
		require.NoError(t, err)
		assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", signer.Address().Hex())
	})

	t.Run("Signature recovers signer", func(t *testing.T) {
		signer, err := GenerateKeySigner()
		require.NoError(t, err)

		digest := utils.PayloadHash([]byte(`{"method":"submit_content"}`))
		sig, err := signer.Sign(context.Background(), digest)
		require.NoError(t, err)
		require.Len(t, sig, 65)

		recovered, err := RecoverAddress(digest, sig)
		require.NoError(t, err)
		assert.Equal(t, signer.Address(), recovered)
	})

	t.Run("Missing key is a configuration error", func(t *testing.T) {
		_, err := NewKeySigner("  ")
		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.ErrCodeConfiguration))
	})

	t.Run("Malformed key is rejected", func(t *testing.T) {
		_, err := NewKeySigner("zz")
		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.ErrCodeConfiguration))
	})

	t.Run("Cancelled context does not sign", func(t *testing.T) {
		signer, err := GenerateKeySigner()
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = signer.Sign(ctx, utils.PayloadHash([]byte("x")))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
