package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	key, err := DeriveKey("s3cret")
	require.NoError(t, err)

	ct, err := Seal([]byte(`{"type":"PING"}`), key)
	require.NoError(t, err)
	plain, err := Open(ct, key)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"PING"}`, string(plain))
}

func TestWrongToken(t *testing.T) {
	a, err := DeriveKey("one")
	require.NoError(t, err)
	b, err := DeriveKey("two")
	require.NoError(t, err)

	ct, err := Seal([]byte("hello"), a)
	require.NoError(t, err)
	_, err = Open(ct, b)
	assert.ErrorIs(t, err, ErrOpen)
}

func TestShortCiphertext(t *testing.T) {
	key, err := DeriveKey("x")
	require.NoError(t, err)
	_, err = Open([]byte{1, 2, 3}, key)
	assert.ErrorIs(t, err, ErrShortCiphertext)
}

func TestKeyForToken(t *testing.T) {
	key, err := KeyForToken("")
	require.NoError(t, err)
	assert.Nil(t, key)

	k1, err := KeyForToken("t")
	require.NoError(t, err)
	k2, err := DeriveKey("t")
	require.NoError(t, err)
	assert.Equal(t, *k2, *k1)
}
