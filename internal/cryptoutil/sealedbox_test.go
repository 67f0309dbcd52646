package cryptoutil

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundtrip(t *testing.T) {
	material := []byte("key material")
	salt, err := NewSalt()
	require.NoError(t, err)
	require.Len(t, salt, SaltLength)

	plaintext := []byte(`{"name":"Alice","degree":"MSc"}`)
	sealed, err := Seal(plaintext, material, salt)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, sealed)

	opened, err := Open(sealed, material, salt)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestOpenWrongMaterial(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	sealed, err := Seal([]byte("secret"), []byte("right key"), salt)
	require.NoError(t, err)

	_, err = Open(sealed, []byte("wrong key"), salt)
	require.Error(t, err)
}

func TestOpenWrongSalt(t *testing.T) {
	material := []byte("key material")
	salt, err := NewSalt()
	require.NoError(t, err)
	otherSalt, err2 := NewSalt()
	require.NoError(t, err2)

	sealed, err := Seal([]byte("secret"), material, salt)
	require.NoError(t, err)

	_, err = Open(sealed, material, otherSalt)
	require.Error(t, err)
}

func TestOpenTamperedCiphertext(t *testing.T) {
	material := []byte("key material")
	salt, err := NewSalt()
	require.NoError(t, err)

	sealed, err := Seal([]byte("secret"), material, salt)
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff

	_, err = Open(sealed, material, salt)
	require.Error(t, err)
}

func TestOpenTruncated(t *testing.T) {
	_, err := Open([]byte{0x01, 0x02}, []byte("key"), []byte("salt"))
	require.Error(t, err)
}

func TestNewNonce(t *testing.T) {
	a, err := NewNonce()
	require.NoError(t, err)
	b, err := NewNonce()
	require.NoError(t, err)

	require.NotEqual(t, a, b)

	raw, err := hex.DecodeString(a)
	require.NoError(t, err)
	require.Len(t, raw, 32)
}
