package common

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString_LengthAndHex(t *testing.T) {
	s, err := MakeRandHexString(RefreshTokenBytes)
	require.NoError(t, err)
	assert.Len(t, s, RefreshTokenBytes*2)

	_, err = hex.DecodeString(s)
	assert.NoError(t, err)
}

func TestMakeRandHexString_ZeroSize(t *testing.T) {
	s, err := MakeRandHexString(0)
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestMakeRandHexString_Distinct(t *testing.T) {
	a, err := MakeRandHexString(RefreshTokenBytes)
	require.NoError(t, err)
	b, err := MakeRandHexString(RefreshTokenBytes)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestWipeByteArray_ZerosBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	WipeByteArray(buf)
	assert.Equal(t, []byte{0, 0, 0, 0, 0}, buf)
}

func TestWipeByteArray_NilSafe(t *testing.T) {
	assert.NotPanics(t, func() { WipeByteArray(nil) })
}

func TestErrInvalidRefreshToken_IsUnauthorized(t *testing.T) {
	assert.True(t, errors.Is(ErrInvalidRefreshToken, ErrorUnauthorized))
	assert.Equal(t, "unauthorized: invalid refresh token", ErrInvalidRefreshToken.Error())
}
