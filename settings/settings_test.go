package settings

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	keyEUI     Key = 'E'<<8 | 'I'
	keyChannel Key = 'C'<<8 | 'H'
	keyPAN     Key = 'P'<<8 | 'N'
)

func newTestStore(t *testing.T, size int) *Store {
	t.Helper()
	mem := NewMemEEPROM(size)
	return NewStore(mem, uint32(size-1), uint32(size))
}

func TestAddGet(t *testing.T) {
	s := newTestStore(t, 1024)

	require.NoError(t, s.Add(keyEUI, []byte{1, 2, 3, 4, 5, 6, 7, 8}))

	got, err := s.Get(keyEUI, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, got)
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t, 1024)

	_, err := s.Get(keyEUI, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicateKeysKeepInsertionOrder(t *testing.T) {
	s := newTestStore(t, 1024)

	require.NoError(t, s.Add(keyChannel, []byte{11}))
	require.NoError(t, s.Add(keyChannel, []byte{26}))

	first, err := s.Get(keyChannel, 0)
	require.NoError(t, err)
	second, err := s.Get(keyChannel, 1)
	require.NoError(t, err)

	assert.Equal(t, []byte{11}, first)
	assert.Equal(t, []byte{26}, second)

	_, err = s.Get(keyChannel, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetSameLengthOverwritesInPlace(t *testing.T) {
	s := newTestStore(t, 1024)

	require.NoError(t, s.Add(keyChannel, []byte{11}))
	require.NoError(t, s.Set(keyChannel, []byte{26}))

	got, err := s.Get(keyChannel, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{26}, got)
}

func TestSetCreatesMissingItem(t *testing.T) {
	s := newTestStore(t, 1024)

	require.NoError(t, s.Set(keyPAN, []byte{0xCD, 0xAB}))

	got, err := s.Get(keyPAN, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCD, 0xAB}, got)
}

func TestSetDifferentLengthKeepsOtherItems(t *testing.T) {
	s := newTestStore(t, 1024)

	require.NoError(t, s.Add(keyEUI, []byte{1, 2, 3, 4}))
	require.NoError(t, s.Add(keyChannel, []byte{11}))
	require.NoError(t, s.Add(keyPAN, []byte{0xCD, 0xAB}))

	require.NoError(t, s.Set(keyChannel, []byte{26, 15}))

	eui, err := s.Get(keyEUI, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, eui)

	channel, err := s.Get(keyChannel, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{26, 15}, channel)

	pan, err := s.Get(keyPAN, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCD, 0xAB}, pan)
}

func TestDeleteCompacts(t *testing.T) {
	s := newTestStore(t, 1024)

	require.NoError(t, s.Add(keyEUI, []byte{1, 2, 3, 4}))
	require.NoError(t, s.Add(keyChannel, []byte{11}))
	require.NoError(t, s.Add(keyChannel, []byte{26}))

	require.NoError(t, s.Delete(keyChannel, 0))

	got, err := s.Get(keyChannel, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{26}, got)

	_, err = s.Get(keyChannel, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	eui, err := s.Get(keyEUI, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, eui)
}

func TestDeleteMissing(t *testing.T) {
	s := newTestStore(t, 1024)

	assert.ErrorIs(t, s.Delete(keyEUI, 0), ErrNotFound)
}

func TestCheck(t *testing.T) {
	s := newTestStore(t, 1024)

	assert.False(t, s.Check(keyEUI, 0))
	require.NoError(t, s.Add(keyEUI, []byte{1}))
	assert.True(t, s.Check(keyEUI, 0))
	assert.False(t, s.Check(keyEUI, 1))
}

func TestLargeValueRoundTrip(t *testing.T) {
	s := newTestStore(t, 2048)

	value := bytes.Repeat([]byte{0x5A}, 300)
	require.NoError(t, s.Add(keyEUI, value))

	got, err := s.Get(keyEUI, 0)
	require.NoError(t, err)
	assert.Equal(t, value, got)
}

func TestValueTooBig(t *testing.T) {
	s := newTestStore(t, 1024)

	err := s.Add(keyEUI, make([]byte, MaxValueSize+1))
	assert.ErrorIs(t, err, ErrValueTooBig)
}

func TestStoreFull(t *testing.T) {
	s := newTestStore(t, 64)

	require.NoError(t, s.Add(keyEUI, make([]byte, 32)))
	err := s.Add(keyChannel, make([]byte, 32))
	assert.ErrorIs(t, err, ErrStoreFull)
}

func TestWipe(t *testing.T) {
	s := newTestStore(t, 1024)

	require.NoError(t, s.Add(keyEUI, []byte{1, 2, 3}))
	require.NoError(t, s.Wipe())

	_, err := s.Get(keyEUI, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUint16Helpers(t *testing.T) {
	s := newTestStore(t, 1024)

	require.NoError(t, s.SetUint16(keyPAN, 0xABCD))

	got, err := s.GetUint16(keyPAN, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xABCD), got)

	raw, err := s.Get(keyPAN, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCD, 0xAB}, raw)
}
