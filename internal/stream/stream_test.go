package stream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSlice_DrainOnce(t *testing.T) {
	s := FromSlice([]int{3, 1, 2})

	got, err := s.Drain()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 2}, got)

	_, err = s.Drain()
	assert.ErrorIs(t, err, ErrDrained)
}

func TestFromSlice_NilYieldsEmpty(t *testing.T) {
	got, err := FromSlice[string](nil).Drain()
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFailed(t *testing.T) {
	boom := errors.New("boom")
	s := Failed[int](boom)

	_, err := s.Drain()
	assert.ErrorIs(t, err, boom)

	// failure is sticky
	_, err = s.Drain()
	assert.ErrorIs(t, err, boom)
}

func TestFunc_RunsOnce(t *testing.T) {
	calls := 0
	s := Func(func() ([]string, error) {
		calls++
		return []string{"a"}, nil
	})

	got, err := s.Drain()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)

	_, err = s.Drain()
	assert.ErrorIs(t, err, ErrDrained)
	assert.Equal(t, 1, calls)
}
