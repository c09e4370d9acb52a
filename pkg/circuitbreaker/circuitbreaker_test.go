package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("redis down")

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	var transitions []State
	cb := New("test",
		WithFailureThreshold(2),
		WithTimeout(time.Hour),
		WithOnStateChange(func(_ string, _, to State) { transitions = append(transitions, to) }),
	)

	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errDown)
	assert.True(t, cb.IsClosed())
	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errDown)
	assert.True(t, cb.IsOpen())

	err := cb.Execute(context.Background(), ok)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, []State{StateOpen}, transitions)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := New("test", WithFailureThreshold(1), WithSuccessThreshold(1), WithTimeout(time.Millisecond))

	require.Error(t, cb.Execute(context.Background(), fail))
	require.True(t, cb.IsOpen())

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, cb.Execute(context.Background(), ok))
	assert.True(t, cb.IsClosed())
}

func TestCircuitBreaker_Fallback(t *testing.T) {
	cb := CacheBreaker("rates", nil)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}

	used := false
	err := cb.ExecuteWithFallback(context.Background(), ok, func(error) error {
		used = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, used)
}
