package license

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorRunsFunction(t *testing.T) {
	coord := NewCoordinator()

	ran := false
	err := coord.Do(context.Background(), func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, coord.InFlight())
}

func TestCoordinatorPropagatesError(t *testing.T) {
	coord := NewCoordinator()
	sentinel := errors.New("check failed")

	err := coord.Do(context.Background(), func(context.Context) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	// A failed run must not leave the gate stuck closed.
	assert.False(t, coord.InFlight())
	ran := false
	_ = coord.Do(context.Background(), func(context.Context) error {
		ran = true
		return nil
	})
	assert.True(t, ran)
}

func TestCoordinatorSingleAdmission(t *testing.T) {
	coord := NewCoordinator()

	inFn := make(chan struct{})
	release := make(chan struct{})
	firstErr := make(chan error, 1)

	go func() {
		firstErr <- coord.Do(context.Background(), func(context.Context) error {
			close(inFn)
			<-release
			return errors.New("first check error")
		})
	}()

	<-inFn
	assert.True(t, coord.InFlight())

	// Bystanders return nil immediately without running their function.
	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := coord.Do(context.Background(), func(context.Context) error {
				ran.Add(1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(0), ran.Load())

	close(release)
	assert.Error(t, <-firstErr)
	assert.False(t, coord.InFlight())
}

func TestCoordinatorConcurrentStorm(t *testing.T) {
	coord := NewCoordinator()

	release := make(chan struct{})
	done := make(chan struct{})
	var executed atomic.Int32

	const callers = 32
	for i := 0; i < callers; i++ {
		go func() {
			_ = coord.Do(context.Background(), func(context.Context) error {
				executed.Add(1)
				<-release
				return nil
			})
			done <- struct{}{}
		}()
	}

	// All bystanders return immediately; only the winner is still inside
	// fn, holding the gate closed.
	for i := 0; i < callers-1; i++ {
		<-done
	}
	close(release)
	<-done

	assert.Equal(t, int32(1), executed.Load(), "exactly one caller should run the check")
}
