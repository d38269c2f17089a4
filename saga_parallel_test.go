package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelCompensationInvokesAllExactlyOnce(t *testing.T) {
	const n = 8

	var (
		mu     sync.Mutex
		counts = make(map[string]int)
	)
	sg := New(Options{ParallelCompensation: true})

	for i := 1; i <= n; i++ {
		name := fmt.Sprintf("C%d", i)
		require.NoError(t, sg.AddCompensation(Named(name, func(ctx context.Context) error {
			mu.Lock()
			counts[name]++
			mu.Unlock()
			return nil
		})))
	}

	require.NoError(t, sg.Compensate(context.Background()))

	assert.Len(t, counts, n)
	for name, count := range counts {
		assert.Equal(t, 1, count, "compensation %s must run exactly once", name)
	}
}

func TestParallelCompensationAggregatesFailures(t *testing.T) {
	// Two of five compensations fail; all five still run and the aggregate
	// reports both failures.
	var (
		mu       sync.Mutex
		invoked  []string
		failures = map[int]error{
			2: errors.New("release rejected"),
			4: errors.New("refund rejected"),
		}
	)
	sg := New(Options{ParallelCompensation: true})

	for i := 1; i <= 5; i++ {
		i := i
		name := fmt.Sprintf("C%d", i)
		require.NoError(t, sg.AddCompensation(Named(name, func(ctx context.Context) error {
			mu.Lock()
			invoked = append(invoked, name)
			mu.Unlock()
			return failures[i]
		})))
	}

	err := sg.Compensate(context.Background())
	require.Error(t, err)
	assert.Len(t, invoked, 5, "no compensation may be skipped because of another's failure")

	var agg *CompensationError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Failures, 2)
	assert.Equal(t, 2, agg.Failures[0].Position)
	assert.Equal(t, 4, agg.Failures[1].Position)
	assert.ErrorIs(t, err, failures[2])
	assert.ErrorIs(t, err, failures[4])
}

func TestParallelCompensationRunsConcurrently(t *testing.T) {
	// Every compensation blocks on a shared barrier; the unwind can finish
	// only if all of them are in flight at the same time.
	const n = 3

	var barrier sync.WaitGroup
	barrier.Add(n)
	sg := New(Options{ParallelCompensation: true})

	for i := 0; i < n; i++ {
		require.NoError(t, sg.AddCompensationFunc(func(ctx context.Context) error {
			barrier.Done()
			barrier.Wait()
			return nil
		}))
	}

	require.NoError(t, sg.Compensate(context.Background()))
}

func TestParallelCompensationEmptyLedger(t *testing.T) {
	sg := New(Options{ParallelCompensation: true})
	require.NoError(t, sg.Compensate(context.Background()))
}
