package saga

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects compensation invocations so tests can assert ordering.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// comp returns a compensation that records its invocation and succeeds.
func (r *recorder) comp(name string) Compensation {
	return Named(name, func(ctx context.Context) error {
		r.record(name)
		return nil
	})
}

// failing returns a compensation that records its invocation and fails.
func (r *recorder) failing(name string, err error) Compensation {
	return Named(name, func(ctx context.Context) error {
		r.record(name)
		return err
	})
}

func TestCompensateReverseOrder(t *testing.T) {
	// Register C1, C2, C3 in that order; sequential unwind must run C3, C2, C1.
	rec := &recorder{}
	sg := New(Options{})

	require.NoError(t, sg.AddCompensation(rec.comp("C1")))
	require.NoError(t, sg.AddCompensation(rec.comp("C2")))
	require.NoError(t, sg.AddCompensation(rec.comp("C3")))

	err := sg.Compensate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"C3", "C2", "C1"}, rec.Calls())
	assert.Equal(t, StateCompensated, sg.State())
}

func TestCompensateEmptyLedger(t *testing.T) {
	sg := New(Options{})

	err := sg.Compensate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompensated, sg.State())
	assert.Empty(t, sg.Events())
}

func TestCompensateStopsAtFirstFailure(t *testing.T) {
	// C2 fails with ContinueWithError unset: C3 runs, C2 fails, C1 is never
	// invoked, and the result reports exactly the one failure at position 2.
	rec := &recorder{}
	cause := errors.New("undo rejected")
	sg := New(Options{})

	require.NoError(t, sg.AddCompensation(rec.comp("C1")))
	require.NoError(t, sg.AddCompensation(rec.failing("C2", cause)))
	require.NoError(t, sg.AddCompensation(rec.comp("C3")))

	err := sg.Compensate(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"C3", "C2"}, rec.Calls())

	var failure *FailedCompensation
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 2, failure.Position)
	assert.Equal(t, "C2", failure.Name)
	assert.ErrorIs(t, err, cause)
}

func TestCompensateContinueWithError(t *testing.T) {
	// Same scenario with ContinueWithError: all three are attempted and the
	// aggregate lists exactly the one failure.
	rec := &recorder{}
	cause := errors.New("undo rejected")
	sg := New(Options{ContinueWithError: true})

	require.NoError(t, sg.AddCompensation(rec.comp("C1")))
	require.NoError(t, sg.AddCompensation(rec.failing("C2", cause)))
	require.NoError(t, sg.AddCompensation(rec.comp("C3")))

	err := sg.Compensate(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"C3", "C2", "C1"}, rec.Calls())

	var agg *CompensationError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Failures, 1)
	assert.Equal(t, 2, agg.Failures[0].Position)
	assert.ErrorIs(t, err, cause)
}

func TestCompensateContinueWithErrorEncounterOrder(t *testing.T) {
	// With failures at positions 3 and 1, the aggregate lists them in the
	// order encountered during the reverse sweep: position 3 first.
	rec := &recorder{}
	sg := New(Options{ContinueWithError: true})

	require.NoError(t, sg.AddCompensation(rec.failing("C1", errors.New("first registered"))))
	require.NoError(t, sg.AddCompensation(rec.comp("C2")))
	require.NoError(t, sg.AddCompensation(rec.failing("C3", errors.New("last registered"))))

	err := sg.Compensate(context.Background())
	require.Error(t, err)

	var agg *CompensationError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Failures, 2)
	assert.Equal(t, 3, agg.Failures[0].Position)
	assert.Equal(t, 1, agg.Failures[1].Position)
}

func TestCompensateTwiceReturnsFirstResult(t *testing.T) {
	// A second call must not invoke any compensation again and returns the
	// first call's result.
	rec := &recorder{}
	cause := errors.New("undo rejected")
	sg := New(Options{})

	require.NoError(t, sg.AddCompensation(rec.failing("C1", cause)))

	first := sg.Compensate(context.Background())
	require.Error(t, first)
	require.Len(t, rec.Calls(), 1)

	second := sg.Compensate(context.Background())
	assert.Equal(t, first, second)
	assert.Len(t, rec.Calls(), 1, "no compensation may run twice")
}

func TestAddCompensationAfterCompensate(t *testing.T) {
	rec := &recorder{}
	sg := New(Options{})

	require.NoError(t, sg.AddCompensation(rec.comp("C1")))
	require.NoError(t, sg.Compensate(context.Background()))

	err := sg.AddCompensation(rec.comp("C2"))
	assert.ErrorIs(t, err, ErrCompensationStarted)
	assert.Equal(t, 1, sg.Len())
}

func TestAddCompensationFunc(t *testing.T) {
	var called bool
	sg := New(Options{})

	require.NoError(t, sg.AddCompensationFunc(func(ctx context.Context) error {
		called = true
		return nil
	}))

	require.NoError(t, sg.Compensate(context.Background()))
	assert.True(t, called)
}

func TestSagaStateLifecycle(t *testing.T) {
	sg := New(Options{})
	assert.Equal(t, StateBuilding, sg.State())
	assert.Equal(t, "building", sg.State().String())

	require.NoError(t, sg.Compensate(context.Background()))
	assert.Equal(t, StateCompensated, sg.State())
	assert.Equal(t, "compensated", sg.State().String())
}

func TestUnwindEvents(t *testing.T) {
	rec := &recorder{}
	cause := errors.New("undo rejected")
	sg := New(Options{ContinueWithError: true})

	require.NoError(t, sg.AddCompensation(rec.comp("C1")))
	require.NoError(t, sg.AddCompensation(rec.failing("C2", cause)))

	err := sg.Compensate(context.Background())
	require.Error(t, err)

	events := sg.Events()
	require.Len(t, events, 4)
	assert.Equal(t, UnwindStarted, events[0].Type)
	assert.Equal(t, 2, events[0].Position)
	assert.Equal(t, UnwindFailed, events[1].Type)
	assert.Equal(t, 2, events[1].Position)
	assert.Equal(t, UnwindStarted, events[2].Type)
	assert.Equal(t, 1, events[2].Position)
	assert.Equal(t, UnwindSucceeded, events[3].Type)
	assert.Equal(t, 1, events[3].Position)

	for _, event := range events {
		assert.Equal(t, sg.ID(), event.SagaID)
	}
}

func TestConcurrentRegistration(t *testing.T) {
	// Forward steps dispatched in parallel may register as they complete.
	sg := New(Options{})
	var wg sync.WaitGroup
	rec := &recorder{}

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sg.AddCompensation(rec.comp("c")))
		}()
	}
	wg.Wait()

	assert.Equal(t, 16, sg.Len())
	require.NoError(t, sg.Compensate(context.Background()))
	assert.Len(t, rec.Calls(), 16)
}
