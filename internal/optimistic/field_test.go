package optimistic

import (
	"context"
	"errors"
	"sync"
	"testing"

	"feedsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	mu     sync.Mutex
	fields []string
	errs   []error
}

func (r *recordingReporter) Report(_ context.Context, field string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields = append(r.fields, field)
	r.errs = append(r.errs, err)
}

func TestField_SuccessShowsOptimisticThenConfirmed(t *testing.T) {
	f := NewField("post.content", "old", nil)

	m, err := f.Begin(func(string) string { return "new" })
	require.NoError(t, err)
	assert.Equal(t, "new", f.Value(), "optimistic value is visible before the call settles")
	assert.True(t, f.Pending())
	assert.Equal(t, "old", m.Previous())

	m.Succeed("new (server)")
	assert.Equal(t, "new (server)", f.Value())
	assert.Equal(t, Settled, f.Phase())
}

func TestField_FailureRevertsAndReports(t *testing.T) {
	rep := &recordingReporter{}
	f := NewField("post.content", "old", rep)

	m, err := f.Begin(func(string) string { return "new" })
	require.NoError(t, err)

	boom := errors.New("boom")
	m.Fail(context.Background(), boom)

	assert.Equal(t, "old", f.Value())
	assert.False(t, f.Pending())
	require.Len(t, rep.errs, 1)
	assert.Equal(t, "post.content", rep.fields[0])
	assert.ErrorIs(t, rep.errs[0], boom)
}

func TestField_BeginWhilePendingIsRejected(t *testing.T) {
	f := NewField("like", 1, nil)

	m, err := f.Begin(func(v int) int { return v + 1 })
	require.NoError(t, err)

	_, err = f.Begin(func(v int) int { return v + 1 })
	assert.ErrorIs(t, err, ErrPending)
	assert.True(t, models.IsConflict(err))
	assert.Equal(t, 2, f.Value())

	m.Keep()
	assert.Equal(t, 2, f.Value())

	_, err = f.Begin(func(v int) int { return v + 1 })
	assert.NoError(t, err)
}

func TestField_SettleTwiceIsNoop(t *testing.T) {
	rep := &recordingReporter{}
	f := NewField("x", 0, rep)

	m, err := f.Begin(func(int) int { return 5 })
	require.NoError(t, err)
	m.Succeed(5)
	m.Fail(context.Background(), errors.New("late"))

	assert.Equal(t, 5, f.Value())
	assert.Empty(t, rep.errs)

	m2, err := f.Begin(func(int) int { return 6 })
	require.NoError(t, err)
	m.Fail(context.Background(), errors.New("stale handle"))
	assert.Equal(t, 6, f.Value(), "an old handle cannot settle a newer mutation")
	m2.Keep()
}

func TestField_SetWhilePending(t *testing.T) {
	f := NewField("x", "a", nil)
	require.NoError(t, f.Set("b"))
	assert.Equal(t, "b", f.Value())

	m, err := f.Begin(func(string) string { return "c" })
	require.NoError(t, err)
	assert.ErrorIs(t, f.Set("d"), ErrPending)
	m.Keep()
	assert.Equal(t, "c", f.Value())
}

func TestField_OnChangeSeesEveryTransition(t *testing.T) {
	f := NewField("x", 0, ReporterFunc(func(context.Context, string, error) {}))

	var seen []string
	f.OnChange(func(v int, p Phase) {
		seen = append(seen, p.String())
		_ = v
	})

	m, _ := f.Begin(func(v int) int { return v + 1 })
	m.Fail(context.Background(), errors.New("x"))
	require.NoError(t, f.Set(3))

	assert.Equal(t, []string{"pending", "settled", "settled"}, seen)
}

func TestApply(t *testing.T) {
	rep := &recordingReporter{}
	f := NewField("edit", "draft", rep)

	err := Apply(context.Background(), f, func(string) string { return "saved" },
		func(_ context.Context, optimistic string) (string, error) {
			assert.Equal(t, "saved", optimistic)
			assert.Equal(t, "saved", f.Value())
			return "saved!", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "saved!", f.Value())

	boom := errors.New("offline")
	err = Apply(context.Background(), f, func(string) string { return "lost" },
		func(context.Context, string) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "saved!", f.Value())
	assert.Len(t, rep.errs, 1)
}

func TestFields_AreIndependent(t *testing.T) {
	a := NewField("a", 0, nil)
	b := NewField("b", 0, nil)

	ma, err := a.Begin(func(v int) int { return v + 1 })
	require.NoError(t, err)
	mb, err := b.Begin(func(v int) int { return v + 1 })
	require.NoError(t, err, "a pending field does not block another field")

	mb.Fail(context.Background(), errors.New("x"))
	ma.Keep()
	assert.Equal(t, 1, a.Value())
	assert.Equal(t, 0, b.Value())
}

func TestField_ConcurrentBeginAdmitsOne(t *testing.T) {
	f := NewField("race", 0, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.Begin(func(v int) int { return v + 1 }); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
	assert.Equal(t, 1, f.Value())
}
