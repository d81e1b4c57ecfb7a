package holddown

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakePool struct {
	qrErr      error
	heldUntil  time.Time
	failsRet   int
	execSQL    []string
	execArgs   [][]any
	execErr    error
	queryHosts []string
}

func (f *fakePool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakePool) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.queryHosts = append(f.queryHosts, args[0].(string))
	switch {
	case strings.Contains(sql, "SELECT held_until"):
		return fakeRow{scan: func(dest ...any) error {
			if f.qrErr != nil {
				return f.qrErr
			}
			*(dest[0].(*time.Time)) = f.heldUntil
			return nil
		}}
	case strings.Contains(sql, "RETURNING fail_count"):
		return fakeRow{scan: func(dest ...any) error {
			if f.qrErr != nil {
				return f.qrErr
			}
			*(dest[0].(*int)) = f.failsRet
			return nil
		}}
	default:
		return fakeRow{scan: func(...any) error { return errors.New("unexpected query") }}
	}
}

func newGuard(fp *fakePool, now time.Time) *PG {
	g := NewPG(fp, 10*time.Minute, 3, 5*time.Minute)
	g.now = func() time.Time { return now }
	return g
}

func TestAllow_NoRow_Allows(t *testing.T) {
	fp := &fakePool{qrErr: pgx.ErrNoRows}
	ok, wait, err := newGuard(fp, time.Now()).Allow(context.Background(), " Pod.Example ")
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, wait)
	require.Equal(t, []string{"pod.example"}, fp.queryHosts)
}

func TestAllow_Held(t *testing.T) {
	now := time.Now()
	fp := &fakePool{heldUntil: now.Add(90 * time.Second)}
	ok, wait, err := newGuard(fp, now).Allow(context.Background(), "pod.example")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 90*time.Second, wait)
}

func TestAllow_HoldExpired(t *testing.T) {
	now := time.Now()
	fp := &fakePool{heldUntil: now.Add(-time.Second)}
	ok, _, err := newGuard(fp, now).Allow(context.Background(), "pod.example")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAllow_DBError(t *testing.T) {
	fp := &fakePool{qrErr: errors.New("conn reset")}
	_, _, err := newGuard(fp, time.Now()).Allow(context.Background(), "pod.example")
	require.Error(t, err)
}

func TestFailure_BelowThreshold(t *testing.T) {
	fp := &fakePool{failsRet: 2}
	held, wait, err := newGuard(fp, time.Now()).Failure(context.Background(), "pod.example")
	require.NoError(t, err)
	require.False(t, held)
	require.Zero(t, wait)
	require.Empty(t, fp.execSQL)
}

func TestFailure_ReachesThreshold(t *testing.T) {
	now := time.Now()
	fp := &fakePool{failsRet: 3}
	held, wait, err := newGuard(fp, now).Failure(context.Background(), "pod.example")
	require.NoError(t, err)
	require.True(t, held)
	require.Equal(t, 5*time.Minute, wait)
	require.Len(t, fp.execSQL, 1)
	require.Contains(t, fp.execSQL[0], "SET held_until")
	require.Equal(t, now.Add(5*time.Minute), fp.execArgs[0][1])
}

func TestFailure_HoldWriteFails(t *testing.T) {
	fp := &fakePool{failsRet: 3, execErr: errors.New("boom")}
	_, _, err := newGuard(fp, time.Now()).Failure(context.Background(), "pod.example")
	require.Error(t, err)
}

func TestSuccess_Resets(t *testing.T) {
	fp := &fakePool{}
	require.NoError(t, newGuard(fp, time.Now()).Success(context.Background(), "POD.example"))
	require.Len(t, fp.execSQL, 1)
	require.Contains(t, fp.execSQL[0], "fail_count = 0")
	require.Equal(t, "pod.example", fp.execArgs[0][0])

	fp.execErr = errors.New("boom")
	require.Error(t, newGuard(fp, time.Now()).Success(context.Background(), "pod.example"))
}

func TestNop(t *testing.T) {
	var g Guard = Nop{}
	ok, _, err := g.Allow(context.Background(), "x")
	require.NoError(t, err)
	require.True(t, ok)
	held, _, err := g.Failure(context.Background(), "x")
	require.NoError(t, err)
	require.False(t, held)
	require.NoError(t, g.Success(context.Background(), "x"))
}
