package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNew_Capacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		want     int
	}{
		{"positive", 10, 10},
		{"zero", 0, DefaultCapacity},
		{"negative", -3, DefaultCapacity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.capacity).Stats().Capacity)
		})
	}
}

func TestStmtCache_PrepareOnce(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectPrepare(`SELECT * FROM "posts"`)

	c := New(4)
	var lookups []bool
	c.OnLookup = func(hit bool) { lookups = append(lookups, hit) }

	first, release, err := c.Prepare(context.Background(), db, `SELECT * FROM "posts"`)
	require.NoError(t, err)
	release()
	second, release, err := c.Prepare(context.Background(), db, `SELECT * FROM "posts"`)
	require.NoError(t, err)
	release()

	assert.Same(t, first, second)
	assert.Equal(t, []bool{false, true}, lookups)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStmtCache_PrepareError(t *testing.T) {
	db, mock := newMock(t)
	boom := errors.New("syntax error")
	mock.ExpectPrepare("SELEC 1").WillReturnError(boom)

	c := New(4)
	_, _, err := c.Prepare(context.Background(), db, "SELEC 1")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestStmtCache_EvictsLeastRecentlyUsed(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectPrepare("SELECT 1").WillBeClosed()
	mock.ExpectPrepare("SELECT 2")
	mock.ExpectPrepare("SELECT 3")

	c := New(2)
	ctx := context.Background()
	// SELECT 2 is used twice so SELECT 1 is the oldest.
	for _, q := range []string{"SELECT 1", "SELECT 2", "SELECT 2", "SELECT 3"} {
		_, release, err := c.Prepare(ctx, db, q)
		require.NoError(t, err)
		release()
	}

	stats := c.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, uint64(1), stats.Evictions)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStmtCache_ForgetAndClear(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectPrepare("SELECT 1").WillBeClosed()
	mock.ExpectPrepare("SELECT 2").WillBeClosed()

	c := New(4)
	ctx := context.Background()
	for _, q := range []string{"SELECT 1", "SELECT 2"} {
		_, release, err := c.Prepare(ctx, db, q)
		require.NoError(t, err)
		release()
	}

	c.Forget("SELECT 1")
	c.Forget("missing")
	assert.Equal(t, 1, c.Stats().Size)

	c.Clear()
	assert.Equal(t, 0, c.Stats().Size)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStmtCache_Concurrent(t *testing.T) {
	db, mock := newMock(t)
	mock.MatchExpectationsInOrder(false)
	const queries = 8
	for i := 0; i < queries; i++ {
		// Concurrent misses on one key may prepare more than once.
		for j := 0; j < 4; j++ {
			mock.ExpectPrepare(fmt.Sprintf("SELECT %d", i))
		}
	}

	c := New(queries)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < queries; i++ {
				_, release, err := c.Prepare(context.Background(), db, fmt.Sprintf("SELECT %d", i))
				if assert.NoError(t, err) {
					release()
				}
			}
		}()
	}
	wg.Wait()

	stats := c.Stats()
	assert.Equal(t, queries, stats.Size)
	assert.Equal(t, uint64(4*queries), stats.Hits+stats.Misses)
}

func TestStmtCache_EvictedStatementHeldUntilRelease(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	c := New(1)

	held, release, err := c.Prepare(ctx, db, "SELECT 1")
	require.NoError(t, err)

	_, releaseOther, err := c.Prepare(ctx, db, "SELECT 2")
	require.NoError(t, err)
	releaseOther()
	assert.Equal(t, uint64(1), c.Stats().Evictions)

	var n int
	require.NoError(t, held.QueryRowContext(ctx).Scan(&n))
	assert.Equal(t, 1, n)

	release()
	release()
	assert.Error(t, held.QueryRowContext(ctx).Scan(&n))
}

func TestStmtCache_ConcurrentEviction(t *testing.T) {
	db := openSQLite(t)
	c := New(1)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				want := (g+i)%2 + 1
				stmt, release, err := c.Prepare(context.Background(), db, fmt.Sprintf("SELECT %d", want))
				if !assert.NoError(t, err) {
					return
				}
				var got int
				err = stmt.QueryRowContext(context.Background()).Scan(&got)
				release()
				assert.NoError(t, err)
				assert.Equal(t, want, got)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Stats().Size, 1)
}

func TestStats_HitRateEmpty(t *testing.T) {
	assert.Zero(t, Stats{}.HitRate())
}
