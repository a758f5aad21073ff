package core

import (
	"context"
	"testing"

	"github.com/coregx/relmap/internal/condition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_Conditions(t *testing.T) {
	db := openTestDB(t)
	m := db.Mapper()
	seedPosts(t, m)
	ctx := context.Background()

	tests := []struct {
		name  string
		build func(q Query[Post]) Query[Post]
		want  int
	}{
		{"less than", func(q Query[Post]) Query[Post] { return q.Where(condition.Map{"status <": 5}) }, 4},
		{"named less than", func(q Query[Post]) Query[Post] { return q.Where(condition.Map{"status :lt": 5}) }, 4},
		{"greater or equal", func(q Query[Post]) Query[Post] { return q.Where(condition.Map{"status >=": 5}) }, 6},
		{"greater than max", func(q Query[Post]) Query[Post] { return q.Where(condition.Map{"status >": 10}) }, 0},
		{"or where", func(q Query[Post]) Query[Post] {
			return q.Where(condition.Map{"status": 1}).OrWhere(condition.Map{"status": 2})
		}, 2},
		{"named in", func(q Query[Post]) Query[Post] { return q.Where(condition.Map{"status :in": []int{3, 4, 5}}) }, 3},
		{"list sugar", func(q Query[Post]) Query[Post] { return q.Where(condition.Map{"status": []int{3, 4, 5}}) }, 3},
		{"not in", func(q Query[Post]) Query[Post] { return q.Where(condition.Map{"status not in": []int{3, 4, 5}}) }, 7},
		{"not equal list", func(q Query[Post]) Query[Post] { return q.Where(condition.Map{"status !=": []int{3, 4, 5}}) }, 7},
		{"between", func(q Query[Post]) Query[Post] { return q.Where(condition.Map{"status :between": []int{2, 4}}) }, 3},
		{"like", func(q Query[Post]) Query[Post] { return q.Where(condition.Map{"title :like": "odd%"}) }, 5},
		{"and within group", func(q Query[Post]) Query[Post] {
			return q.Where(condition.Map{"title": "even_title", "status >": 5})
		}, 3},
		{"any group", func(q Query[Post]) Query[Post] {
			return q.Where(condition.Any(condition.C("status", 1), condition.C("status", 10)))
		}, 2},
		{"nested or group", func(q Query[Post]) Query[Post] {
			return q.Where(condition.All(
				condition.C("title", "odd_title"),
				condition.Any(condition.C("status <", 3), condition.C("status >", 8)),
			))
		}, 2},
		{"is null", func(q Query[Post]) Query[Post] { return q.Where(condition.Map{"status": nil}) }, 0},
		{"is not null", func(q Query[Post]) Query[Post] { return q.Where(condition.Map{"status !=": nil}) }, 10},
		{"empty in", func(q Query[Post]) Query[Post] { return q.Where(condition.Map{"status": []int{}}) }, 0},
		{"empty not in", func(q Query[Post]) Query[Post] { return q.Where(condition.Map{"status not in": []int{}}) }, 10},
		{"empty map", func(q Query[Post]) Query[Post] { return q.Where(condition.Map{}) }, 10},
		{"boolean", func(q Query[Post]) Query[Post] { return q.Where(condition.Map{"published": true}) }, 5},
		{"same column twice", func(q Query[Post]) Query[Post] {
			return q.Where(condition.Map{"status >": 1}).Where(condition.Map{"status <": 4})
		}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.build(Select[Post](m))

			coll, err := q.Execute(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, coll.Len())

			n, err := q.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(tt.want), n)
		})
	}
}

func TestQuery_Statement(t *testing.T) {
	db := openTestDB(t)
	m := db.Mapper()

	st, err := Select[Post](m).Where(condition.Map{"status <": 5}).Statement()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "posts" WHERE ("status" < :status0)`, st.SQL)

	in, err := Select[Post](m).Where(condition.Map{"status :in": []int{3, 4, 5}}).Statement()
	require.NoError(t, err)
	sugar, err := Select[Post](m).Where(condition.Map{"status": []int{3, 4, 5}}).Statement()
	require.NoError(t, err)
	assert.Equal(t, in.SQL, sugar.SQL)
	assert.Equal(t, `SELECT * FROM "posts" WHERE ("status" IN (:status0_0, :status0_1, :status0_2))`, in.SQL)

	two, err := Select[Post](m).Where(condition.Map{"status <": 5}).Where(condition.Map{"status >": 1}).Statement()
	require.NoError(t, err)
	assert.Equal(t, []string{"status0", "status1"}, two.Binds.Names())

	_, err = Select[Post](m).Where(condition.Map{"status ~~": 1}).Statement()
	assert.ErrorIs(t, err, condition.ErrValidation)

	_, err = Select[Post](m).Where(condition.Map{"status :between": []int{1}}).Statement()
	assert.ErrorIs(t, err, condition.ErrValidation)
}

func TestQuery_Immutable(t *testing.T) {
	db := openTestDB(t)
	m := db.Mapper()
	seedPosts(t, m)
	ctx := context.Background()

	base := Select[Post](m)
	odd := base.Where(condition.Map{"title": "odd_title"})
	low := odd.Where(condition.Map{"status <": 4})

	for q, want := range map[*Query[Post]]int64{&base: 10, &odd: 5, &low: 2} {
		n, err := q.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
}

func TestQuery_SnapshotReset(t *testing.T) {
	db := openTestDB(t)
	m := db.Mapper()

	odd := Select[Post](m).Where(condition.Map{"title": "odd"}).Snapshot()
	want, err := odd.Statement()
	require.NoError(t, err)

	refined := odd.Where(condition.Map{"status": 1}).Order("status", "desc").Limit(3)
	got, err := refined.Statement()
	require.NoError(t, err)
	assert.NotEqual(t, want.SQL, got.SQL)

	soft, err := refined.Reset().Statement()
	require.NoError(t, err)
	assert.Equal(t, want.SQL, soft.SQL)
	assert.Equal(t, want.Binds.Map(), soft.Binds.Map())

	hard := refined.ResetHard()
	st, err := hard.Statement()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "posts"`, st.SQL)

	// The baseline is gone after a hard reset.
	st, err = hard.Where(condition.Map{"status": 2}).Reset().Statement()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "posts"`, st.SQL)

	// Without a snapshot, Reset returns to the construction state.
	fresh, err := Select[Post](m).Where(condition.Map{"status": 3}).Reset().Statement()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "posts"`, fresh.SQL)
}

func TestQuery_ExecuteIsMemoized(t *testing.T) {
	rec := &hookRecorder{}
	db := openTestDB(t, WithQueryHook(rec.hook))
	m := db.Mapper()
	seedPosts(t, m)
	ctx := context.Background()

	q := Select[Post](m).Where(condition.Map{"status >": 5})
	first, err := q.Execute(ctx)
	require.NoError(t, err)
	second, err := q.Execute(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, rec.count("SELECT"))

	// Reading the collection does not invalidate anything.
	for range first.All() {
	}
	_, err = q.ToSlice(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count("SELECT"))

	_, err = q.Limit(2).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.count("SELECT"))

	_, err = q.Count(ctx)
	require.NoError(t, err)
	_, err = q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.count("SELECT"))
}

func TestQuery_OrderLimitOffset(t *testing.T) {
	db := openTestDB(t)
	m := db.Mapper()
	seedPosts(t, m)
	ctx := context.Background()

	q := Select[Post](m).Order("status", "DESC").Limit(3).Offset(2)
	statuses, err := q.Map(ctx, func(p *Post) any { return p.Status })
	require.NoError(t, err)
	assert.Equal(t, []any{8, 7, 6}, statuses)

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	all, err := q.Limit(-1).ToSlice(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 10)
}

func TestQuery_GroupHaving(t *testing.T) {
	db := openTestDB(t)
	m := db.Mapper()
	seedPosts(t, m)
	ctx := context.Background()

	grouped := Select[Post](m, "published", "COUNT(*) AS total").Group("published")
	n, err := grouped.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	st, err := grouped.CountStatement()
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM (SELECT published, COUNT(*) AS total FROM "posts" GROUP BY published) AS "relmap_count"`, st.SQL)

	maxQ := Select[Post](m, "id", "MAX(status) AS maximus").Having(condition.Map{"maximus": 10})
	max, err := maxQ.ToSlice(ctx)
	require.NoError(t, err)
	assert.Len(t, max, 1)
	n, err = maxQ.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(max)), n)

	st, err = maxQ.CountStatement()
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT COUNT(*) FROM (SELECT id, MAX(status) AS maximus FROM "posts" HAVING ("maximus" = :maximus0)) AS "relmap_count"`,
		st.SQL)

	n, err = Select[Post](m, "MAX(status)").Having(condition.Map{"MAX(status) >": 5}).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	st, err = Select[Post](m).
		Where(condition.Map{"status >": 1}).
		Group("title").
		Having(condition.Map{"COUNT(*) >": 1}).
		Statement()
	require.NoError(t, err)
	assert.Equal(t, []string{"status0", "COUNT_1"}, st.Binds.Names())
}

func TestQuery_Joins(t *testing.T) {
	db := openTestDB(t)
	m := db.Mapper()

	st, err := Select[Post](m, "posts.*").
		InnerJoin("authors", `"authors"."id" = "posts"."author_id"`).
		LeftJoin("comments", `"comments"."post_id" = "posts"."id"`).
		Where(condition.Map{"authors.name": "kim"}).
		Statement()
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT posts.* FROM "posts" INNER JOIN "authors" ON ("authors"."id" = "posts"."author_id") `+
			`LEFT JOIN "comments" ON ("comments"."post_id" = "posts"."id") WHERE ("authors"."name" = :authors_name0)`,
		st.SQL)
}

func TestQuery_FirstAndFilter(t *testing.T) {
	db := openTestDB(t)
	m := db.Mapper()
	seedPosts(t, m)
	ctx := context.Background()

	p, err := Select[Post](m).Order("status", "ASC").First(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Status)

	_, err = Select[Post](m).Where(condition.Map{"status": 99}).First(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	odd, err := Select[Post](m).Filter(ctx, func(p *Post) bool { return p.Title == "odd_title" })
	require.NoError(t, err)
	assert.Equal(t, 5, odd.Len())
}

func TestQuery_DatasourceMissing(t *testing.T) {
	db := openTestDB(t)
	m := db.Mapper()

	_, err := Select[Ghost](m).Execute(context.Background())
	require.ErrorIs(t, err, ErrDatasourceMissing)
	var missing *DatasourceMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "ghosts", missing.Datasource)
	assert.NotErrorIs(t, err, ErrAdapter)

	_, err = Select[Post](m).Where(condition.Map{"nope": 1}).Execute(context.Background())
	require.ErrorIs(t, err, ErrAdapter)
	assert.NotErrorIs(t, err, ErrDatasourceMissing)
}

func TestQuery_InvalidEntity(t *testing.T) {
	db := openTestDB(t)
	_, err := Select[int](db.Mapper()).Execute(context.Background())
	assert.Error(t, err)
}
