package core

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/coregx/relmap/internal/condition"
	"github.com/coregx/relmap/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaw(t *testing.T) {
	db := openTestDB(t)
	m := db.Mapper()
	seedPosts(t, m)
	ctx := context.Background()

	coll, err := Raw[Post](ctx, m, `SELECT * FROM {{posts}} WHERE [[status]] >= :min ORDER BY [[status]]`,
		map[string]any{"min": 8})
	require.NoError(t, err)
	assert.Equal(t, []int{8, 9, 10}, MapCollection(coll, func(p *Post) int { return p.Status }))

	_, err = Raw[Post](ctx, m, `SELECT * FROM posts WHERE status = :missing`, nil)
	assert.ErrorIs(t, err, condition.ErrValidation)

	// Literals and casts are left alone.
	coll, err = Raw[Post](ctx, m, `SELECT * FROM posts WHERE title = 'odd:title' OR status = :s`, map[string]any{"s": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, coll.Len())
}

func TestExec(t *testing.T) {
	db := openTestDB(t)
	m := db.Mapper()
	seedPosts(t, m)
	ctx := context.Background()

	res, err := m.Exec(ctx, `UPDATE posts SET body = :body WHERE status > :s`, map[string]any{"body": "x", "s": 5})
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	_, err = m.Exec(ctx, `DROP TABLE nothing_here`, nil)
	assert.ErrorIs(t, err, ErrDatasourceMissing)
}

func TestRaw_Validator(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))
	db := openTestDB(t,
		WithValidator(security.NewValidator()),
		WithAuditor(security.NewAuditor(l, security.AuditWrites)),
	)
	m := db.Mapper()
	seedPosts(t, m)
	ctx := context.Background()
	buf.Reset()

	_, err := Raw[Post](ctx, m, `SELECT * FROM posts WHERE id = 1 UNION SELECT * FROM posts`, nil)
	require.ErrorIs(t, err, security.ErrRejected)

	_, err = Raw[Post](ctx, m, `SELECT * FROM posts WHERE title = :t`, map[string]any{"t": "x' OR '1'='1"})
	var rejected *security.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "t", rejected.Bind)

	coll, err := Raw[Post](ctx, m, `SELECT * FROM posts WHERE title = :t`, map[string]any{"t": "odd_title"})
	require.NoError(t, err)
	assert.Equal(t, 5, coll.Len())

	var rejections int
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(line, &rec))
		if rec["msg"] == "statement rejected" {
			rejections++
		}
	}
	assert.Equal(t, 2, rejections)
}
