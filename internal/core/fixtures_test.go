package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/coregx/relmap/internal/condition"
	"github.com/coregx/relmap/internal/entity"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type Post struct {
	ID        int64     `db:"id"`
	Title     string    `db:"title"`
	Body      string    `db:"body"`
	Status    int       `db:"status"`
	Published bool      `db:"published"`
	AuthorID  int64     `db:"author_id"`
	CreatedAt time.Time `db:"created_at" type:"datetime"`
}

func (Post) Relations() []entity.Relation {
	comments := entity.HasMany("comments", Comment{}, "post_id")
	comments.OrderBy = "id DESC"
	approved := entity.HasMany("approved_comments", Comment{}, "post_id")
	approved.Where = condition.Map{"approved": true}
	author := entity.HasOne("author", Author{}, "id")
	author.LocalKey = "author_id"
	return []entity.Relation{
		comments,
		approved,
		author,
		entity.HasManyThrough("tags", Tag{}, "post_tags", "post_id", "tag_id"),
	}
}

type Comment struct {
	ID       int64  `db:"id"`
	PostID   int64  `db:"post_id"`
	Body     string `db:"body"`
	Approved bool   `db:"approved"`
}

type Author struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	Password string `db:"password"`
}

type Tag struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Setting has a manual string key.
type Setting struct {
	Key   string `db:"key,pk"`
	Value string `db:"value"`
}

// Ghost maps a table that is never created.
type Ghost struct {
	ID int64 `db:"id"`
}

const schema = `
CREATE TABLE posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	status INTEGER NOT NULL DEFAULT 0,
	published INTEGER NOT NULL DEFAULT 0,
	author_id INTEGER NOT NULL DEFAULT 0,
	created_at TEXT
);
CREATE TABLE comments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	post_id INTEGER NOT NULL,
	body TEXT NOT NULL,
	approved INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE authors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	password TEXT NOT NULL DEFAULT ''
);
CREATE TABLE tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL
);
CREATE TABLE post_tags (
	post_id INTEGER NOT NULL,
	tag_id INTEGER NOT NULL
);
CREATE TABLE settings (
	"key" TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// openTestDB opens a private in-memory SQLite database with the schema
// loaded. A single connection keeps every statement on the same database.
func openTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	db, err := Open("sqlite", ":memory:", append([]Option{WithMaxOpenConns(1)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.SQLDB().Exec(schema)
	require.NoError(t, err)
	return db
}

// seedPosts inserts ten posts with status 1..10. Odd statuses are titled
// "odd_title", even ones "even_title" and published.
func seedPosts(t *testing.T, m *Mapper) {
	t.Helper()
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 10; i++ {
		p := &Post{
			Title:     "odd_title",
			Body:      fmt.Sprintf("body %d", i),
			Status:    i,
			AuthorID:  int64(i%2 + 1),
			CreatedAt: created.Add(time.Duration(i) * time.Hour),
		}
		if i%2 == 0 {
			p.Title = "even_title"
			p.Published = true
		}
		require.NoError(t, m.Insert(ctx, p))
	}
}

// hookRecorder collects query events.
type hookRecorder struct {
	mu     sync.Mutex
	events []QueryEvent
}

func (h *hookRecorder) hook(_ context.Context, e QueryEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
}

func (h *hookRecorder) count(operation string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e.Operation == operation {
			n++
		}
	}
	return n
}

func (h *hookRecorder) last() QueryEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events[len(h.events)-1]
}
