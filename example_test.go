package relmap_test

import (
	"context"
	"fmt"
	"log"

	"github.com/coregx/relmap"
	_ "modernc.org/sqlite"
)

type Account struct {
	ID     int64  `db:"id"`
	Name   string `db:"name"`
	Age    int    `db:"age"`
	Status int    `db:"status"`
	Role   string `db:"role"`
}

func Example() {
	db, err := relmap.Open("sqlite", ":memory:", relmap.WithMaxOpenConns(1))
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	if _, err := db.SQLDB().Exec(`CREATE TABLE accounts (
		id INTEGER PRIMARY KEY, name TEXT, age INTEGER, status INTEGER, role TEXT)`); err != nil {
		log.Fatal(err)
	}

	m := db.Mapper()
	for _, a := range []Account{
		{Name: "Alice", Age: 25, Status: 1, Role: "user"},
		{Name: "Bob", Age: 17, Status: 1, Role: "user"},
		{Name: "Charlie", Age: 30, Status: 0, Role: "user"},
		{Name: "Diana", Age: 22, Status: 1, Role: "admin"},
	} {
		if err := m.Insert(ctx, &a); err != nil {
			log.Fatal(err)
		}
	}

	adults := relmap.Select[Account](m).Where(relmap.Where{"status": 1, "age >=": 18})
	names, err := adults.Order("name", "ASC").Map(ctx, func(a *Account) any { return a.Name })
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(names)

	staff := adults.OrWhere(relmap.Where{"role": "admin"})
	st, err := staff.Statement()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(st.SQL)
	// Output:
	// [Alice Diana]
	// SELECT * FROM "accounts" WHERE (("age" >= :age0 AND "status" = :status1) OR ("role" = :role2))
}
