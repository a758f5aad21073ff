package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

type mysqlExplainer struct{}

func (mysqlExplainer) Explain(ctx context.Context, q Querier, query string, args []any) (*Plan, error) {
	raw, err := scanSingle(ctx, q, "EXPLAIN FORMAT=JSON "+query, args)
	if err != nil {
		return nil, err
	}
	return parseMySQL(raw)
}

type myTable struct {
	AccessType   string `json:"access_type"`
	Key          string `json:"key"`
	RowsExamined int64  `json:"rows_examined_per_scan"`
}

// myBlock covers query_block and the grouping/ordering wrappers, which all
// nest either one table or a nested loop of tables.
type myBlock struct {
	CostInfo struct {
		QueryCost string `json:"query_cost"`
	} `json:"cost_info"`
	Table      *myTable `json:"table"`
	NestedLoop []struct {
		Table *myTable `json:"table"`
	} `json:"nested_loop"`
	Grouping *myBlock `json:"grouping_operation"`
	Ordering *myBlock `json:"ordering_operation"`
}

func parseMySQL(raw string) (*Plan, error) {
	var root struct {
		QueryBlock myBlock `json:"query_block"`
	}
	if err := json.Unmarshal([]byte(raw), &root); err != nil {
		return nil, fmt.Errorf("relmap: decode mysql plan: %w", err)
	}
	p := &Plan{Database: "mysql", Raw: raw}
	if c := root.QueryBlock.CostInfo.QueryCost; c != "" {
		if f, err := strconv.ParseFloat(c, 64); err == nil {
			p.Cost = f
		}
	}
	walkMySQL(&root.QueryBlock, p)
	return p, nil
}

func walkMySQL(b *myBlock, p *Plan) {
	if b == nil {
		return
	}
	tables := []*myTable{b.Table}
	for _, n := range b.NestedLoop {
		tables = append(tables, n.Table)
	}
	for _, t := range tables {
		if t == nil {
			continue
		}
		if t.Key != "" {
			p.noteIndex(t.Key)
		}
		if t.AccessType == "ALL" {
			p.FullScan = true
		}
		p.EstimatedRows += t.RowsExamined
	}
	walkMySQL(b.Grouping, p)
	walkMySQL(b.Ordering, p)
}
