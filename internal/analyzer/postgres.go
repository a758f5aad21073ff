package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type postgresExplainer struct{}

func (postgresExplainer) Explain(ctx context.Context, q Querier, query string, args []any) (*Plan, error) {
	raw, err := scanSingle(ctx, q, "EXPLAIN (FORMAT JSON) "+query, args)
	if err != nil {
		return nil, err
	}
	return parsePostgres(raw)
}

type pgNode struct {
	NodeType  string   `json:"Node Type"`
	IndexName string   `json:"Index Name"`
	TotalCost float64  `json:"Total Cost"`
	PlanRows  int64    `json:"Plan Rows"`
	Plans     []pgNode `json:"Plans"`
}

func parsePostgres(raw string) (*Plan, error) {
	var roots []struct {
		Plan pgNode `json:"Plan"`
	}
	if err := json.Unmarshal([]byte(raw), &roots); err != nil {
		return nil, fmt.Errorf("relmap: decode postgres plan: %w", err)
	}
	if len(roots) == 0 {
		return nil, errors.New("relmap: empty postgres plan")
	}

	root := roots[0].Plan
	p := &Plan{Database: "postgres", Cost: root.TotalCost, EstimatedRows: root.PlanRows, Raw: raw}
	walkPostgres(&root, p)
	return p, nil
}

func walkPostgres(n *pgNode, p *Plan) {
	switch {
	case strings.Contains(n.NodeType, "Index"):
		p.noteIndex(n.IndexName)
	case n.NodeType == "Seq Scan":
		p.FullScan = true
	}
	for i := range n.Plans {
		walkPostgres(&n.Plans[i], p)
	}
}
