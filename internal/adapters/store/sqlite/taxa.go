package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
)

const (
	replaceBatchSize = 5000
	maxLineageDepth  = 256
)

// Taxa is the taxonomy view of a Store.
type Taxa struct {
	*Store
}

var _ ports.TaxonStore = (*Taxa)(nil)

func (s *Taxa) Get(ctx context.Context, id int) (domain.TaxonNode, error) {
	var (
		node  domain.TaxonNode
		names string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, parent_id, rank, names FROM taxa WHERE id = ?`, id).
		Scan(&node.ID, &node.ParentID, &node.Rank, &names)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TaxonNode{}, fmt.Errorf("get taxon %d: %w", id, domain.ErrTaxonNotFound)
	}
	if err != nil {
		return domain.TaxonNode{}, fmt.Errorf("get taxon %d: %w", id, err)
	}
	if err := json.Unmarshal([]byte(names), &node.Names); err != nil {
		return domain.TaxonNode{}, fmt.Errorf("decode names of taxon %d: %w", id, err)
	}
	return node, nil
}

func (s *Taxa) KnownTaxa(ctx context.Context, ids []int) (map[int]struct{}, error) {
	known := map[int]struct{}{}
	for _, chunk := range domain.Chunk(ids, maxVariables) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT id FROM taxa WHERE id IN (`+placeholders(len(chunk))+`)`, intArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("query known taxa: %w", err)
		}
		for rows.Next() {
			var id int
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan known taxon: %w", err)
			}
			known[id] = struct{}{}
		}
		if err := closeRows(rows); err != nil {
			return nil, fmt.Errorf("query known taxa: %w", err)
		}
	}
	return known, nil
}

// Ancestries walks parent links inside SQLite. Rows come back deepest
// ancestor first so each lineage is built root-most first.
func (s *Taxa) Ancestries(ctx context.Context, ids []int) (map[int][]domain.TaxonNode, error) {
	lineages := make(map[int][]domain.TaxonNode, len(ids))
	for _, chunk := range domain.Chunk(ids, maxVariables) {
		args := append(intArgs(chunk), maxLineageDepth, domain.RootTaxonID)
		rows, err := s.db.QueryContext(ctx, `
			WITH RECURSIVE lineage(leaf, id, parent_id, rank, names, depth) AS (
				SELECT id, id, parent_id, rank, names, 0 FROM taxa WHERE id IN (`+placeholders(len(chunk))+`)
				UNION ALL
				SELECT l.leaf, t.id, t.parent_id, t.rank, t.names, l.depth + 1
				FROM lineage l JOIN taxa t ON t.id = l.parent_id
				WHERE l.parent_id <> l.id AND l.depth < ?
			)
			SELECT leaf, id, parent_id, rank, names FROM lineage
			WHERE id <> ?
			ORDER BY leaf, depth DESC`, args...)
		if err != nil {
			return nil, fmt.Errorf("query ancestries: %w", err)
		}

		for rows.Next() {
			var (
				leaf  int
				node  domain.TaxonNode
				names string
			)
			if err := rows.Scan(&leaf, &node.ID, &node.ParentID, &node.Rank, &names); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan ancestry: %w", err)
			}
			if err := json.Unmarshal([]byte(names), &node.Names); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("decode names of taxon %d: %w", node.ID, err)
			}
			lineages[leaf] = append(lineages[leaf], node)
		}
		if err := closeRows(rows); err != nil {
			return nil, fmt.Errorf("query ancestries: %w", err)
		}
	}
	return lineages, nil
}

// ReplaceAll swaps the whole taxonomy in one transaction. A failing source
// leaves the previous taxonomy in place.
func (s *Taxa) ReplaceAll(ctx context.Context, nodes iter.Seq2[domain.TaxonNode, error]) (int, error) {
	count := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM taxa`); err != nil {
			return fmt.Errorf("clear taxa: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO taxa (id, parent_id, rank, names) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for node, err := range nodes {
			if err != nil {
				return fmt.Errorf("read taxon: %w", err)
			}
			names, err := json.Marshal(node.Names)
			if err != nil {
				return fmt.Errorf("encode names of taxon %d: %w", node.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, node.ID, node.ParentID, node.Rank, string(names)); err != nil {
				return fmt.Errorf("insert taxon %d: %w", node.ID, err)
			}

			count++
			if count%replaceBatchSize == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("replace taxa: %w", err)
	}
	return count, nil
}

func (s *Taxa) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM taxa`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count taxa: %w", err)
	}
	return count, nil
}

func intArgs(ids []int) []any {
	args := make([]any, 0, len(ids)+2)
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}
