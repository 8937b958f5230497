package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
	"github.com/mattn/go-sqlite3"
)

// Accessions is the accession cache view of a Store.
type Accessions struct {
	*Store
}

var _ ports.AccessionCache = (*Accessions)(nil)

func (s *Accessions) Get(ctx context.Context, id domain.AccessionID) (domain.AccessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT kind, token, tax_id, hit_def FROM accessions WHERE kind = ? AND token = ?`,
		string(id.Kind), id.Token)

	record, err := scanAccession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AccessionRecord{}, fmt.Errorf("get accession %s: %w", id, domain.ErrAccessionNotFound)
	}
	if err != nil {
		return domain.AccessionRecord{}, fmt.Errorf("get accession %s: %w", id, err)
	}
	return record, nil
}

func (s *Accessions) GetMany(ctx context.Context, ids []domain.AccessionID) (map[domain.AccessionID]domain.AccessionRecord, error) {
	byKind := map[domain.Kind][]string{}
	for _, id := range ids {
		byKind[id.Kind] = append(byKind[id.Kind], id.Token)
	}

	found := make(map[domain.AccessionID]domain.AccessionRecord, len(ids))
	for kind, tokens := range byKind {
		for _, chunk := range domain.Chunk(tokens, maxVariables) {
			args := make([]any, 0, len(chunk)+1)
			args = append(args, string(kind))
			for _, token := range chunk {
				args = append(args, token)
			}

			rows, err := s.db.QueryContext(ctx,
				`SELECT kind, token, tax_id, hit_def FROM accessions WHERE kind = ? AND token IN (`+placeholders(len(chunk))+`)`,
				args...)
			if err != nil {
				return nil, fmt.Errorf("query accessions: %w", err)
			}
			for rows.Next() {
				record, err := scanAccession(rows)
				if err != nil {
					_ = rows.Close()
					return nil, fmt.Errorf("scan accession: %w", err)
				}
				found[record.ID] = record
			}
			if err := closeRows(rows); err != nil {
				return nil, fmt.Errorf("query accessions: %w", err)
			}
		}
	}
	return found, nil
}

func (s *Accessions) ExistingTokens(ctx context.Context, kind domain.Kind, tokens []string) (map[string]struct{}, error) {
	existing := map[string]struct{}{}
	for _, chunk := range domain.Chunk(tokens, maxVariables) {
		args := make([]any, 0, len(chunk)+1)
		args = append(args, string(kind))
		for _, token := range chunk {
			args = append(args, token)
		}

		rows, err := s.db.QueryContext(ctx,
			`SELECT token FROM accessions WHERE kind = ? AND token IN (`+placeholders(len(chunk))+`)`,
			args...)
		if err != nil {
			return nil, fmt.Errorf("query existing tokens: %w", err)
		}
		for rows.Next() {
			var token string
			if err := rows.Scan(&token); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan existing token: %w", err)
			}
			existing[token] = struct{}{}
		}
		if err := closeRows(rows); err != nil {
			return nil, fmt.Errorf("query existing tokens: %w", err)
		}
	}
	return existing, nil
}

// InsertMany writes every record not yet stored and reports the rest as
// duplicates once the transaction has committed.
func (s *Accessions) InsertMany(ctx context.Context, records []domain.AccessionRecord) error {
	if len(records) == 0 {
		return nil
	}

	var dups []domain.AccessionID
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO accessions (kind, token, tax_id, hit_def, updated_at) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		updatedAt := s.now().Unix()
		for _, record := range records {
			taxon, hitDef := accessionColumns(record)
			_, err := stmt.ExecContext(ctx, string(record.ID.Kind), record.ID.Token, taxon, hitDef, updatedAt)
			if isConstraintViolation(err) {
				dups = append(dups, record.ID)
				continue
			}
			if err != nil {
				return fmt.Errorf("insert accession %s: %w", record.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert accessions: %w", err)
	}

	if len(dups) > 0 {
		return &domain.DuplicateAccessionError{IDs: dups}
	}
	return nil
}

func (s *Accessions) UpdateMany(ctx context.Context, records []domain.AccessionRecord) error {
	if len(records) == 0 {
		return nil
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO accessions (kind, token, tax_id, hit_def, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (kind, token) DO UPDATE SET
				tax_id = excluded.tax_id,
				hit_def = COALESCE(excluded.hit_def, accessions.hit_def),
				updated_at = excluded.updated_at`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		updatedAt := s.now().Unix()
		for _, record := range records {
			taxon, hitDef := accessionColumns(record)
			if _, err := stmt.ExecContext(ctx, string(record.ID.Kind), record.ID.Token, taxon, hitDef, updatedAt); err != nil {
				return fmt.Errorf("update accession %s: %w", record.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update accessions: %w", err)
	}
	return nil
}

func (s *Accessions) FindPending(ctx context.Context, limit int) ([]domain.AccessionID, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, token FROM accessions WHERE tax_id IS NULL ORDER BY updated_at, kind, token LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query pending accessions: %w", err)
	}

	var pending []domain.AccessionID
	for rows.Next() {
		var kind, token string
		if err := rows.Scan(&kind, &token); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan pending accession: %w", err)
		}
		pending = append(pending, domain.NewAccessionID(domain.Kind(kind), token))
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("query pending accessions: %w", err)
	}
	return pending, nil
}

func (s *Accessions) Stats(ctx context.Context) (ports.CacheStats, error) {
	var stats ports.CacheStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(tax_id IS NULL), 0),
			COALESCE(SUM(tax_id = ?), 0)
		FROM accessions`, domain.UnidentifiedOrganismTaxID).
		Scan(&stats.Total, &stats.Pending, &stats.Unidentified)
	if err != nil {
		return ports.CacheStats{}, fmt.Errorf("count accessions: %w", err)
	}
	stats.Resolved = stats.Total - stats.Pending - stats.Unidentified
	return stats, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccession(row rowScanner) (domain.AccessionRecord, error) {
	var (
		kind, token string
		taxon       sql.NullInt64
		hitDef      sql.NullString
	)
	if err := row.Scan(&kind, &token, &taxon, &hitDef); err != nil {
		return domain.AccessionRecord{}, err
	}

	return domain.AccessionRecord{
		ID:               domain.NewAccessionID(domain.Kind(kind), token),
		Resolution:       domain.ResolutionFromStored(int(taxon.Int64), taxon.Valid),
		HitDefinition:    hitDef.String,
		HasHitDefinition: hitDef.Valid,
	}, nil
}

func accessionColumns(record domain.AccessionRecord) (sql.NullInt64, sql.NullString) {
	var taxon sql.NullInt64
	if id, ok := record.Resolution.TaxonID(); ok {
		taxon = sql.NullInt64{Int64: int64(id), Valid: true}
	}
	var hitDef sql.NullString
	if record.HasHitDefinition {
		hitDef = sql.NullString{String: record.HitDefinition, Valid: true}
	}
	return taxon, hitDef
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	return rows.Close()
}
