package badgercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

const (
	keyPrefix      = "acc/"
	writeBatchSize = 1000
	conflictRetry  = 5
)

// Cache is an accession cache kept in an embedded badger database.
type Cache struct {
	db  *badger.DB
	now func() time.Time
}

var _ ports.AccessionCache = (*Cache)(nil)

type storedRecord struct {
	TaxonID       *int    `json:"taxid,omitempty"`
	HitDefinition *string `json:"hit_def,omitempty"`
	UpdatedAt     int64   `json:"updated_at"`
}

func Open(dir string, log logrus.FieldLogger) (*Cache, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("open badger cache: directory is required")
	}
	return open(badger.DefaultOptions(dir), log)
}

func OpenInMemory(log logrus.FieldLogger) (*Cache, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), log)
}

func open(opts badger.Options, log logrus.FieldLogger) (*Cache, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	db, err := badger.Open(opts.WithLogger(log.WithField("component", "badger")))
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &Cache{db: db, now: time.Now}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) Get(ctx context.Context, id domain.AccessionID) (domain.AccessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.AccessionRecord{}, err
	}

	var record domain.AccessionRecord
	err := c.db.View(func(txn *badger.Txn) error {
		stored, err := readRecord(txn, id)
		if err != nil {
			return err
		}
		record = stored.toDomain(id)
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.AccessionRecord{}, fmt.Errorf("get accession %s: %w", id, domain.ErrAccessionNotFound)
	}
	if err != nil {
		return domain.AccessionRecord{}, fmt.Errorf("get accession %s: %w", id, err)
	}
	return record, nil
}

func (c *Cache) GetMany(ctx context.Context, ids []domain.AccessionID) (map[domain.AccessionID]domain.AccessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	found := make(map[domain.AccessionID]domain.AccessionRecord, len(ids))
	err := c.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			stored, err := readRecord(txn, id)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			found[id] = stored.toDomain(id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get accessions: %w", err)
	}
	return found, nil
}

func (c *Cache) ExistingTokens(ctx context.Context, kind domain.Kind, tokens []string) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	existing := map[string]struct{}{}
	err := c.db.View(func(txn *badger.Txn) error {
		for _, token := range tokens {
			_, err := txn.Get(recordKey(domain.NewAccessionID(kind, token)))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			existing[token] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("check existing tokens: %w", err)
	}
	return existing, nil
}

// InsertMany sets only keys that are absent when the transaction commits.
func (c *Cache) InsertMany(ctx context.Context, records []domain.AccessionRecord) error {
	var dups []domain.AccessionID
	for _, batch := range domain.Chunk(records, writeBatchSize) {
		var batchDups []domain.AccessionID
		err := c.update(ctx, func(txn *badger.Txn) error {
			batchDups = batchDups[:0]
			updatedAt := c.now().Unix()
			for _, record := range batch {
				key := recordKey(record.ID)
				_, err := txn.Get(key)
				if err == nil {
					batchDups = append(batchDups, record.ID)
					continue
				}
				if !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
				if err := setRecord(txn, key, fromDomain(record, updatedAt)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("insert accessions: %w", err)
		}
		dups = append(dups, batchDups...)
	}

	if len(dups) > 0 {
		return &domain.DuplicateAccessionError{IDs: dups}
	}
	return nil
}

func (c *Cache) UpdateMany(ctx context.Context, records []domain.AccessionRecord) error {
	for _, batch := range domain.Chunk(records, writeBatchSize) {
		err := c.update(ctx, func(txn *badger.Txn) error {
			updatedAt := c.now().Unix()
			for _, record := range batch {
				next := fromDomain(record, updatedAt)
				if next.HitDefinition == nil {
					previous, err := readRecord(txn, record.ID)
					if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
						return err
					}
					next.HitDefinition = previous.HitDefinition
				}
				if err := setRecord(txn, recordKey(record.ID), next); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("update accessions: %w", err)
		}
	}
	return nil
}

func (c *Cache) FindPending(ctx context.Context, limit int) ([]domain.AccessionID, error) {
	var pending []domain.AccessionID
	err := c.scan(ctx, func(id domain.AccessionID, stored storedRecord) bool {
		if stored.TaxonID == nil {
			pending = append(pending, id)
		}
		return limit <= 0 || len(pending) < limit
	})
	if err != nil {
		return nil, fmt.Errorf("find pending accessions: %w", err)
	}
	return pending, nil
}

func (c *Cache) Stats(ctx context.Context) (ports.CacheStats, error) {
	var stats ports.CacheStats
	err := c.scan(ctx, func(id domain.AccessionID, stored storedRecord) bool {
		stats.Total++
		switch stored.toDomain(id).Resolution.State() {
		case domain.ResolutionResolved:
			stats.Resolved++
		case domain.ResolutionUnidentified:
			stats.Unidentified++
		default:
			stats.Pending++
		}
		return true
	})
	if err != nil {
		return ports.CacheStats{}, fmt.Errorf("count accessions: %w", err)
	}
	return stats, nil
}

// update retries transactions that lost a write race to another resolver.
func (c *Cache) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < conflictRetry; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = c.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (c *Cache) scan(ctx context.Context, visit func(id domain.AccessionID, stored storedRecord) bool) error {
	return c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			id, ok := parseKey(string(item.Key()))
			if !ok {
				continue
			}
			var stored storedRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			}); err != nil {
				return fmt.Errorf("decode accession %s: %w", id, err)
			}
			if !visit(id, stored) {
				return nil
			}
		}
		return nil
	})
}

func recordKey(id domain.AccessionID) []byte {
	return []byte(keyPrefix + string(id.Kind) + "/" + id.Token)
}

func parseKey(key string) (domain.AccessionID, bool) {
	kind, token, ok := strings.Cut(strings.TrimPrefix(key, keyPrefix), "/")
	if !ok || token == "" {
		return domain.AccessionID{}, false
	}
	return domain.NewAccessionID(domain.Kind(kind), token), true
}

func readRecord(txn *badger.Txn, id domain.AccessionID) (storedRecord, error) {
	item, err := txn.Get(recordKey(id))
	if err != nil {
		return storedRecord{}, err
	}

	var stored storedRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &stored)
	})
	if err != nil {
		return storedRecord{}, fmt.Errorf("decode accession %s: %w", id, err)
	}
	return stored, nil
}

func setRecord(txn *badger.Txn, key []byte, stored storedRecord) error {
	value, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode accession %s: %w", key, err)
	}
	return txn.Set(key, value)
}

func fromDomain(record domain.AccessionRecord, updatedAt int64) storedRecord {
	stored := storedRecord{UpdatedAt: updatedAt}
	if taxon, ok := record.Resolution.TaxonID(); ok {
		stored.TaxonID = &taxon
	}
	if record.HasHitDefinition {
		hitDef := record.HitDefinition
		stored.HitDefinition = &hitDef
	}
	return stored
}

func (s storedRecord) toDomain(id domain.AccessionID) domain.AccessionRecord {
	record := domain.AccessionRecord{ID: id, Resolution: domain.Pending()}
	if s.TaxonID != nil {
		record.Resolution = domain.ResolutionFromTaxon(*s.TaxonID)
	}
	if s.HitDefinition != nil {
		record.HitDefinition = *s.HitDefinition
		record.HasHitDefinition = true
	}
	return record
}
