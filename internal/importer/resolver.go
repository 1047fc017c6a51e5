package importer

import (
	"context"
	"sort"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Resolver turns referenced names into ids, one lookup per reference field
// per batch. Resolved names are cached for the rest of the run, so later
// batches only query names they introduce.
type Resolver struct {
	cache   *ReferenceCache
	logger  *zap.Logger
	entity  EntityType
	created map[string]int
}

// NewResolver returns a resolver filling cache.
func NewResolver(cache *ReferenceCache, entity EntityType, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cache: cache, logger: logger, entity: entity, created: make(map[string]int)}
}

// Cache returns the run's reference cache.
func (r *Resolver) Cache() *ReferenceCache { return r.cache }

// Created returns how many reference rows were inserted per table so far.
func (r *Resolver) Created() map[string]int { return r.created }

// Resolve makes sure every reference value in batch has a cached id.
//
// Missing names are created in one statement. If that insert loses a race
// with another writer the lookup-then-create sequence runs once more; a
// second failure is returned as ErrReferenceResolution.
func (r *Resolver) Resolve(ctx context.Context, tx Tx, batch []ImportRow, specs []ReferenceSpec) error {
	for _, spec := range specs {
		pending := r.pending(batch, spec)
		if len(pending) == 0 {
			continue
		}

		err := r.resolveTable(ctx, tx, spec.Table, pending)
		if errors.Is(err, ErrUniqueViolation) {
			r.logger.Warn("reference insert raced with another writer, retrying",
				zap.String("table", spec.Table),
				zap.Int("names", len(pending)),
			)
			err = r.resolveTable(ctx, tx, spec.Table, pending)
		}
		if err != nil {
			return resolutionError(spec.Table, err)
		}
	}
	return nil
}

// pending returns the distinct, not yet cached values of spec's field in
// batch, sorted for stable statements.
func (r *Resolver) pending(batch []ImportRow, spec ReferenceSpec) []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range batch {
		name := row.ReferenceValue(spec.Field)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := r.cache.Get(spec.Table, name); ok {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Resolver) resolveTable(ctx context.Context, tx Tx, table string, names []string) error {
	found, err := tx.LookupReferences(ctx, table, names)
	if err != nil {
		return errors.Wrap(err, "lookup")
	}
	for name, id := range found {
		r.cache.Put(table, name, id)
	}

	var missing []string
	for _, name := range names {
		if _, ok := r.cache.Get(table, name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	created, err := tx.InsertReferences(ctx, table, missing)
	if err != nil {
		return errors.Wrap(err, "insert")
	}
	for name, id := range created {
		r.cache.Put(table, name, id)
	}

	for _, name := range missing {
		if _, ok := r.cache.Get(table, name); !ok {
			return errors.Errorf("%q was not created", name)
		}
	}

	r.created[table] += len(missing)
	r.logger.Debug("created references",
		zap.String("entity", string(r.entity)),
		zap.String("table", table),
		zap.Int("count", len(missing)),
	)
	return nil
}
