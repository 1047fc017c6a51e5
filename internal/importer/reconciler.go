package importer

import (
	"context"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Stamp carries the audit identity and time written on every create and
// update of a run.
type Stamp struct {
	OperatorID int64
	At         time.Time
}

// ReconcileOptions are the per-run settings the reconciler needs.
type ReconcileOptions struct {
	UpdateExisting bool
	MatchMode      MatchMode
}

type reconcileContext struct {
	ReconcileOptions
	cache *ReferenceCache
	stamp Stamp
	// created holds the ids inserted earlier in the same run.
	created map[int64]bool
}

// preexisting drops candidates created earlier in the run, so rows only
// ever match entities that existed before the import started.
func (rc reconcileContext) preexisting(candidates []ExistingEntity) []ExistingEntity {
	if len(rc.created) == 0 {
		return candidates
	}
	out := candidates[:0:0]
	for _, c := range candidates {
		if !rc.created[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func (rc reconcileContext) recordCreated(ids []int64) {
	for _, id := range ids {
		rc.created[id] = true
	}
}

// Reconciler decides create or update for each row of a batch and applies
// the result in two phases: one bulk insert of all creates, then one update
// per matched entity.
//
// A Reconciler serves one run. It remembers the entities it created so that
// later batches never match them, which keeps the outcome independent of
// the batch size.
type Reconciler struct {
	def     *EntityDefinition
	created map[int64]bool
}

// NewReconciler returns a reconciler for one run of def's entity type.
func NewReconciler(def *EntityDefinition) *Reconciler {
	return &Reconciler{def: def, created: make(map[int64]bool)}
}

// Reconcile applies batch inside tx. Every reference value of the batch must
// already be in cache. Store failures are returned as ErrReconciliation and
// leave the transaction to be rolled back by the caller.
func (r *Reconciler) Reconcile(ctx context.Context, tx Tx, batch []ImportRow, cache *ReferenceCache, opts ReconcileOptions, stamp Stamp) (Counts, error) {
	if len(batch) == 0 {
		return Counts{}, nil
	}
	if opts.MatchMode == "" {
		opts.MatchMode = MatchContains
	}
	return r.def.reconcile(ctx, tx, batch, reconcileContext{
		ReconcileOptions: opts,
		cache:            cache,
		stamp:            stamp,
		created:          r.created,
	})
}

// plan is the staged work of one batch: creates in input order and updates
// keyed by the matched entity id.
type plan[C any, U any] struct {
	creates []C
	updates []planUpdate[U]
}

type planUpdate[U any] struct {
	id      int64
	payload U
}

func (p *plan[C, U]) create(c C) { p.creates = append(p.creates, c) }

func (p *plan[C, U]) update(id int64, u U) {
	p.updates = append(p.updates, planUpdate[U]{id: id, payload: u})
}

// batchNames returns the distinct natural keys of batch.
func batchNames(batch []ImportRow) []string {
	seen := make(map[string]bool, len(batch))
	names := make([]string, 0, len(batch))
	for _, row := range batch {
		name := row.NaturalKey()
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Matches reports whether an existing name matches an incoming one.
func Matches(mode MatchMode, existing, incoming string) bool {
	if incoming == "" {
		return false
	}
	switch mode {
	case MatchExact:
		return strings.EqualFold(existing, incoming)
	case MatchFuzzy:
		return fuzzy.MatchNormalizedFold(incoming, existing)
	default:
		return strings.Contains(strings.ToLower(existing), strings.ToLower(incoming))
	}
}

// SelectMatch picks at most one candidate for incoming. Among matching
// candidates a case-insensitive exact match wins, then the smallest edit
// distance, then the lowest id.
func SelectMatch(mode MatchMode, incoming string, candidates []ExistingEntity) (ExistingEntity, bool) {
	var (
		best      ExistingEntity
		bestExact bool
		bestDist  int
		found     bool
	)

	lowerIn := strings.ToLower(incoming)
	for _, c := range candidates {
		if !Matches(mode, c.Name, incoming) {
			continue
		}

		exact := strings.EqualFold(c.Name, incoming)
		dist := fuzzy.LevenshteinDistance(lowerIn, strings.ToLower(c.Name))

		if !found || better(exact, dist, c.ID, bestExact, bestDist, best.ID) {
			best, bestExact, bestDist, found = c, exact, dist, true
		}
	}

	return best, found
}

func better(exact bool, dist int, id int64, bestExact bool, bestDist int, bestID int64) bool {
	if exact != bestExact {
		return exact
	}
	if dist != bestDist {
		return dist < bestDist
	}
	return id < bestID
}
