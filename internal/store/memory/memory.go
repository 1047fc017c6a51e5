// Package memory provides an in-memory importer.Store.
//
// Each transaction works on a private copy of the data that replaces the
// shared copy on Commit, so a rolled back import leaves no trace. Reference
// names are unique per table, like the database constraint. Every statement
// is recorded, and failures can be injected per operation, which makes the
// store suitable for tests of the import engine and its callers.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/bulkimport/internal/importer"
)

// Operation names used in the statement log and by Fail.
const (
	OpBegin                   = "Begin"
	OpCommit                  = "Commit"
	OpLookupReferences        = "LookupReferences"
	OpInsertReferences        = "InsertReferences"
	OpFindCustomers           = "FindCustomers"
	OpInsertCustomers         = "InsertCustomers"
	OpUpdateCustomer          = "UpdateCustomer"
	OpInsertCustomerPlatforms = "InsertCustomerPlatforms"
	OpUpdateCustomerPlatform  = "UpdateCustomerPlatform"
	OpFindScrews              = "FindScrews"
	OpInsertScrews            = "InsertScrews"
	OpUpdateScrew             = "UpdateScrew"
)

// ErrTxClosed is returned when a finished transaction is used.
var ErrTxClosed = errors.New("tx is closed")

// Customer is a stored customer.
type Customer struct {
	ID            int64
	Name          string
	Phone         *string
	Email         *string
	Address       *string
	Note          *string
	LastContactAt *time.Time
	CreatedBy     int64
	AssignedTo    int64
	CreatedAt     time.Time
	UpdatedBy     *int64
	UpdatedAt     *time.Time
}

// CustomerPlatform is a stored customer_platforms row.
type CustomerPlatform struct {
	CustomerID int64
	PlatformID int64
	UserID     int64
}

// Screw is a stored screw.
type Screw struct {
	ID              int64
	Name            string
	ComponentTypeID *int64
	MaterialID      *int64
	Size            *string
	Quantity        *int64
	Price           *decimal.Decimal
	Unit            *string
	Note            *string
	ReceivedAt      *time.Time
	CreatedBy       int64
	AssignedTo      int64
	CreatedAt       time.Time
	UpdatedBy       *int64
	UpdatedAt       *time.Time
}

// Statement is one recorded store call.
type Statement struct {
	Op    string
	Table string
	Args  int
}

type data struct {
	nextID    int64
	refs      map[string]map[string]int64
	customers map[int64]Customer
	links     []CustomerPlatform
	screws    map[int64]Screw
}

func newData() *data {
	return &data{
		refs:      make(map[string]map[string]int64),
		customers: make(map[int64]Customer),
		screws:    make(map[int64]Screw),
	}
}

func (d *data) clone() *data {
	c := &data{
		nextID:    d.nextID,
		refs:      make(map[string]map[string]int64, len(d.refs)),
		customers: maps.Clone(d.customers),
		links:     append([]CustomerPlatform(nil), d.links...),
		screws:    maps.Clone(d.screws),
	}
	for table, names := range d.refs {
		c.refs[table] = maps.Clone(names)
	}
	return c
}

func (d *data) id() int64 {
	d.nextID++
	return d.nextID
}

type failure struct {
	call int
	err  error
}

// Store is an in-memory importer.Store. The zero value is not usable; call New.
type Store struct {
	mu       sync.Mutex
	data     *data
	log      []Statement
	calls    map[string]int
	failures map[string][]failure
}

var _ importer.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		data:     newData(),
		calls:    make(map[string]int),
		failures: make(map[string][]failure),
	}
}

// Fail makes the n-th call (1-based, counted over the store's lifetime) of
// op return err. With n == 0 every call fails.
func (s *Store) Fail(op string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], failure{call: n, err: err})
}

// record logs a statement and returns the injected failure, if any.
func (s *Store) record(op, table string, args int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log = append(s.log, Statement{Op: op, Table: table, Args: args})
	s.calls[op]++

	for _, f := range s.failures[op] {
		if f.call == 0 || f.call == s.calls[op] {
			return f.err
		}
	}
	return nil
}

// Statements returns a copy of the statement log.
func (s *Store) Statements() []Statement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Statement(nil), s.log...)
}

// Count returns how many statements of op were issued, optionally limited
// to one table.
func (s *Store) Count(op, table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.log {
		if st.Op == op && (table == "" || st.Table == table) {
			n++
		}
	}
	return n
}

// ResetLog clears the statement log and call counters.
func (s *Store) ResetLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
	s.calls = make(map[string]int)
}

// Begin starts a transaction on a snapshot of the committed data.
func (s *Store) Begin(ctx context.Context) (importer.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.record(OpBegin, "", 0); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return &Tx{store: s, data: s.data.clone()}, nil
}

// =============================================================================
// Seeding and inspection
// =============================================================================

// SeedReference stores name in table and returns its id.
func (s *Store) SeedReference(table, name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.data.refs[table][name]; ok {
		return id
	}
	if s.data.refs[table] == nil {
		s.data.refs[table] = make(map[string]int64)
	}
	id := s.data.id()
	s.data.refs[table][name] = id
	return id
}

// SeedCustomer stores a customer owned by operator and returns its id.
func (s *Store) SeedCustomer(name string, operator int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.data.id()
	s.data.customers[id] = Customer{ID: id, Name: name, CreatedBy: operator, AssignedTo: operator}
	return id
}

// SeedCustomerPlatform stores a join row.
func (s *Store) SeedCustomerPlatform(customerID, platformID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.links = append(s.data.links, CustomerPlatform{CustomerID: customerID, PlatformID: platformID, UserID: userID})
}

// SeedScrew stores a screw and returns its id.
func (s *Store) SeedScrew(name string, operator int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.data.id()
	s.data.screws[id] = Screw{ID: id, Name: name, CreatedBy: operator, AssignedTo: operator}
	return id
}

// References returns the committed names of table.
func (s *Store) References(table string) map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.data.refs[table])
}

// Customers returns the committed customers ordered by id.
func (s *Store) Customers() []Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Customer, 0, len(s.data.customers))
	for _, c := range s.data.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CustomerPlatforms returns the committed join rows.
func (s *Store) CustomerPlatforms() []CustomerPlatform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CustomerPlatform(nil), s.data.links...)
}

// Screws returns the committed screws ordered by id.
func (s *Store) Screws() []Screw {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Screw, 0, len(s.data.screws))
	for _, sc := range s.data.screws {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// Transaction
// =============================================================================

// Tx is a transaction of Store.
type Tx struct {
	store *Store
	data  *data
	done  bool
}

var _ importer.Tx = (*Tx)(nil)

func (tx *Tx) exec(ctx context.Context, op, table string, args int) error {
	if tx.done {
		return ErrTxClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.store.record(op, table, args)
}

// Commit publishes the transaction's data.
func (tx *Tx) Commit(ctx context.Context) error {
	if err := tx.exec(ctx, OpCommit, "", 0); err != nil {
		return err
	}
	tx.store.mu.Lock()
	tx.store.data = tx.data
	tx.store.mu.Unlock()
	tx.done = true
	return nil
}

// Rollback discards the transaction. It is a no-op once finished.
func (tx *Tx) Rollback(context.Context) error {
	tx.done = true
	return nil
}

func (tx *Tx) LookupReferences(ctx context.Context, table string, names []string) (map[string]int64, error) {
	if err := tx.exec(ctx, OpLookupReferences, table, len(names)); err != nil {
		return nil, err
	}
	out := make(map[string]int64)
	for _, name := range names {
		if id, ok := tx.data.refs[table][name]; ok {
			out[name] = id
		}
	}
	return out, nil
}

func (tx *Tx) InsertReferences(ctx context.Context, table string, names []string) (map[string]int64, error) {
	if err := tx.exec(ctx, OpInsertReferences, table, len(names)); err != nil {
		return nil, err
	}
	refs := tx.data.refs[table]
	for _, name := range names {
		if _, exists := refs[name]; exists {
			return nil, errors.Wrapf(importer.ErrUniqueViolation, "%s.name %q", table, name)
		}
	}
	if refs == nil {
		refs = make(map[string]int64)
		tx.data.refs[table] = refs
	}
	out := make(map[string]int64, len(names))
	for _, name := range names {
		id := tx.data.id()
		refs[name] = id
		out[name] = id
	}
	return out, nil
}

func (tx *Tx) FindCustomers(ctx context.Context, names []string, mode importer.MatchMode) ([]importer.ExistingEntity, error) {
	if err := tx.exec(ctx, OpFindCustomers, "customers", len(names)); err != nil {
		return nil, err
	}
	var out []importer.ExistingEntity
	for _, c := range tx.data.customers {
		if matchesAny(mode, c.Name, names) {
			out = append(out, importer.ExistingEntity{ID: c.ID, Name: c.Name})
		}
	}
	sortEntities(out)
	return out, nil
}

func (tx *Tx) InsertCustomers(ctx context.Context, rows []importer.CustomerInsert) ([]int64, error) {
	if err := tx.exec(ctx, OpInsertCustomers, "customers", len(rows)); err != nil {
		return nil, err
	}
	ids := make([]int64, len(rows))
	for i, r := range rows {
		id := tx.data.id()
		tx.data.customers[id] = Customer{
			ID:            id,
			Name:          r.Name,
			Phone:         r.Phone,
			Email:         r.Email,
			Address:       r.Address,
			Note:          r.Note,
			LastContactAt: r.LastContactAt,
			CreatedBy:     r.CreatedBy,
			AssignedTo:    r.AssignedTo,
			CreatedAt:     r.CreatedAt,
		}
		ids[i] = id
	}
	return ids, nil
}

func (tx *Tx) UpdateCustomer(ctx context.Context, id int64, u importer.CustomerUpdate) error {
	if err := tx.exec(ctx, OpUpdateCustomer, "customers", 1); err != nil {
		return err
	}
	c, ok := tx.data.customers[id]
	if !ok {
		return errors.Errorf("customer %d not found", id)
	}
	c.Phone = coalesce(u.Phone, c.Phone)
	c.Email = coalesce(u.Email, c.Email)
	c.Address = coalesce(u.Address, c.Address)
	c.Note = coalesce(u.Note, c.Note)
	c.LastContactAt = coalesce(u.LastContactAt, c.LastContactAt)
	c.UpdatedBy = &u.UpdatedBy
	c.UpdatedAt = &u.UpdatedAt
	tx.data.customers[id] = c
	return nil
}

func (tx *Tx) InsertCustomerPlatforms(ctx context.Context, links []importer.CustomerPlatformLink) error {
	if err := tx.exec(ctx, OpInsertCustomerPlatforms, "customer_platforms", len(links)); err != nil {
		return err
	}
	platforms := make(map[int64]bool, len(tx.data.refs[importer.TablePlatforms]))
	for _, id := range tx.data.refs[importer.TablePlatforms] {
		platforms[id] = true
	}
	for _, l := range links {
		if _, ok := tx.data.customers[l.CustomerID]; !ok || !platforms[l.PlatformID] {
			return errors.Errorf("insert customer_platforms (%d, %d): violates foreign key constraint", l.CustomerID, l.PlatformID)
		}
	}
	for _, l := range links {
		tx.data.links = append(tx.data.links, CustomerPlatform{CustomerID: l.CustomerID, PlatformID: l.PlatformID, UserID: l.OperatorID})
	}
	return nil
}

func (tx *Tx) UpdateCustomerPlatform(ctx context.Context, customerID, operatorID, platformID int64) error {
	if err := tx.exec(ctx, OpUpdateCustomerPlatform, "customer_platforms", 1); err != nil {
		return err
	}
	for i := range tx.data.links {
		l := &tx.data.links[i]
		if l.CustomerID == customerID && l.UserID == operatorID {
			l.PlatformID = platformID
		}
	}
	return nil
}

func (tx *Tx) FindScrews(ctx context.Context, names []string, mode importer.MatchMode) ([]importer.ExistingEntity, error) {
	if err := tx.exec(ctx, OpFindScrews, "screws", len(names)); err != nil {
		return nil, err
	}
	var out []importer.ExistingEntity
	for _, sc := range tx.data.screws {
		if matchesAny(mode, sc.Name, names) {
			out = append(out, importer.ExistingEntity{ID: sc.ID, Name: sc.Name})
		}
	}
	sortEntities(out)
	return out, nil
}

func (tx *Tx) InsertScrews(ctx context.Context, rows []importer.ScrewInsert) ([]int64, error) {
	if err := tx.exec(ctx, OpInsertScrews, "screws", len(rows)); err != nil {
		return nil, err
	}
	ids := make([]int64, len(rows))
	for i, r := range rows {
		id := tx.data.id()
		tx.data.screws[id] = Screw{
			ID:              id,
			Name:            r.Name,
			ComponentTypeID: r.ComponentTypeID,
			MaterialID:      r.MaterialID,
			Size:            r.Size,
			Quantity:        r.Quantity,
			Price:           r.Price,
			Unit:            r.Unit,
			Note:            r.Note,
			ReceivedAt:      r.ReceivedAt,
			CreatedBy:       r.CreatedBy,
			AssignedTo:      r.AssignedTo,
			CreatedAt:       r.CreatedAt,
		}
		ids[i] = id
	}
	return ids, nil
}

func (tx *Tx) UpdateScrew(ctx context.Context, id int64, u importer.ScrewUpdate) error {
	if err := tx.exec(ctx, OpUpdateScrew, "screws", 1); err != nil {
		return err
	}
	sc, ok := tx.data.screws[id]
	if !ok {
		return errors.Errorf("screw %d not found", id)
	}
	sc.ComponentTypeID = coalesce(u.ComponentTypeID, sc.ComponentTypeID)
	sc.MaterialID = coalesce(u.MaterialID, sc.MaterialID)
	sc.Size = coalesce(u.Size, sc.Size)
	sc.Quantity = coalesce(u.Quantity, sc.Quantity)
	sc.Price = coalesce(u.Price, sc.Price)
	sc.Unit = coalesce(u.Unit, sc.Unit)
	sc.Note = coalesce(u.Note, sc.Note)
	sc.ReceivedAt = coalesce(u.ReceivedAt, sc.ReceivedAt)
	sc.UpdatedBy = &u.UpdatedBy
	sc.UpdatedAt = &u.UpdatedAt
	tx.data.screws[id] = sc
	return nil
}

func coalesce[T any](v, fallback *T) *T {
	if v != nil {
		return v
	}
	return fallback
}

func matchesAny(mode importer.MatchMode, existing string, names []string) bool {
	for _, n := range names {
		if importer.Matches(mode, existing, n) {
			return true
		}
	}
	return false
}

func sortEntities(es []importer.ExistingEntity) {
	sort.Slice(es, func(i, j int) bool { return es[i].ID < es[j].ID })
}
