package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/bulkimport/internal/importer"
)

// maxParams is PostgreSQL's limit on bind parameters per statement.
const maxParams = 65535

const referenceSavepoint = "import_references"

// referenceTables are the tables LookupReferences and InsertReferences accept.
var referenceTables = map[string]bool{
	importer.TablePlatforms:      true,
	importer.TableComponentTypes: true,
	importer.TableMaterials:      true,
}

// Tx is the import transaction.
type Tx struct {
	db conn
}

var _ importer.Tx = (*Tx)(nil)

func newTx(db conn) *Tx {
	return &Tx{db: db}
}

func (t *Tx) Commit(ctx context.Context) error {
	return mapPgError(t.db.Commit(ctx))
}

func (t *Tx) Rollback(ctx context.Context) error {
	err := t.db.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// =============================================================================
// References
// =============================================================================

func (t *Tx) LookupReferences(ctx context.Context, table string, names []string) (map[string]int64, error) {
	if !referenceTables[table] {
		return nil, errors.Errorf("unknown reference table %q", table)
	}

	query := "SELECT id, name FROM " + quoteIdentifier(table) + " WHERE name = ANY($1)"
	rows, err := t.db.Query(ctx, query, names)
	if err != nil {
		return nil, errors.Wrapf(mapPgError(err), "lookup %s", table)
	}
	out, err := collectIDsByName(rows)
	if err != nil {
		return nil, errors.Wrapf(mapPgError(err), "lookup %s", table)
	}
	return out, nil
}

// InsertReferences creates names in one statement inside a savepoint. On
// failure the savepoint is rolled back so the transaction stays usable.
func (t *Tx) InsertReferences(ctx context.Context, table string, names []string) (map[string]int64, error) {
	if !referenceTables[table] {
		return nil, errors.Errorf("unknown reference table %q", table)
	}

	if _, err := t.db.Exec(ctx, "SAVEPOINT "+referenceSavepoint); err != nil {
		return nil, errors.Wrap(err, "create savepoint")
	}

	query := "INSERT INTO " + quoteIdentifier(table) + " (name) SELECT unnest($1::text[]) RETURNING id, name"
	out, err := t.insertReferences(ctx, query, names)
	if err != nil {
		if _, rbErr := t.db.Exec(ctx, "ROLLBACK TO SAVEPOINT "+referenceSavepoint); rbErr != nil {
			return nil, errors.Wrapf(rbErr, "rollback savepoint after %v", err)
		}
		return nil, errors.Wrapf(mapPgError(err), "insert %s", table)
	}

	if _, err := t.db.Exec(ctx, "RELEASE SAVEPOINT "+referenceSavepoint); err != nil {
		return nil, errors.Wrap(err, "release savepoint")
	}
	return out, nil
}

func (t *Tx) insertReferences(ctx context.Context, query string, names []string) (map[string]int64, error) {
	rows, err := t.db.Query(ctx, query, names)
	if err != nil {
		return nil, err
	}
	return collectIDsByName(rows)
}

func collectIDsByName(rows pgx.Rows) (map[string]int64, error) {
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[name] = id
	}
	return out, rows.Err()
}

// =============================================================================
// Matching
// =============================================================================

func (t *Tx) FindCustomers(ctx context.Context, names []string, mode importer.MatchMode) ([]importer.ExistingEntity, error) {
	return t.findByName(ctx, "customers", names, mode)
}

func (t *Tx) FindScrews(ctx context.Context, names []string, mode importer.MatchMode) ([]importer.ExistingEntity, error) {
	return t.findByName(ctx, "screws", names, mode)
}

// findByName narrows candidates in SQL where the mode allows it. Fuzzy
// matching cannot be expressed as a pattern, so it reads every name.
func (t *Tx) findByName(ctx context.Context, table string, names []string, mode importer.MatchMode) ([]importer.ExistingEntity, error) {
	if len(names) == 0 {
		return nil, nil
	}

	base := "SELECT id, name FROM " + quoteIdentifier(table)
	var (
		query string
		args  []any
	)

	switch mode {
	case importer.MatchExact:
		lowered := make([]string, len(names))
		for i, n := range names {
			lowered[i] = strings.ToLower(n)
		}
		query = base + " WHERE lower(name) = ANY($1) ORDER BY id"
		args = []any{lowered}
	case importer.MatchFuzzy:
		query = base + " ORDER BY id"
	default:
		patterns := make([]string, len(names))
		for i, n := range names {
			patterns[i] = "%" + escapeLike(n) + "%"
		}
		query = base + " WHERE name ILIKE ANY($1) ORDER BY id"
		args = []any{patterns}
	}

	rows, err := t.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(mapPgError(err), "find %s", table)
	}
	defer rows.Close()

	var out []importer.ExistingEntity
	for rows.Next() {
		var e importer.ExistingEntity
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, errors.Wrapf(err, "scan %s", table)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(mapPgError(err), "find %s", table)
	}
	return out, nil
}

// escapeLike escapes LIKE wildcards using the default backslash escape.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// =============================================================================
// Customers
// =============================================================================

var customerColumns = []string{
	"name", "phone", "email", "address", "note", "last_contact_at",
	"created_by", "assigned_to", "created_at",
}

func (t *Tx) InsertCustomers(ctx context.Context, rows []importer.CustomerInsert) ([]int64, error) {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = []any{
			r.Name, r.Phone, r.Email, r.Address, r.Note, r.LastContactAt,
			r.CreatedBy, r.AssignedTo, r.CreatedAt,
		}
	}
	return t.insertReturningIDs(ctx, "customers", customerColumns, values)
}

const updateCustomerSQL = `UPDATE customers SET
	phone = COALESCE($2, phone),
	email = COALESCE($3, email),
	address = COALESCE($4, address),
	note = COALESCE($5, note),
	last_contact_at = COALESCE($6, last_contact_at),
	updated_by = $7,
	updated_at = $8
WHERE id = $1`

func (t *Tx) UpdateCustomer(ctx context.Context, id int64, u importer.CustomerUpdate) error {
	tag, err := t.db.Exec(ctx, updateCustomerSQL,
		id, u.Phone, u.Email, u.Address, u.Note, u.LastContactAt, u.UpdatedBy, u.UpdatedAt)
	if err != nil {
		return errors.Wrap(mapPgError(err), "update customer")
	}
	if tag.RowsAffected() == 0 {
		return errors.Errorf("update customer: customer %d not found", id)
	}
	return nil
}

var customerPlatformColumns = []string{"customer_id", "platform_id", "user_id"}

func (t *Tx) InsertCustomerPlatforms(ctx context.Context, links []importer.CustomerPlatformLink) error {
	values := make([][]any, len(links))
	for i, l := range links {
		values[i] = []any{l.CustomerID, l.PlatformID, l.OperatorID}
	}

	for _, chunk := range chunkRows(values, len(customerPlatformColumns)) {
		query := "INSERT INTO customer_platforms (" + strings.Join(customerPlatformColumns, ", ") + ") VALUES " +
			placeholders(len(chunk), len(customerPlatformColumns))
		if _, err := t.db.Exec(ctx, query, flatten(chunk)...); err != nil {
			return errors.Wrap(mapPgError(err), "insert customer_platforms")
		}
	}
	return nil
}

// UpdateCustomerPlatform touches only the join row owned by operatorID.
// No matching row is not an error: the customer may belong to another
// operator.
func (t *Tx) UpdateCustomerPlatform(ctx context.Context, customerID, operatorID, platformID int64) error {
	_, err := t.db.Exec(ctx,
		"UPDATE customer_platforms SET platform_id = $3 WHERE customer_id = $1 AND user_id = $2",
		customerID, operatorID, platformID)
	if err != nil {
		return errors.Wrap(mapPgError(err), "update customer_platforms")
	}
	return nil
}

// =============================================================================
// Screws
// =============================================================================

var screwColumns = []string{
	"name", "component_type_id", "material_id", "size", "quantity", "price", "unit", "note", "received_at",
	"created_by", "assigned_to", "created_at",
}

func (t *Tx) InsertScrews(ctx context.Context, rows []importer.ScrewInsert) ([]int64, error) {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = []any{
			r.Name, r.ComponentTypeID, r.MaterialID, r.Size, r.Quantity, decimalText(r.Price), r.Unit, r.Note, r.ReceivedAt,
			r.CreatedBy, r.AssignedTo, r.CreatedAt,
		}
	}
	return t.insertReturningIDs(ctx, "screws", screwColumns, values)
}

const updateScrewSQL = `UPDATE screws SET
	component_type_id = COALESCE($2, component_type_id),
	material_id = COALESCE($3, material_id),
	size = COALESCE($4, size),
	quantity = COALESCE($5, quantity),
	price = COALESCE($6::numeric, price),
	unit = COALESCE($7, unit),
	note = COALESCE($8, note),
	received_at = COALESCE($9, received_at),
	updated_by = $10,
	updated_at = $11
WHERE id = $1`

func (t *Tx) UpdateScrew(ctx context.Context, id int64, u importer.ScrewUpdate) error {
	tag, err := t.db.Exec(ctx, updateScrewSQL,
		id, u.ComponentTypeID, u.MaterialID, u.Size, u.Quantity, decimalText(u.Price), u.Unit, u.Note, u.ReceivedAt,
		u.UpdatedBy, u.UpdatedAt)
	if err != nil {
		return errors.Wrap(mapPgError(err), "update screw")
	}
	if tag.RowsAffected() == 0 {
		return errors.Errorf("update screw: screw %d not found", id)
	}
	return nil
}

// decimalText passes a price as text so the server parses it as numeric
// without a driver-side decimal codec.
func decimalText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

// =============================================================================
// Statement helpers
// =============================================================================

// insertReturningIDs inserts rows with multi-row VALUES statements and
// returns the generated ids in input order.
func (t *Tx) insertReturningIDs(ctx context.Context, table string, columns []string, rows [][]any) ([]int64, error) {
	ids := make([]int64, 0, len(rows))

	for _, chunk := range chunkRows(rows, len(columns)) {
		query := "INSERT INTO " + quoteIdentifier(table) + " (" + strings.Join(columns, ", ") + ") VALUES " +
			placeholders(len(chunk), len(columns)) + " RETURNING id"

		result, err := t.db.Query(ctx, query, flatten(chunk)...)
		if err != nil {
			return nil, errors.Wrapf(mapPgError(err), "insert %s", table)
		}
		chunkIDs, err := pgx.CollectRows(result, pgx.RowTo[int64])
		if err != nil {
			return nil, errors.Wrapf(mapPgError(err), "insert %s", table)
		}
		ids = append(ids, chunkIDs...)
	}

	return ids, nil
}

// chunkRows splits rows so no statement exceeds maxParams.
func chunkRows(rows [][]any, columns int) [][][]any {
	per := maxParams / columns
	var chunks [][][]any
	for start := 0; start < len(rows); start += per {
		chunks = append(chunks, rows[start:min(start+per, len(rows))])
	}
	return chunks
}

// placeholders renders "($1, $2), ($3, $4)" for rows x columns.
func placeholders(rows, columns int) string {
	var b strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < columns; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

func flatten(rows [][]any) []any {
	var out []any
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

// quoteIdentifier safely quotes a PostgreSQL identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
