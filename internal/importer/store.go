package importer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store opens the transaction an import runs in.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is the unit of work of one import. Every method runs inside the same
// transaction; nothing is visible to other callers before Commit.
//
// Implementations return an error wrapping ErrUniqueViolation when an insert
// hits a unique constraint, and must leave the transaction usable afterwards
// so the resolver can retry.
type Tx interface {
	Commit(ctx context.Context) error
	// Rollback is a no-op after Commit.
	Rollback(ctx context.Context) error

	// LookupReferences returns the ids of the names that exist in table.
	LookupReferences(ctx context.Context, table string, names []string) (map[string]int64, error)
	// InsertReferences creates all names in table in one statement.
	InsertReferences(ctx context.Context, table string, names []string) (map[string]int64, error)

	// FindCustomers returns the customers that may match any of names under
	// mode. It may return extra candidates; callers filter with SelectMatch.
	FindCustomers(ctx context.Context, names []string, mode MatchMode) ([]ExistingEntity, error)
	// InsertCustomers creates all rows in one statement and returns their
	// ids in input order.
	InsertCustomers(ctx context.Context, rows []CustomerInsert) ([]int64, error)
	UpdateCustomer(ctx context.Context, id int64, u CustomerUpdate) error
	InsertCustomerPlatforms(ctx context.Context, links []CustomerPlatformLink) error
	// UpdateCustomerPlatform repoints the join row owned by operatorID.
	UpdateCustomerPlatform(ctx context.Context, customerID, operatorID, platformID int64) error

	FindScrews(ctx context.Context, names []string, mode MatchMode) ([]ExistingEntity, error)
	InsertScrews(ctx context.Context, rows []ScrewInsert) ([]int64, error)
	UpdateScrew(ctx context.Context, id int64, u ScrewUpdate) error
}

// Reference tables.
const (
	TablePlatforms      = "platforms"
	TableComponentTypes = "component_types"
	TableMaterials      = "materials"
)

// ExistingEntity is a persisted entity considered for matching.
type ExistingEntity struct {
	ID   int64
	Name string
}

// CustomerInsert is the payload of a created customer.
type CustomerInsert struct {
	Name          string
	Phone         *string
	Email         *string
	Address       *string
	Note          *string
	LastContactAt *time.Time
	CreatedBy     int64
	AssignedTo    int64
	CreatedAt     time.Time
}

// CustomerUpdate is the payload of an updated customer. Nil fields keep
// their stored value.
type CustomerUpdate struct {
	Phone         *string
	Email         *string
	Address       *string
	Note          *string
	LastContactAt *time.Time
	UpdatedBy     int64
	UpdatedAt     time.Time
}

// CustomerPlatformLink associates a customer with a platform for an operator.
type CustomerPlatformLink struct {
	CustomerID int64
	PlatformID int64
	OperatorID int64
}

// ScrewInsert is the payload of a created screw.
type ScrewInsert struct {
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
}

// ScrewUpdate is the payload of an updated screw. Nil fields keep their
// stored value.
type ScrewUpdate struct {
	ComponentTypeID *int64
	MaterialID      *int64
	Size            *string
	Quantity        *int64
	Price           *decimal.Decimal
	Unit            *string
	Note            *string
	ReceivedAt      *time.Time
	UpdatedBy       int64
	UpdatedAt       time.Time
}
