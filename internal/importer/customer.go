package importer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// CustomerImportRow is one customer row of an import file.
type CustomerImportRow struct {
	RowNum int `json:"-"`

	Name     string `json:"name" label:"Name" validate:"required,max=255"`
	Platform string `json:"platform" label:"Platform" validate:"required,max=255"`

	Phone         *string `json:"phone" label:"Phone" warn:"omitempty,phone"`
	Email         *string `json:"email" label:"Email" warn:"omitempty,email"`
	Address       *string `json:"address" label:"Address"`
	Note          *string `json:"note" label:"Note"`
	LastContactAt *string `json:"lastContactAt" label:"Last contact" warn:"omitempty,iso8601"`
}

func (r *CustomerImportRow) Row() int { return r.RowNum }

func (r *CustomerImportRow) NaturalKey() string { return r.Name }

func (r *CustomerImportRow) ReferenceValue(field string) string {
	if field == "platform" {
		return NormalizeKey(r.Platform)
	}
	return ""
}

func decodeCustomer(rec MappedRecord) ImportRow {
	return &CustomerImportRow{
		RowNum:        rec.Row,
		Name:          required(rec.Fields, "name"),
		Platform:      required(rec.Fields, "platform"),
		Phone:         optional(rec.Fields, "phone"),
		Email:         optional(rec.Fields, "email"),
		Address:       optional(rec.Fields, "address"),
		Note:          optional(rec.Fields, "note"),
		LastContactAt: optional(rec.Fields, "lastContactAt"),
	}
}

func init() {
	register(&EntityDefinition{
		Type:           EntityCustomer,
		Fields:         []string{"name", "platform", "phone", "email", "address", "note", "lastContactAt"},
		TimestampField: "lastContactAt",
		References: []ReferenceSpec{
			{Field: "platform", Table: TablePlatforms},
		},
		Decode:    decodeCustomer,
		reconcile: reconcileCustomers,
	})
}

type customerCreate struct {
	insert     CustomerInsert
	platformID int64
}

type customerUpdate struct {
	update     CustomerUpdate
	platformID int64
}

func reconcileCustomers(ctx context.Context, tx Tx, batch []ImportRow, rc reconcileContext) (Counts, error) {
	var candidates []ExistingEntity
	if rc.UpdateExisting {
		var err error
		candidates, err = tx.FindCustomers(ctx, batchNames(batch), rc.MatchMode)
		if err != nil {
			return Counts{}, reconcileError("find customers", err)
		}
		candidates = rc.preexisting(candidates)
	}

	var p plan[customerCreate, customerUpdate]
	for _, r := range batch {
		row, ok := r.(*CustomerImportRow)
		if !ok {
			return Counts{}, reconcileError("stage customers", errors.Errorf("row %d is %T, not a customer", r.Row(), r))
		}

		platformKey := row.ReferenceValue("platform")
		platformID, ok := rc.cache.Get(TablePlatforms, platformKey)
		if !ok {
			return Counts{}, reconcileError("stage customers", errors.Errorf("row %d: platform %q not resolved", row.RowNum, platformKey))
		}

		lastContact := optionalTime(row.LastContactAt)

		if rc.UpdateExisting {
			if match, ok := SelectMatch(rc.MatchMode, row.Name, candidates); ok {
				p.update(match.ID, customerUpdate{
					update: CustomerUpdate{
						Phone:         row.Phone,
						Email:         row.Email,
						Address:       row.Address,
						Note:          row.Note,
						LastContactAt: lastContact,
						UpdatedBy:     rc.stamp.OperatorID,
						UpdatedAt:     rc.stamp.At,
					},
					platformID: platformID,
				})
				continue
			}
		}

		p.create(customerCreate{
			insert: CustomerInsert{
				Name:          row.Name,
				Phone:         row.Phone,
				Email:         row.Email,
				Address:       row.Address,
				Note:          row.Note,
				LastContactAt: lastContact,
				CreatedBy:     rc.stamp.OperatorID,
				AssignedTo:    rc.stamp.OperatorID,
				CreatedAt:     rc.stamp.At,
			},
			platformID: platformID,
		})
	}

	// Phase 1: bulk insert.
	if len(p.creates) > 0 {
		inserts := make([]CustomerInsert, len(p.creates))
		for i, c := range p.creates {
			inserts[i] = c.insert
		}

		ids, err := tx.InsertCustomers(ctx, inserts)
		if err != nil {
			return Counts{}, reconcileError("insert customers", err)
		}
		if len(ids) != len(inserts) {
			return Counts{}, reconcileError("insert customers", errors.Errorf("got %d ids for %d rows", len(ids), len(inserts)))
		}
		rc.recordCreated(ids)

		links := make([]CustomerPlatformLink, len(ids))
		for i, id := range ids {
			links[i] = CustomerPlatformLink{
				CustomerID: id,
				PlatformID: p.creates[i].platformID,
				OperatorID: rc.stamp.OperatorID,
			}
		}
		if err := tx.InsertCustomerPlatforms(ctx, links); err != nil {
			return Counts{}, reconcileError("insert customer platforms", err)
		}
	}

	// Phase 2: one update per matched customer.
	for _, u := range p.updates {
		if err := tx.UpdateCustomer(ctx, u.id, u.payload.update); err != nil {
			return Counts{}, reconcileError("update customer", errors.Wrapf(err, "id %d", u.id))
		}
		if err := tx.UpdateCustomerPlatform(ctx, u.id, rc.stamp.OperatorID, u.payload.platformID); err != nil {
			return Counts{}, reconcileError("update customer platform", errors.Wrapf(err, "id %d", u.id))
		}
	}

	return Counts{Created: len(p.creates), Updated: len(p.updates)}, nil
}

// optionalTime parses a timestamp field already normalized by the mapper.
// Values that failed normalization were reported as warnings and are not
// stored.
func optionalTime(p *string) *time.Time {
	if p == nil {
		return nil
	}
	t, ok := ParseTimestamp(*p)
	if !ok {
		return nil
	}
	return &t
}
