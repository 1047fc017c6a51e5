package importer

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ScrewImportRow is one inventory row of an import file.
type ScrewImportRow struct {
	RowNum int `json:"-"`

	Name string `json:"name" label:"Name" validate:"required,max=255"`

	ComponentType *string `json:"componentType" label:"Component type" validate:"omitempty,max=255"`
	Material      *string `json:"material" label:"Material" validate:"omitempty,max=255"`
	Size          *string `json:"size" label:"Size"`
	Quantity      *string `json:"quantity" label:"Quantity" validate:"omitempty,integer"`
	Price         *string `json:"price" label:"Price" validate:"omitempty,decimal"`
	Unit          *string `json:"unit" label:"Unit"`
	Note          *string `json:"note" label:"Note"`
	ReceivedAt    *string `json:"receivedAt" label:"Received at" warn:"omitempty,iso8601"`
}

func (r *ScrewImportRow) Row() int { return r.RowNum }

func (r *ScrewImportRow) NaturalKey() string { return r.Name }

func (r *ScrewImportRow) ReferenceValue(field string) string {
	switch field {
	case "componentType":
		return derefKey(r.ComponentType)
	case "material":
		return derefKey(r.Material)
	}
	return ""
}

func decodeScrew(rec MappedRecord) ImportRow {
	return &ScrewImportRow{
		RowNum:        rec.Row,
		Name:          required(rec.Fields, "name"),
		ComponentType: optional(rec.Fields, "componentType"),
		Material:      optional(rec.Fields, "material"),
		Size:          optional(rec.Fields, "size"),
		Quantity:      optional(rec.Fields, "quantity"),
		Price:         optional(rec.Fields, "price"),
		Unit:          optional(rec.Fields, "unit"),
		Note:          optional(rec.Fields, "note"),
		ReceivedAt:    optional(rec.Fields, "receivedAt"),
	}
}

func init() {
	register(&EntityDefinition{
		Type:           EntityScrew,
		Fields:         []string{"name", "componentType", "material", "size", "quantity", "price", "unit", "note", "receivedAt"},
		TimestampField: "receivedAt",
		References: []ReferenceSpec{
			{Field: "componentType", Table: TableComponentTypes, Optional: true},
			{Field: "material", Table: TableMaterials, Optional: true},
		},
		Decode:    decodeScrew,
		reconcile: reconcileScrews,
	})
}

// screwValues are the converted optional columns shared by creates and
// updates.
type screwValues struct {
	componentTypeID *int64
	materialID      *int64
	quantity        *int64
	price           *decimal.Decimal
}

func convertScrew(row *ScrewImportRow, cache *ReferenceCache) (screwValues, error) {
	var v screwValues

	lookup := func(table, key string) (*int64, error) {
		if key == "" {
			return nil, nil
		}
		id, ok := cache.Get(table, key)
		if !ok {
			return nil, errors.Errorf("row %d: %s %q not resolved", row.RowNum, table, key)
		}
		return &id, nil
	}

	var err error
	if v.componentTypeID, err = lookup(TableComponentTypes, row.ReferenceValue("componentType")); err != nil {
		return v, err
	}
	if v.materialID, err = lookup(TableMaterials, row.ReferenceValue("material")); err != nil {
		return v, err
	}

	if row.Quantity != nil {
		q, err := ParseInteger(*row.Quantity)
		if err != nil {
			return v, errors.Wrapf(err, "row %d: quantity", row.RowNum)
		}
		v.quantity = &q
	}
	if row.Price != nil {
		p, err := ParseDecimal(*row.Price)
		if err != nil {
			return v, errors.Wrapf(err, "row %d: price", row.RowNum)
		}
		v.price = &p
	}

	return v, nil
}

func reconcileScrews(ctx context.Context, tx Tx, batch []ImportRow, rc reconcileContext) (Counts, error) {
	var candidates []ExistingEntity
	if rc.UpdateExisting {
		var err error
		candidates, err = tx.FindScrews(ctx, batchNames(batch), rc.MatchMode)
		if err != nil {
			return Counts{}, reconcileError("find screws", err)
		}
		candidates = rc.preexisting(candidates)
	}

	var p plan[ScrewInsert, ScrewUpdate]
	for _, r := range batch {
		row, ok := r.(*ScrewImportRow)
		if !ok {
			return Counts{}, reconcileError("stage screws", errors.Errorf("row %d is %T, not a screw", r.Row(), r))
		}

		v, err := convertScrew(row, rc.cache)
		if err != nil {
			return Counts{}, reconcileError("stage screws", err)
		}
		receivedAt := optionalTime(row.ReceivedAt)

		if rc.UpdateExisting {
			if match, ok := SelectMatch(rc.MatchMode, row.Name, candidates); ok {
				p.update(match.ID, ScrewUpdate{
					ComponentTypeID: v.componentTypeID,
					MaterialID:      v.materialID,
					Size:            row.Size,
					Quantity:        v.quantity,
					Price:           v.price,
					Unit:            row.Unit,
					Note:            row.Note,
					ReceivedAt:      receivedAt,
					UpdatedBy:       rc.stamp.OperatorID,
					UpdatedAt:       rc.stamp.At,
				})
				continue
			}
		}

		p.create(ScrewInsert{
			Name:            row.Name,
			ComponentTypeID: v.componentTypeID,
			MaterialID:      v.materialID,
			Size:            row.Size,
			Quantity:        v.quantity,
			Price:           v.price,
			Unit:            row.Unit,
			Note:            row.Note,
			ReceivedAt:      receivedAt,
			CreatedBy:       rc.stamp.OperatorID,
			AssignedTo:      rc.stamp.OperatorID,
			CreatedAt:       rc.stamp.At,
		})
	}

	// Phase 1: bulk insert.
	if len(p.creates) > 0 {
		ids, err := tx.InsertScrews(ctx, p.creates)
		if err != nil {
			return Counts{}, reconcileError("insert screws", err)
		}
		if len(ids) != len(p.creates) {
			return Counts{}, reconcileError("insert screws", errors.Errorf("got %d ids for %d rows", len(ids), len(p.creates)))
		}
		rc.recordCreated(ids)
	}

	// Phase 2: one update per matched screw.
	for _, u := range p.updates {
		if err := tx.UpdateScrew(ctx, u.id, u.payload); err != nil {
			return Counts{}, reconcileError("update screw", errors.Wrapf(err, "id %d", u.id))
		}
	}

	return Counts{Created: len(p.creates), Updated: len(p.updates)}, nil
}
