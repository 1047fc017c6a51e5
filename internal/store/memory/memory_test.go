package memory

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/bulkimport/internal/importer"
)

func TestTx_RollbackDiscardsWrites(t *testing.T) {
	s := New()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	_, err = tx.InsertReferences(ctx, importer.TablePlatforms, []string{"Facebook"})
	require.NoError(t, err)
	_, err = tx.InsertCustomers(ctx, []importer.CustomerInsert{{Name: "An"}})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	assert.Empty(t, s.Customers())
	assert.Empty(t, s.References(importer.TablePlatforms))

	_, err = tx.InsertCustomers(ctx, nil)
	assert.ErrorIs(t, err, ErrTxClosed)
}

func TestTx_CommitPublishes(t *testing.T) {
	s := New()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	ids, err := tx.InsertCustomers(ctx, []importer.CustomerInsert{{Name: "An"}, {Name: "Binh"}})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	assert.Len(t, ids, 2)
	assert.Len(t, s.Customers(), 2)
	assert.NoError(t, tx.Rollback(ctx), "rollback after commit is a no-op")
}

func TestTx_InsertReferencesUniqueViolation(t *testing.T) {
	s := New()
	s.SeedReference(importer.TablePlatforms, "Zalo")
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	_, err = tx.InsertReferences(ctx, importer.TablePlatforms, []string{"Facebook", "Zalo"})
	assert.ErrorIs(t, err, importer.ErrUniqueViolation)
}

func TestTx_UpdateKeepsUnsetFields(t *testing.T) {
	s := New()
	id := s.SeedCustomer("An", 1)
	ctx := context.Background()

	phone := "0901"
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpdateCustomer(ctx, id, importer.CustomerUpdate{Phone: &phone, UpdatedBy: 2}))

	note := "vip"
	require.NoError(t, tx.UpdateCustomer(ctx, id, importer.CustomerUpdate{Note: &note, UpdatedBy: 3}))
	require.NoError(t, tx.Commit(ctx))

	c := s.Customers()[0]
	require.NotNil(t, c.Phone)
	assert.Equal(t, "0901", *c.Phone)
	require.NotNil(t, c.Note)
	assert.Equal(t, "vip", *c.Note)
	assert.Equal(t, int64(3), *c.UpdatedBy)

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	assert.Error(t, tx.UpdateCustomer(ctx, 999, importer.CustomerUpdate{}))
}

func TestTx_CustomerPlatformForeignKeys(t *testing.T) {
	s := New()
	platform := s.SeedReference(importer.TablePlatforms, "Facebook")
	customer := s.SeedCustomer("An", 1)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	err = tx.InsertCustomerPlatforms(ctx, []importer.CustomerPlatformLink{{CustomerID: customer, PlatformID: 404, OperatorID: 1}})
	assert.ErrorContains(t, err, "violates foreign key constraint")

	require.NoError(t, tx.InsertCustomerPlatforms(ctx, []importer.CustomerPlatformLink{{CustomerID: customer, PlatformID: platform, OperatorID: 1}}))
	require.NoError(t, tx.UpdateCustomerPlatform(ctx, customer, 2, 404), "other operators' rows are untouched")
	require.NoError(t, tx.Commit(ctx))

	assert.Equal(t, []CustomerPlatform{{CustomerID: customer, PlatformID: platform, UserID: 1}}, s.CustomerPlatforms())
}

func TestTx_FindUsesMatchMode(t *testing.T) {
	s := New()
	s.SeedScrew("Bolt M3 x 10", 1)
	s.SeedScrew("Bolt M4", 1)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	got, err := tx.FindScrews(ctx, []string{"m3"}, importer.MatchContains)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Bolt M3 x 10", got[0].Name)

	got, err = tx.FindScrews(ctx, []string{"bolt m4"}, importer.MatchExact)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Bolt M4", got[0].Name)
}

func TestStore_FailInjection(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	s.Fail(OpLookupReferences, 2, boom)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	_, err = tx.LookupReferences(ctx, importer.TablePlatforms, []string{"a"})
	require.NoError(t, err)
	_, err = tx.LookupReferences(ctx, importer.TablePlatforms, []string{"a"})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 2, s.Count(OpLookupReferences, importer.TablePlatforms))
	assert.Len(t, s.Statements(), 3)

	s.ResetLog()
	assert.Empty(t, s.Statements())
}
