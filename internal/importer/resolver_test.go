package importer_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JonMunkholm/bulkimport/internal/importer"
	"github.com/JonMunkholm/bulkimport/internal/store/memory"
)

var platformRefs = []importer.ReferenceSpec{{Field: "platform", Table: importer.TablePlatforms}}

func customerBatch(n int, platforms ...string) []importer.ImportRow {
	def, _ := importer.Definition(importer.EntityCustomer)
	records := make([]importer.MappedRecord, n)
	for i := range records {
		records[i] = importer.MappedRecord{Row: i + 2, Fields: map[string]string{
			"name":     fmt.Sprintf("Customer %d", i),
			"platform": platforms[i%len(platforms)],
		}}
	}
	return def.DecodeRecords(records)
}

func TestResolver_OneLookupAndOneInsertPerBatch(t *testing.T) {
	store := memory.New()
	fbID := store.SeedReference(importer.TablePlatforms, "Facebook")

	tx, err := store.Begin(context.Background())
	require.NoError(t, err)

	r := importer.NewResolver(importer.NewReferenceCache(), importer.EntityCustomer, zaptest.NewLogger(t))
	require.NoError(t, r.Resolve(context.Background(), tx, customerBatch(100, "Facebook", "Zalo", "Instagram"), platformRefs))

	assert.Equal(t, 1, store.Count(memory.OpLookupReferences, importer.TablePlatforms))
	assert.Equal(t, 1, store.Count(memory.OpInsertReferences, importer.TablePlatforms))

	id, ok := r.Cache().Get(importer.TablePlatforms, "Facebook")
	require.True(t, ok)
	assert.Equal(t, fbID, id)
	assert.Equal(t, 3, r.Cache().Len(importer.TablePlatforms))
	assert.Equal(t, map[string]int{importer.TablePlatforms: 2}, r.Created())
}

func TestResolver_CacheSpansBatches(t *testing.T) {
	store := memory.New()
	tx, err := store.Begin(context.Background())
	require.NoError(t, err)

	r := importer.NewResolver(importer.NewReferenceCache(), importer.EntityCustomer, nil)
	ctx := context.Background()

	require.NoError(t, r.Resolve(ctx, tx, customerBatch(10, "Facebook"), platformRefs))
	require.NoError(t, r.Resolve(ctx, tx, customerBatch(10, "Facebook"), platformRefs))

	assert.Equal(t, 1, store.Count(memory.OpLookupReferences, ""), "second batch needs no statements")
	assert.Equal(t, 1, store.Count(memory.OpInsertReferences, ""))

	require.NoError(t, r.Resolve(ctx, tx, customerBatch(10, "Facebook", "Zalo"), platformRefs))
	assert.Equal(t, 2, store.Count(memory.OpLookupReferences, ""))
	assert.Equal(t, 2, store.Count(memory.OpInsertReferences, ""))
}

func TestResolver_NormalizesNames(t *testing.T) {
	store := memory.New()
	tx, err := store.Begin(context.Background())
	require.NoError(t, err)

	r := importer.NewResolver(importer.NewReferenceCache(), importer.EntityCustomer, nil)
	require.NoError(t, r.Resolve(context.Background(), tx, customerBatch(2, "  Zalo ", "Zalo"), platformRefs))

	assert.Equal(t, 1, r.Cache().Len(importer.TablePlatforms))
}

func TestResolver_RetriesOnceAfterUniqueViolation(t *testing.T) {
	store := memory.New()
	store.Fail(memory.OpInsertReferences, 1, errors.Wrap(importer.ErrUniqueViolation, "platforms_name_key"))

	tx, err := store.Begin(context.Background())
	require.NoError(t, err)

	r := importer.NewResolver(importer.NewReferenceCache(), importer.EntityCustomer, zaptest.NewLogger(t))
	require.NoError(t, r.Resolve(context.Background(), tx, customerBatch(5, "Facebook"), platformRefs))

	assert.Equal(t, 2, store.Count(memory.OpLookupReferences, ""))
	assert.Equal(t, 2, store.Count(memory.OpInsertReferences, ""))
	_, ok := r.Cache().Get(importer.TablePlatforms, "Facebook")
	assert.True(t, ok)
}

func TestResolver_SecondFailureIsResolutionError(t *testing.T) {
	store := memory.New()
	store.Fail(memory.OpInsertReferences, 0, errors.Wrap(importer.ErrUniqueViolation, "platforms_name_key"))

	tx, err := store.Begin(context.Background())
	require.NoError(t, err)

	r := importer.NewResolver(importer.NewReferenceCache(), importer.EntityCustomer, nil)
	err = r.Resolve(context.Background(), tx, customerBatch(5, "Facebook"), platformRefs)

	require.Error(t, err)
	assert.ErrorIs(t, err, importer.ErrReferenceResolution)
	assert.ErrorIs(t, err, importer.ErrUniqueViolation)
	assert.Equal(t, 2, store.Count(memory.OpInsertReferences, ""))
}

func TestResolver_OtherErrorsAreNotRetried(t *testing.T) {
	store := memory.New()
	store.Fail(memory.OpLookupReferences, 0, errors.New("connection reset by peer"))

	tx, err := store.Begin(context.Background())
	require.NoError(t, err)

	r := importer.NewResolver(importer.NewReferenceCache(), importer.EntityCustomer, nil)
	err = r.Resolve(context.Background(), tx, customerBatch(1, "Facebook"), platformRefs)

	assert.ErrorIs(t, err, importer.ErrReferenceResolution)
	assert.Equal(t, 1, store.Count(memory.OpLookupReferences, ""))
}

func TestResolver_SkipsEmptyOptionalReferences(t *testing.T) {
	def, err := importer.Definition(importer.EntityScrew)
	require.NoError(t, err)

	store := memory.New()
	tx, err := store.Begin(context.Background())
	require.NoError(t, err)

	rows := def.DecodeRecords([]importer.MappedRecord{
		{Row: 2, Fields: map[string]string{"name": "M3", "material": "Steel"}},
		{Row: 3, Fields: map[string]string{"name": "M4"}},
	})

	r := importer.NewResolver(importer.NewReferenceCache(), importer.EntityScrew, nil)
	require.NoError(t, r.Resolve(context.Background(), tx, rows, def.References))

	assert.Zero(t, store.Count(memory.OpLookupReferences, importer.TableComponentTypes))
	assert.Equal(t, 1, store.Count(memory.OpInsertReferences, importer.TableMaterials))
}
