package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snowtrack/internal/core"
	ierr "snowtrack/internal/errors"
)

func record(customer string, month time.Month, amount int64) core.Record {
	return core.Record{
		Customer:      customer,
		Month:         core.NewMonth(2024, month),
		Consumption:   decimal.NewFromInt(amount),
		ProjectStatus: core.OnTrack,
		Region:        core.USEast,
	}
}

func customersOf(records []core.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.DisplayID()
	}
	return out
}

func TestInsertKeepsOrderAndAssignsIdentity(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i, c := range []string{"Acme", "Globex", "Acme"} {
		got, err := s.Insert(ctx, record(c, time.Month(i+1), 10))
		require.NoError(t, err)
		assert.NotEmpty(t, got.ID)
		assert.False(t, got.CreatedAt.IsZero())
	}

	all, err := s.Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme - 2024-01", "Globex - 2024-02", "Acme - 2024-03"}, customersOf(all))
	assert.NotEqual(t, all[0].ID, all[2].ID)
}

func TestInsertRejectsEmptyCustomer(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.Insert(ctx, record("Acme", time.January, 1))
	require.NoError(t, err)

	_, err = s.Insert(ctx, record("  ", time.February, 1))
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))

	all, _ := s.Records(ctx)
	assert.Len(t, all, 1)
}

func TestDeleteByDisplayID(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.Insert(ctx, record("Acme", time.January, 1))
	_, _ = s.Insert(ctx, record("Globex", time.January, 2))

	n, err := s.Delete(ctx, []string{"Acme - 2024-01"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.Delete(ctx, []string{"Acme - 2024-01"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	all, _ := s.Records(ctx)
	assert.Equal(t, []string{"Globex - 2024-01"}, customersOf(all))
}

func TestDeleteRemovesDuplicatesTogether(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.Insert(ctx, record("Acme", time.January, 1))
	_, _ = s.Insert(ctx, record("Acme", time.January, 2))
	_, _ = s.Insert(ctx, record("Acme", time.February, 3))

	n, err := s.Delete(ctx, []string{"Acme - 2024-01", "Unknown - 2024-01"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Delete(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteByID(t *testing.T) {
	ctx := context.Background()
	s := New()
	first, _ := s.Insert(ctx, record("Acme", time.January, 1))
	second, _ := s.Insert(ctx, record("Acme", time.January, 2))

	require.NoError(t, s.DeleteByID(ctx, first.ID))
	all, _ := s.Records(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, second.ID, all[0].ID)

	err := s.DeleteByID(ctx, first.ID)
	require.Error(t, err)
	assert.True(t, ierr.IsNotFound(err))
}

func TestFilter(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.Insert(ctx, record("Acme", time.March, 1))
	g := record("Globex", time.January, 2)
	g.Region = core.CanadaWest
	_, _ = s.Insert(ctx, g)
	_, _ = s.Insert(ctx, record("Acme", time.January, 3))

	got, err := s.Filter(ctx, core.Filter{Customer: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme - 2024-03", "Acme - 2024-01"}, customersOf(got))

	got, err = s.Filter(ctx, core.Filter{Region: core.CanadaWest})
	require.NoError(t, err)
	assert.Equal(t, []string{"Globex - 2024-01"}, customersOf(got))
}

func TestArchive(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.Insert(ctx, record("Acme", time.January, 1))
	_, _ = s.Insert(ctx, record("Globex", time.January, 2))
	_, _ = s.Insert(ctx, record("Acme", time.February, 3))
	_, _ = s.Insert(ctx, record("Initech", time.January, 4))

	n, err := s.Archive(ctx, "Initech")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.Archive(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	active, _ := s.Records(ctx)
	assert.Equal(t, []string{"Globex - 2024-01"}, customersOf(active))

	archived, _ := s.Archived(ctx)
	assert.Equal(t, []string{"Initech - 2024-01", "Acme - 2024-01", "Acme - 2024-02"}, customersOf(archived))

	customers, _ := s.Customers(ctx)
	assert.Equal(t, []string{"Globex"}, customers)
}

func TestArchiveUnknownCustomerIsNoop(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.Insert(ctx, record("Acme", time.January, 1))

	n, err := s.Archive(ctx, "Nobody")
	require.NoError(t, err)
	assert.Zero(t, n)

	active, _ := s.Records(ctx)
	archived, _ := s.Archived(ctx)
	assert.Len(t, active, 1)
	assert.Empty(t, archived)
}

func TestRecordsReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.Insert(ctx, record("Acme", time.January, 1))

	all, _ := s.Records(ctx)
	all[0].Customer = "Mutated"

	again, _ := s.Records(ctx)
	assert.Equal(t, "Acme", again[0].Customer)
}

func TestNewWithRecords(t *testing.T) {
	s, err := NewWithRecords([]core.Record{record("Acme", time.January, 1), record("Globex", time.January, 1)})
	require.NoError(t, err)
	customers, _ := s.Customers(context.Background())
	assert.Equal(t, []string{"Acme", "Globex"}, customers)

	_, err = NewWithRecords([]core.Record{record("", time.January, 1)})
	assert.Error(t, err)
}
