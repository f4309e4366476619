package suppliers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-dms/meridian-dms/internal/masterdata/shared"
)

type stubRepo struct {
	byID   map[int64]Supplier
	nextID int64
}

func (s *stubRepo) List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	var all []Supplier
	for _, sp := range s.byID {
		all = append(all, sp)
	}
	return all, len(all), nil
}

func (s *stubRepo) Get(ctx context.Context, id int64) (Supplier, error) {
	sp, ok := s.byID[id]
	if !ok {
		return Supplier{}, shared.ErrNotFound
	}
	return sp, nil
}

func (s *stubRepo) Create(ctx context.Context, supplier Supplier) (Supplier, error) {
	s.nextID++
	supplier.ID = s.nextID
	s.byID[supplier.ID] = supplier
	return supplier, nil
}

func (s *stubRepo) Update(ctx context.Context, id int64, supplier Supplier) error {
	if _, ok := s.byID[id]; !ok {
		return shared.ErrNotFound
	}
	supplier.ID = id
	s.byID[id] = supplier
	return nil
}

func (s *stubRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := s.byID[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func TestSupplierValidation(t *testing.T) {
	svc := NewService(&stubRepo{byID: map[int64]Supplier{}})
	ctx := context.Background()

	_, err := svc.Create(ctx, Supplier{Name: "Norkis"})
	require.ErrorIs(t, err, shared.ErrRequiredField)

	_, err = svc.Create(ctx, Supplier{Code: "NORKIS", Name: "Norkis Distributors", TermsDays: -5})
	require.ErrorIs(t, err, shared.ErrValidation)

	created, err := svc.Create(ctx, Supplier{Code: "NORKIS", Name: "Norkis Distributors", TermsDays: 30, IsActive: true})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, 30, got.TermsDays)
}
