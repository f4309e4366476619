package branches

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-dms/meridian-dms/internal/masterdata/shared"
)

type stubRepo struct {
	byID    map[int64]Branch
	inUse   map[int64]bool
	nextID  int64
	deleted []int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{byID: map[int64]Branch{}, inUse: map[int64]bool{}}
}

func (s *stubRepo) List(ctx context.Context, filters shared.ListFilters) ([]Branch, int, error) {
	var all []Branch
	for _, b := range s.byID {
		all = append(all, b)
	}
	return all, len(all), nil
}

func (s *stubRepo) Get(ctx context.Context, id int64) (Branch, error) {
	b, ok := s.byID[id]
	if !ok {
		return Branch{}, shared.ErrNotFound
	}
	return b, nil
}

func (s *stubRepo) Create(ctx context.Context, branch Branch) (Branch, error) {
	for _, b := range s.byID {
		if b.Code == branch.Code {
			return Branch{}, shared.ErrDuplicate
		}
	}
	s.nextID++
	branch.ID = s.nextID
	s.byID[branch.ID] = branch
	return branch, nil
}

func (s *stubRepo) Update(ctx context.Context, id int64, branch Branch) error {
	if _, ok := s.byID[id]; !ok {
		return shared.ErrNotFound
	}
	branch.ID = id
	s.byID[id] = branch
	return nil
}

func (s *stubRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := s.byID[id]; !ok {
		return shared.ErrNotFound
	}
	if s.inUse[id] {
		return shared.ErrInUse
	}
	delete(s.byID, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newStubRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Branch{Name: "Main"})
	require.ErrorIs(t, err, shared.ErrRequiredField)

	_, err = svc.Create(ctx, Branch{Code: "MAIN"})
	require.ErrorIs(t, err, shared.ErrRequiredField)

	created, err := svc.Create(ctx, Branch{Code: "MAIN", Name: "Main Branch", IsActive: true})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	_, err = svc.Create(ctx, Branch{Code: "MAIN", Name: "Another"})
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestDeleteBlockedWhenReferenced(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, Branch{Code: "MAIN", Name: "Main Branch"})
	require.NoError(t, err)
	repo.inUse[created.ID] = true

	require.ErrorIs(t, svc.Delete(ctx, created.ID), shared.ErrInUse)

	repo.inUse[created.ID] = false
	require.NoError(t, svc.Delete(ctx, created.ID))
	require.ErrorIs(t, svc.Delete(ctx, created.ID), shared.ErrNotFound)
}

func TestInvalidID(t *testing.T) {
	svc := NewService(newStubRepo())
	ctx := context.Background()

	_, err := svc.Get(ctx, 0)
	require.ErrorIs(t, err, shared.ErrInvalidID)
	require.ErrorIs(t, svc.Delete(ctx, -1), shared.ErrInvalidID)
	require.ErrorIs(t, svc.Update(ctx, 0, Branch{Code: "X", Name: "Y"}), shared.ErrInvalidID)
}
