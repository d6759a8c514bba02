package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fakemyrun/internal/domain"
	"fakemyrun/internal/repository"
)

func testRoute(ownerID, name string) *domain.SavedRoute {
	return &domain.SavedRoute{
		ID:   uuid.NewString(),
		Name: name,
		Coordinates: []domain.Coordinate{
			{Lat: 37.7749, Lng: -122.4194},
			{Lat: 37.7849, Lng: -122.4094},
		},
		RunDetails: domain.RunDetails{
			RouteName:    name,
			Distance:     5.2,
			Duration:     1800,
			Pace:         "6:00",
			ActivityType: "run",
		},
		CreatedAt: time.Now().UTC(),
		UserID:    ownerID,
	}
}

func newTestRouteRepo(t *testing.T) repository.RouteRepository {
	t.Helper()
	repo := NewRouteRepository(newTestDB(t))
	require.NoError(t, repo.Init(context.Background()))
	return repo
}

func TestRouteRepositoryPayloadMapping(t *testing.T) {
	ctx := context.Background()
	repo := newTestRouteRepo(t)

	route := testRoute("owner", "Loop")
	require.NoError(t, repo.Create(ctx, route))

	got, err := repo.Get(ctx, "owner", route.ID)
	require.NoError(t, err)
	assert.Equal(t, route.Name, got.Name)
	assert.Equal(t, route.Coordinates, got.Coordinates)
	assert.Equal(t, route.RunDetails, got.RunDetails)
	assert.Equal(t, route.UserID, got.UserID)
}

func TestRouteRepositoryReplace(t *testing.T) {
	ctx := context.Background()
	repo := newTestRouteRepo(t)

	route := testRoute("owner", "Loop")
	require.NoError(t, repo.Create(ctx, route))

	route.Coordinates = append(route.Coordinates, domain.Coordinate{Lat: 37.7949, Lng: -122.3994})
	route.RunDetails.Distance = 7.5
	route.CreatedAt = route.CreatedAt.Add(time.Minute)
	require.NoError(t, repo.Replace(ctx, route))

	got, err := repo.Get(ctx, "owner", route.ID)
	require.NoError(t, err)
	assert.Len(t, got.Coordinates, 3)
	assert.Equal(t, 7.5, got.RunDetails.Distance)
}

func TestRouteRepositoryReplaceMissing(t *testing.T) {
	ctx := context.Background()
	repo := newTestRouteRepo(t)

	err := repo.Replace(ctx, testRoute("owner", "Loop"))
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRouteRepositoryFindByOwnerAndName(t *testing.T) {
	ctx := context.Background()
	repo := newTestRouteRepo(t)

	older := testRoute("owner", "Loop")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Create(ctx, older))

	newer := testRoute("owner", "Loop")
	require.NoError(t, repo.Create(ctx, newer))

	found, err := repo.FindByOwnerAndName(ctx, "owner", "Loop")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, found.ID, "most recent duplicate wins")

	_, err = repo.FindByOwnerAndName(ctx, "someone-else", "Loop")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRouteRepositoryOwnerScoping(t *testing.T) {
	ctx := context.Background()
	repo := newTestRouteRepo(t)

	mine := testRoute("owner-a", "Loop")
	require.NoError(t, repo.Create(ctx, mine))
	require.NoError(t, repo.Create(ctx, testRoute("owner-b", "Other")))

	listed, err := repo.ListByOwner(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, mine.ID, listed[0].ID)

	_, err = repo.Get(ctx, "owner-b", mine.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)
	require.ErrorIs(t, repo.Delete(ctx, "owner-b", mine.ID), repository.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, "owner-a", mine.ID))
}
