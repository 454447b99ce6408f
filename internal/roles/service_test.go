package roles

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/consultahub/consulta-server/internal/apperr"
	"github.com/consultahub/consulta-server/internal/domain"
	appredis "github.com/consultahub/consulta-server/pkg/redis"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Find(ctx context.Context, userID string) (domain.Role, error) {
	args := m.Called(ctx, userID)
	role, _ := args.Get(0).(domain.Role)
	return role, args.Error(1)
}

func (m *mockRepo) Upsert(ctx context.Context, userID string, role domain.Role) error {
	args := m.Called(ctx, userID, role)
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCache(t *testing.T) *Cache {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCache(&appredis.Client{Client: client})
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()

	var appErr *apperr.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

func TestService_Get_DefaultsToUserTier(t *testing.T) {
	repo := new(mockRepo)
	repo.On("Find", mock.Anything, "u1").Return(domain.Role(""), sql.ErrNoRows).Once()

	svc := NewService(repo, testCache(t), testLogger())

	role, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, role)
}

func TestService_Get_CachesStoreReads(t *testing.T) {
	repo := new(mockRepo)
	repo.On("Find", mock.Anything, "u1").Return(domain.RolePremium, nil).Once()

	svc := NewService(repo, testCache(t), testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		role, err := svc.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, domain.RolePremium, role)
	}

	repo.AssertNumberOfCalls(t, "Find", 1)
}

func TestService_Get_WorksWithoutCache(t *testing.T) {
	repo := new(mockRepo)
	repo.On("Find", mock.Anything, "u1").Return(domain.RoleAdmin, nil).Twice()

	svc := NewService(repo, nil, testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		role, err := svc.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, domain.RoleAdmin, role)
	}
}

func TestService_Set_AdminCannotTouchAnotherAdmin(t *testing.T) {
	repo := new(mockRepo)
	repo.On("Find", mock.Anything, "actor").Return(domain.RoleAdmin, nil).Once()
	repo.On("Find", mock.Anything, "target").Return(domain.RoleAdmin, nil).Once()

	svc := NewService(repo, testCache(t), testLogger())

	err := svc.Set(context.Background(), "actor", "target", domain.RolePremium)

	assertCode(t, err, "E104")
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Set_OwnerMayChangeAdmin(t *testing.T) {
	repo := new(mockRepo)
	repo.On("Find", mock.Anything, "actor").Return(domain.RoleOwner, nil).Once()
	repo.On("Find", mock.Anything, "target").Return(domain.RoleAdmin, nil).Once()
	repo.On("Upsert", mock.Anything, "target", domain.RoleUser).Return(nil).Once()

	svc := NewService(repo, testCache(t), testLogger())

	err := svc.Set(context.Background(), "actor", "target", domain.RoleUser)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestService_Set_OnlyOwnerGrantsOwner(t *testing.T) {
	repo := new(mockRepo)
	repo.On("Find", mock.Anything, "actor").Return(domain.RoleAdmin, nil).Once()
	repo.On("Find", mock.Anything, "target").Return(domain.RoleUser, nil).Once()

	svc := NewService(repo, testCache(t), testLogger())

	err := svc.Set(context.Background(), "actor", "target", domain.RoleOwner)

	assertCode(t, err, "E104")
}

func TestService_Set_RejectsUnknownRole(t *testing.T) {
	repo := new(mockRepo)

	svc := NewService(repo, testCache(t), testLogger())

	err := svc.Set(context.Background(), "actor", "target", domain.Role("superuser"))

	assertCode(t, err, "E100")
	repo.AssertNotCalled(t, "Find", mock.Anything, mock.Anything)
}

func TestService_Set_InvalidatesCachedRole(t *testing.T) {
	repo := new(mockRepo)
	repo.On("Find", mock.Anything, "target").Return(domain.RoleUser, nil)
	repo.On("Find", mock.Anything, "actor").Return(domain.RoleOwner, nil)

	cache := testCache(t)
	svc := NewService(repo, cache, testLogger())
	ctx := context.Background()

	// prime the cache
	_, err := svc.Get(ctx, "target")
	require.NoError(t, err)
	cached, err := cache.Get(ctx, "target")
	require.NoError(t, err)
	require.Equal(t, domain.RoleUser, cached)

	repo.On("Upsert", mock.Anything, "target", domain.RolePremium).Return(nil).Once()
	require.NoError(t, svc.Set(ctx, "actor", "target", domain.RolePremium))

	cached, err = cache.Get(ctx, "target")
	require.NoError(t, err)
	assert.Equal(t, domain.Role(""), cached)
}

func TestService_Set_HierarchyBypassesCache(t *testing.T) {
	repo := new(mockRepo)
	cache := testCache(t)

	// stale cache claims the target is a plain user; the store knows better
	require.NoError(t, cache.Set(context.Background(), "target", domain.RoleUser, time.Minute))

	repo.On("Find", mock.Anything, "actor").Return(domain.RoleAdmin, nil).Once()
	repo.On("Find", mock.Anything, "target").Return(domain.RoleAdmin, nil).Once()

	svc := NewService(repo, cache, testLogger())

	err := svc.Set(context.Background(), "actor", "target", domain.RoleUser)

	assertCode(t, err, "E104")
}
