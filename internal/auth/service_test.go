package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/larderhq/larder/internal/shared"
)

type fakeEmployees struct {
	byEmail map[string]*Employee
	byID    map[int64]*Employee
}

func (r *fakeEmployees) FindByEmail(_ context.Context, email string) (*Employee, error) {
	e, ok := r.byEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return e, nil
}

func (r *fakeEmployees) FindByID(_ context.Context, id int64) (*Employee, error) {
	e, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return e, nil
}

func newTestService(t *testing.T) (*Service, *fakeEmployees, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	hash, err := bcrypt.GenerateFromPassword([]byte("kitchen123"), bcrypt.MinCost)
	require.NoError(t, err)
	ana := &Employee{ID: 1, Name: "Ana Ruiz", Email: "ana@larder.local", PasswordHash: string(hash), IsActive: true}
	former := &Employee{ID: 2, Name: "Old Hand", Email: "old@larder.local", PasswordHash: string(hash), IsActive: false}

	repo := &fakeEmployees{
		byEmail: map[string]*Employee{ana.Email: ana, former.Email: former},
		byID:    map[int64]*Employee{ana.ID: ana, former.ID: former},
	}
	return NewService(repo, client, time.Hour), repo, mr
}

func TestAuthenticate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	employee, err := svc.Authenticate(ctx, "ana@larder.local", "kitchen123")
	require.NoError(t, err)
	require.Equal(t, int64(1), employee.ID)

	_, err = svc.Authenticate(ctx, "ana@larder.local", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@larder.local", "kitchen123")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	// Deactivated employees cannot log in even with the right password.
	_, err = svc.Authenticate(ctx, "old@larder.local", "kitchen123")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestTokenRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	employee, err := svc.Authenticate(ctx, "ana@larder.local", "kitchen123")
	require.NoError(t, err)

	token, err := svc.IssueToken(ctx, employee)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	principal, err := svc.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, int64(1), principal.ID)
	require.Equal(t, "Ana Ruiz", principal.Name)

	require.NoError(t, svc.Revoke(ctx, token))
	_, err = svc.Resolve(ctx, token)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestResolveRejectsDeactivatedEmployee(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	employee, err := svc.Authenticate(ctx, "ana@larder.local", "kitchen123")
	require.NoError(t, err)
	token, err := svc.IssueToken(ctx, employee)
	require.NoError(t, err)

	// Deactivation takes effect while the token is still live in Redis.
	repo.byID[employee.ID].IsActive = false
	_, err = svc.Resolve(ctx, token)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	// Same for a deleted employee record.
	delete(repo.byID, employee.ID)
	_, err = svc.Resolve(ctx, token)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestResolveExpiredToken(t *testing.T) {
	svc, _, mr := newTestService(t)
	ctx := context.Background()

	employee, err := svc.Authenticate(ctx, "ana@larder.local", "kitchen123")
	require.NoError(t, err)
	token, err := svc.IssueToken(ctx, employee)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	_, err = svc.Resolve(ctx, token)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestResolveUnknownToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Resolve(context.Background(), "not-a-token")
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = svc.Resolve(context.Background(), "")
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}
