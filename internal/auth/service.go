package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/larderhq/larder/internal/shared"
)

const tokenKeyPrefix = "larder:token:"

// Service wraps authentication and bearer-token rules. Tokens are opaque
// strings stored in Redis with a TTL; the value carries the principal.
type Service struct {
	repo   Repository
	client *redis.Client
	ttl    time.Duration
}

// NewService constructs a new Service.
func NewService(repo Repository, client *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Service{repo: repo, client: client, ttl: ttl}
}

type tokenPayload struct {
	EmployeeID int64  `json:"employee_id"`
	Name       string `json:"name"`
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Employee, error) {
	employee, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !employee.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(employee.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return employee, nil
}

// IssueToken mints a bearer token for the employee.
func (s *Service) IssueToken(ctx context.Context, employee *Employee) (string, error) {
	if employee == nil || employee.ID == 0 {
		return "", errors.New("auth: employee required")
	}
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(tokenPayload{EmployeeID: employee.ID, Name: employee.Name})
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, tokenKeyPrefix+token, payload, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve maps a bearer token back to the acting principal.
func (s *Service) Resolve(ctx context.Context, token string) (shared.Principal, error) {
	if token == "" {
		return shared.Principal{}, shared.ErrUnauthorized
	}
	raw, err := s.client.Get(ctx, tokenKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return shared.Principal{}, shared.ErrUnauthorized
		}
		return shared.Principal{}, err
	}
	var payload tokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return shared.Principal{}, shared.ErrUnauthorized
	}
	// Deactivating an employee locks them out immediately, even while their
	// token is still live in Redis.
	employee, err := s.repo.FindByID(ctx, payload.EmployeeID)
	if err != nil {
		if shared.IsNotFound(err) {
			return shared.Principal{}, shared.ErrUnauthorized
		}
		return shared.Principal{}, err
	}
	if !employee.IsActive {
		return shared.Principal{}, shared.ErrUnauthorized
	}
	return shared.Principal{ID: payload.EmployeeID, Name: payload.Name}, nil
}

// Revoke deletes a bearer token.
func (s *Service) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.client.Del(ctx, tokenKeyPrefix+token).Err()
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
