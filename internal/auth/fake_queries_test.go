package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/farmbridge/internal/db"
	dbgen "github.com/noah-isme/farmbridge/internal/db/gen"
)

type memQueries struct {
	mu    sync.Mutex
	users map[string]dbgen.User
}

func newMemQueries() *memQueries {
	return &memQueries{users: map[string]dbgen.User{}}
}

func (m *memQueries) CreateUser(_ context.Context, arg dbgen.CreateUserParams) (dbgen.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, arg.Email) {
			return dbgen.User{}, &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
		}
	}
	u := dbgen.User{
		ID:           db.NewUUID(),
		Email:        arg.Email,
		Name:         arg.Name,
		Role:         arg.Role,
		PasswordHash: arg.PasswordHash,
		CreatedAt:    pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}
	m.users[db.UUIDString(u.ID)] = u
	return u, nil
}

func (m *memQueries) GetUserByEmail(_ context.Context, email string) (dbgen.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return dbgen.User{}, pgx.ErrNoRows
}

func (m *memQueries) GetUserByID(_ context.Context, id pgtype.UUID) (dbgen.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[db.UUIDString(id)]
	if !ok {
		return dbgen.User{}, pgx.ErrNoRows
	}
	return u, nil
}

var cheapParams = &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func newTestService(q Queries) *Service {
	svc, err := NewService(Config{Queries: q, Secret: "test-secret", HashParams: cheapParams})
	if err != nil {
		panic(err)
	}
	return svc
}
