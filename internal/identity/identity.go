// Package identity manages the user directory and bearer-token auth. The
// workflow core only consumes the resolved actor (id + role labels); session
// handling stays here at the boundary.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fiecsoft/procflow/internal/model"
	"github.com/fiecsoft/procflow/internal/workflow"
)

// ErrInvalidCredentials covers unknown emails, wrong passwords, and inactive
// accounts without distinguishing them to the caller.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidToken covers malformed, expired, or mis-signed tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// Store is the persistence boundary for directory entries.
type Store interface {
	CreateUser(ctx context.Context, u *model.User) error
	UserByID(ctx context.Context, id string) (*model.User, error)
	UserByEmail(ctx context.Context, email string) (*model.User, error)
	SaveUser(ctx context.Context, u *model.User) error
	ListUsers(ctx context.Context) ([]model.User, error)
}

// Service issues tokens and manages users.
type Service struct {
	store    Store
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

// NewService constructs the identity service.
func NewService(store Store, secret []byte, tokenTTL time.Duration) *Service {
	return &Service{
		store:    store,
		secret:   secret,
		tokenTTL: tokenTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateUser registers a directory entry with a bcrypt password hash.
func (s *Service) CreateUser(ctx context.Context, fullName, email, password string, roles []string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, &workflow.ValidationError{Entity: "user", Field: "email", Reason: "is required"}
	}
	if len(password) < 6 {
		return nil, &workflow.ValidationError{Entity: "user", Field: "password", Reason: "must be at least 6 characters"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{
		ID:           uuid.NewString(),
		FullName:     fullName,
		Email:        email,
		PasswordHash: string(hash),
		Active:       true,
		Roles:        append([]string(nil), roles...),
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// SetActive toggles an account. Inactive users cannot log in or be made
// responsible for new instances.
func (s *Service) SetActive(ctx context.Context, userID string, active bool) (*model.User, error) {
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.Active = active
	if err := s.store.SaveUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate verifies credentials and returns a signed bearer token.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, *model.User, error) {
	u, err := s.store.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if !u.Active {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": u.ID,
		"roles":   u.Roles,
		"iat":     now.Unix(),
		"exp":     now.Add(s.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, u, nil
}

// VerifyToken parses a bearer token and resolves the workflow actor.
func (s *Service) VerifyToken(tokenString string) (workflow.Actor, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return workflow.Actor{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return workflow.Actor{}, ErrInvalidToken
	}
	exp, ok := claims["exp"].(float64)
	if !ok || int64(exp) < s.now().Unix() {
		return workflow.Actor{}, ErrInvalidToken
	}
	id, _ := claims["user_id"].(string)
	if id == "" {
		return workflow.Actor{}, ErrInvalidToken
	}
	actor := workflow.Actor{ID: id}
	if raw, ok := claims["roles"].([]interface{}); ok {
		for _, r := range raw {
			if role, ok := r.(string); ok {
				actor.Roles = append(actor.Roles, role)
			}
		}
	}
	return actor, nil
}

// Users lists the directory.
func (s *Service) Users(ctx context.Context) ([]model.User, error) {
	return s.store.ListUsers(ctx)
}

type contextKey struct{}

// WithActor stores the resolved actor on the request context.
func WithActor(ctx context.Context, actor workflow.Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// ActorFrom retrieves the actor placed by the auth middleware.
func ActorFrom(ctx context.Context) (workflow.Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(workflow.Actor)
	return actor, ok
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return header[7:], true
	}
	return "", false
}
