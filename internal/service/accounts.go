package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/gleenn/diaspora/internal/crypto"
	"github.com/gleenn/diaspora/internal/errs"
	"github.com/gleenn/diaspora/internal/handle"
	"github.com/gleenn/diaspora/internal/model"
	"github.com/gleenn/diaspora/internal/repository"
)

// AccountService provisions and authenticates local users.
type AccountService interface {
	// Provision creates a local user and its person, handle derived from
	// username and the pod host.
	Provision(ctx context.Context, username, password string, profile model.Profile) (*model.User, *model.Person, error)
	// Login authenticates by handle without ever contacting another pod.
	Login(ctx context.Context, rawHandle, password string) (model.Tokens, *model.Person, error)
	// DeleteAccount destroys the user's person, its edges and the user.
	DeleteAccount(ctx context.Context, userID uuid.UUID) (model.DestroyReport, error)
}

type AccountServiceImpl struct {
	users     repository.UserRepository
	people    repository.PersonRepository
	resolver  PeopleService
	lifecycle LifecycleService
	podHost   string
	signKey   []byte
	accessTTL time.Duration
	log       *zap.Logger
}

// NewAccountService constructs AccountService with required dependencies.
func NewAccountService(
	users repository.UserRepository,
	people repository.PersonRepository,
	resolver PeopleService,
	lifecycle LifecycleService,
	podHost string,
	signKey []byte,
	accessTTL time.Duration,
	log *zap.Logger,
) *AccountServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountServiceImpl{
		users: users, people: people, resolver: resolver, lifecycle: lifecycle,
		podHost: podHost, signKey: signKey, accessTTL: accessTTL, log: log,
	}
}

// Provision implements AccountService.
func (s *AccountServiceImpl) Provision(ctx context.Context, username, password string, profile model.Profile) (*model.User, *model.Person, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, nil, errors.New("validation: empty username/password")
	}
	h, err := handle.ForLocalUser(username, s.podHost)
	if err != nil {
		return nil, nil, err
	}
	if err := profile.Validate(); err != nil {
		return nil, nil, err
	}
	// fast path for a friendlier error; the unique index still decides races
	taken, err := s.people.ExistsWithHandle(ctx, h, uuid.Nil)
	if err != nil {
		return nil, nil, fmt.Errorf("check handle: %w", err)
	}
	if taken {
		return nil, nil, fmt.Errorf("handle %q: %w", h, errs.ErrAlreadyExists)
	}

	pwdHash, err := pkgcrypto.HashPassword(password)
	if err != nil {
		return nil, nil, err
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return nil, nil, err
	}
	pid, err := uuid.NewV4()
	if err != nil {
		return nil, nil, err
	}
	u := &model.User{ID: uid, Username: username, PwdHash: pwdHash}
	p := &model.Person{ID: pid, Handle: h, Profile: profile}
	if err := s.users.CreateWithPerson(ctx, u, p); err != nil {
		return nil, nil, err
	}
	s.log.Info("local user provisioned", zap.String("handle", h.String()), zap.String("user_id", uid.String()))
	return u, p, nil
}

// Login implements AccountService. Unknown handles, remote persons and wrong
// passwords are indistinguishable to the caller.
func (s *AccountServiceImpl) Login(ctx context.Context, rawHandle, password string) (model.Tokens, *model.Person, error) {
	p, err := s.resolver.ResolveLocal(ctx, rawHandle)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrInvalidIdentifier) {
			return model.Tokens{}, nil, errs.ErrUnauthorized
		}
		return model.Tokens{}, nil, err
	}
	u, err := s.users.GetByPersonID(ctx, p.ID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Tokens{}, nil, errs.ErrUnauthorized
		}
		return model.Tokens{}, nil, err
	}
	ok, err := pkgcrypto.VerifyPassword(password, u.PwdHash)
	if err != nil {
		s.log.Error("stored password hash unreadable", zap.String("user_id", u.ID.String()), zap.Error(err))
		return model.Tokens{}, nil, errs.ErrUnauthorized
	}
	if !ok {
		return model.Tokens{}, nil, errs.ErrUnauthorized
	}

	access, exp, err := s.issueAccessToken(p.ID)
	if err != nil {
		return model.Tokens{}, nil, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, p, nil
}

// issueAccessToken creates a signed HS256 JWT for the given person.
func (s *AccountServiceImpl) issueAccessToken(personID uuid.UUID) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   personID.String(),
		Issuer:    s.podHost,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

// DeleteAccount implements AccountService.
func (s *AccountServiceImpl) DeleteAccount(ctx context.Context, userID uuid.UUID) (model.DestroyReport, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.DestroyReport{}, err
	}
	return s.lifecycle.Destroy(ctx, u.PersonID, DestroyOptions{Force: true})
}

var _ AccountService = (*AccountServiceImpl)(nil)
