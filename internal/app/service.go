package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"taskboard/api/internal/auth"
	"taskboard/api/internal/authpw"
	"taskboard/api/internal/config"
	"taskboard/api/internal/guard"
	"taskboard/api/internal/metrics"
	"taskboard/api/internal/store"
	"taskboard/api/internal/util"
)

type Session struct {
	Token     string
	UserID    string
	Email     string
	JTI       string
	ExpiresAt time.Time
}

// TokenStore is the deny-list consulted on every authenticated request.
type TokenStore interface {
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// DataStore is satisfied by store.PostgresStore and store.MemoryStore.
type DataStore interface {
	guard.Resolver
	authpw.UserStore
	TokenStore
	GetUserByID(context.Context, string) (store.User, error)
	ListUsers(context.Context) ([]store.User, error)
	ListBoardsByOwner(context.Context, string) ([]store.Board, error)
	InsertBoard(context.Context, store.Board) error
	UpdateBoardTitle(context.Context, string, string) error
	ReorderBoardLists(context.Context, string, []string) error
	DeleteBoard(context.Context, string) error
	ListListsByBoard(context.Context, string) ([]store.List, error)
	InsertList(context.Context, store.List) error
	UpdateListTitle(context.Context, string, string) error
	ReorderListCards(context.Context, string, []string) error
	MoveCards(context.Context, string, string, []string, []string) error
	DeleteList(context.Context, string) error
	ListCardsByList(context.Context, string) ([]store.Card, error)
	InsertCard(context.Context, store.Card) error
	UpdateCardTitle(context.Context, string, string) error
	DeleteCard(context.Context, string) error
	Ping(ctx context.Context) error
}

type Service struct {
	cfg     config.Config
	store   DataStore
	tokens  TokenStore
	guard   *guard.Guard
	auth    *authpw.Service
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

// WithTokenStore moves the revocation deny-list out of the entity store.
func WithTokenStore(tokens TokenStore) Option {
	return func(s *Service) {
		if tokens != nil {
			s.tokens = tokens
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(cfg config.Config, dataStore DataStore, opts ...Option) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	s := &Service{
		cfg:    cfg,
		store:  dataStore,
		tokens: dataStore,
		guard:  guard.New(dataStore),
		auth:   authpw.NewService(dataStore, cfg.BcryptCost),
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

type SignupInput struct {
	Name     string `json:"name" validate:"notblank"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=6"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=6"`
}

type AuthResult struct {
	UserID string
	Name   string
	Email  string
	Token  string
}

func (s *Service) Signup(ctx context.Context, input SignupInput) (AuthResult, error) {
	if err := validateInput(input); err != nil {
		return AuthResult{}, err
	}

	user, err := s.auth.SignUp(ctx, authpw.SignUpRequest{
		Name:     input.Name,
		Email:    input.Email,
		Password: input.Password,
	})
	if errors.Is(err, authpw.ErrEmailTaken) {
		return AuthResult{}, duplicateEmail()
	}
	if err != nil {
		return AuthResult{}, s.internal(ctx, "user.signup", "Signing up failed, please try again later.", err)
	}

	token, err := s.issueToken(user)
	if err != nil {
		return AuthResult{}, s.internal(ctx, "user.signup", "Signing up failed, please try again later.", err)
	}
	return AuthResult{UserID: user.ID, Name: user.Name, Email: user.Email, Token: token}, nil
}

func (s *Service) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	if err := validateInput(input); err != nil {
		return AuthResult{}, err
	}

	user, err := s.auth.SignIn(ctx, authpw.SignInRequest{Email: input.Email, Password: input.Password})
	if errors.Is(err, authpw.ErrInvalidCredentials) {
		return AuthResult{}, authFailed("Invalid credentials, could not log you in.")
	}
	if err != nil {
		return AuthResult{}, s.internal(ctx, "user.login", "Logging in failed, please try again later.", err)
	}

	token, err := s.issueToken(user)
	if err != nil {
		return AuthResult{}, s.internal(ctx, "user.login", "Logging in failed, please try again later.", err)
	}
	return AuthResult{UserID: user.ID, Name: user.Name, Email: user.Email, Token: token}, nil
}

func (s *Service) issueToken(user store.User) (string, error) {
	claims := auth.NewClaims(user.ID, user.Email, util.NewID("jti"), time.Now(), s.cfg.TokenTTL)
	return auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
}

// SessionFromToken verifies a bearer token and rejects revoked ones with
// auth.ErrInvalidToken.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.tokens.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	session := Session{
		Token:  token,
		UserID: claims.UserID,
		Email:  claims.Email,
		JTI:    claims.ID,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

func (s *Service) Logout(ctx context.Context, session Session) error {
	if session.JTI == "" {
		return nil
	}
	if err := s.tokens.RevokeToken(ctx, session.JTI, session.ExpiresAt); err != nil {
		return s.internal(ctx, "user.logout", "Logging out failed, please try again later.", err)
	}
	return nil
}

type BoardTree struct {
	Board store.Board
	Lists []ListTree
}

type ListTree struct {
	List  store.List
	Cards []store.Card
}

type PersonalData struct {
	User   store.User
	Boards []BoardTree
	Token  string
}

// PersonalData loads the acting user with every board, list and card they own.
func (s *Service) PersonalData(ctx context.Context, session Session) (PersonalData, error) {
	const failed = "Fetching user data failed, please try again later."

	user, err := s.store.GetUserByID(ctx, session.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return PersonalData{}, notFound("Could not find user for provided id.")
	}
	if err != nil {
		return PersonalData{}, s.internal(ctx, "user.personal_data", failed, err)
	}

	boards, err := s.store.ListBoardsByOwner(ctx, user.ID)
	if err != nil {
		return PersonalData{}, s.internal(ctx, "user.personal_data", failed, err)
	}

	trees := make([]BoardTree, 0, len(boards))
	for _, board := range boards {
		lists, err := s.store.ListListsByBoard(ctx, board.ID)
		if err != nil {
			return PersonalData{}, s.internal(ctx, "user.personal_data", failed, err)
		}
		tree := BoardTree{Board: board, Lists: make([]ListTree, 0, len(lists))}
		for _, list := range lists {
			cards, err := s.store.ListCardsByList(ctx, list.ID)
			if err != nil {
				return PersonalData{}, s.internal(ctx, "user.personal_data", failed, err)
			}
			tree.Lists = append(tree.Lists, ListTree{List: list, Cards: cards})
		}
		trees = append(trees, tree)
	}

	return PersonalData{User: user, Boards: trees, Token: session.Token}, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]store.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, s.internal(ctx, "user.list", "Fetching users failed, please try again later.", err)
	}
	return users, nil
}

func (s *Service) GetUser(ctx context.Context, userID string) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, notFound("Could not find user for the provided id.")
	}
	if err != nil {
		return store.User{}, s.internal(ctx, "user.get", "Something went wrong, could not find user.", err)
	}
	return user, nil
}

// failure holds the messages one operation reports for each error kind.
type failure struct {
	notFound string
	denied   string
	failed   string
}

// fail maps store and guard errors onto the operation's domain errors.
func (s *Service) fail(ctx context.Context, op string, f failure, err error) error {
	var domainErr *DomainError
	switch {
	case errors.As(err, &domainErr):
		return domainErr
	case errors.Is(err, sql.ErrNoRows):
		return notFound(f.notFound)
	case errors.Is(err, guard.ErrDenied):
		return unauthorized(f.denied)
	case errors.Is(err, store.ErrInvalidOrder):
		return invalidOrder()
	default:
		return s.internal(ctx, op, f.failed, err)
	}
}

func (s *Service) internal(ctx context.Context, op, message string, err error) error {
	s.logger.ErrorContext(ctx, "operation failed",
		"op", op,
		"request_id", requestIDFrom(ctx),
		"error", err,
	)
	return serverError(message)
}

func (s *Service) track(op string, errp *error) {
	s.metrics.Mutation(op, *errp)
}
