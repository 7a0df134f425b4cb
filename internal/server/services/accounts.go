package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/cryptox"
	"github.com/dmitrijs2005/shopkeeper/internal/server/auth"
	"github.com/dmitrijs2005/shopkeeper/internal/server/config"
	"github.com/dmitrijs2005/shopkeeper/internal/server/models"
	"github.com/dmitrijs2005/shopkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
)

// Session is what a successful login hands back to the client.
type Session struct {
	AccessToken string
	Caller      tables.Caller
}

// AccountService handles staff accounts:
// - GetSalt: salt lookup for client-side key derivation
// - Login: verify the verifier and mint an access token
// - Create: provision an account from a plaintext password (admin tooling)
type AccountService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *AccountService {
	return &AccountService{
		db:                          db,
		repomanager:                 m,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
	}
}

// GetSalt returns the account's stored salt or a random salt if the account
// is absent, so the response does not reveal which usernames exist.
func (s *AccountService) GetSalt(ctx context.Context, userName string) ([]byte, error) {
	acc, err := s.repomanager.Accounts(s.db).GetByUsername(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.GenerateRandByteArray(cryptox.SaltSize), nil
		}
		return nil, common.ErrorInternal
	}
	return acc.Salt, nil
}

// Login checks verifierCandidate against the stored verifier and issues an
// access token carrying the account id and role.
func (s *AccountService) Login(ctx context.Context, userName string, verifierCandidate []byte) (*Session, error) {
	acc, err := s.repomanager.Accounts(s.db).GetByUsername(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}
	if !cryptox.VerifiersEqual(acc.Verifier, verifierCandidate) {
		return nil, common.ErrorUnauthorized
	}

	caller := tables.Caller{UserID: acc.ID, Role: tables.ParseRole(acc.Role)}
	token, err := auth.GenerateToken(caller, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return &Session{AccessToken: token, Caller: caller}, nil
}

// Create provisions an account. The password is only used to derive the
// verifier and is wiped afterwards.
func (s *AccountService) Create(ctx context.Context, userName string, password []byte, role tables.Role) (*models.Account, error) {
	defer common.WipeByteArray(password)

	userName = strings.TrimSpace(userName)
	if userName == "" {
		return nil, errors.New("username is required")
	}
	if len(password) == 0 {
		return nil, errors.New("password is required")
	}

	salt := common.GenerateRandByteArray(cryptox.SaltSize)
	acc := &models.Account{
		UserName: userName,
		Salt:     salt,
		Verifier: cryptox.VerifierFor(password, salt),
		Role:     string(role),
	}

	created, err := s.repomanager.Accounts(s.db).Create(ctx, acc)
	if err != nil {
		return nil, fmt.Errorf("error creating account: %w", err)
	}
	return created, nil
}
