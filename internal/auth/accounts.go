package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"microsight/dashboard-service/internal/models"
	"microsight/dashboard-service/internal/role"
	"microsight/dashboard-service/internal/store"

	"golang.org/x/crypto/bcrypt"
)

const accountKeyPrefix = "accounts/"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrSecretMismatch  = errors.New("secret mismatch")
)

type Account struct {
	ID         string         `json:"id"`
	Email      string         `json:"email"`
	Name       string         `json:"name"`
	Role       role.Role      `json:"role"`
	SecretHash string         `json:"secret_hash"`
	Profile    models.Profile `json:"profile"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Accounts remembers identities registered through signup so a later login
// with the same email is checked against the stored secret and role.
type Accounts struct {
	kv   store.Store
	cost int
	mu   sync.Mutex
}

func NewAccounts(kv store.Store) *Accounts {
	return &Accounts{kv: kv, cost: bcrypt.DefaultCost}
}

func (a *Accounts) Lookup(ctx context.Context, email string) (Account, error) {
	raw, err := a.kv.Get(ctx, accountKey(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	var acct Account
	if err := json.Unmarshal([]byte(raw), &acct); err != nil {
		return Account{}, fmt.Errorf("decode account: %w", err)
	}
	acct.Role = role.Normalize(string(acct.Role))
	return acct, nil
}

func (a *Accounts) Register(ctx context.Context, acct Account, secret string) (Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.Lookup(ctx, acct.Email)
	if err == nil {
		return Account{}, ErrAccountExists
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return Account{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), a.cost)
	if err != nil {
		return Account{}, fmt.Errorf("hash secret: %w", err)
	}
	acct.SecretHash = string(hash)
	acct.Role = role.Normalize(string(acct.Role))
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}
	encoded, err := json.Marshal(acct)
	if err != nil {
		return Account{}, fmt.Errorf("encode account: %w", err)
	}
	if err := a.kv.Set(ctx, store.Entry{Key: accountKey(acct.Email), Value: string(encoded)}); err != nil {
		return Account{}, err
	}
	return acct, nil
}

func (a *Accounts) Verify(acct Account, secret string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(acct.SecretHash), []byte(secret)); err != nil {
		return ErrSecretMismatch
	}
	return nil
}

func accountKey(email string) string {
	return accountKeyPrefix + strings.ToLower(strings.TrimSpace(email))
}
