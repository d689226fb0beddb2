package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"microsight/dashboard-service/internal/apperr"
	"microsight/dashboard-service/internal/models"
	"microsight/dashboard-service/internal/role"
	"microsight/dashboard-service/internal/store"

	"go.uber.org/zap"
)

const (
	TokenKey = "token"
	UserKey  = "user"
)

// Store is the single source of truth for who is signed in and as what role.
type Store interface {
	Initialize(ctx context.Context) error
	Ready() bool
	Get() (models.Session, bool)
	Set(ctx context.Context, s models.Session) error
	Clear(ctx context.Context) error
}

// Persistent keeps the current session in memory and mirrors it to a
// key-value store under the token and user keys.
type Persistent struct {
	kv     store.Store
	logger *zap.Logger

	mu      sync.RWMutex
	current *models.Session
	ready   bool
}

func NewPersistent(kv store.Store, logger *zap.Logger) *Persistent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persistent{kv: kv, logger: logger}
}

// Initialize loads the persisted record. An unreadable record is treated as
// a corrupt session: both keys are removed and no session is exposed. The
// store is ready once Initialize returns, whatever the outcome.
func (p *Persistent) Initialize(ctx context.Context) error {
	defer func() {
		p.mu.Lock()
		p.ready = true
		p.mu.Unlock()
	}()

	raw, err := p.kv.Get(ctx, UserKey)
	if errors.Is(err, store.ErrNotFound) {
		p.setCurrent(nil)
		return nil
	}
	if err != nil {
		p.setCurrent(nil)
		return fmt.Errorf("read user record: %w", err)
	}

	var record models.UserRecord
	if err := decodeRecord(raw, &record); err != nil {
		p.logger.Warn("discarding stored session", zap.Error(apperr.SessionCorruption(err)))
		p.setCurrent(nil)
		return p.Clear(ctx)
	}

	token, err := p.kv.Get(ctx, TokenKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		p.setCurrent(nil)
		return fmt.Errorf("read token: %w", err)
	}

	if _, known := role.Parse(record.Role); !known {
		p.logger.Warn("unknown stored role, using default",
			zap.String("role", record.Role),
			zap.String("default", string(role.User)),
		)
	}
	record.Role = string(role.Normalize(record.Role))
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode user record: %w", err)
	}
	if err := p.kv.Set(ctx, store.Entry{Key: UserKey, Value: string(encoded)}); err != nil {
		return fmt.Errorf("write normalized user record: %w", err)
	}

	s := record.Session(token)
	p.setCurrent(&s)
	return nil
}

func (p *Persistent) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

func (p *Persistent) Get() (models.Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return models.Session{}, false
	}
	return *p.current, true
}

// Set replaces the current session and persists token and user record in
// one write.
func (p *Persistent) Set(ctx context.Context, s models.Session) error {
	s.Role = role.Normalize(string(s.Role))
	encoded, err := json.Marshal(models.RecordFromSession(s))
	if err != nil {
		return fmt.Errorf("encode user record: %w", err)
	}
	err = p.kv.Set(ctx,
		store.Entry{Key: TokenKey, Value: s.Token},
		store.Entry{Key: UserKey, Value: string(encoded)},
	)
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	p.setCurrent(&s)
	return nil
}

// Clear removes both keys and then forgets the session. When the delete
// fails the session stays as it is, matching what storage still holds.
func (p *Persistent) Clear(ctx context.Context) error {
	if err := p.kv.Delete(ctx, TokenKey, UserKey); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	p.setCurrent(nil)
	return nil
}

func (p *Persistent) setCurrent(s *models.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = s
}

var errEmptyRecord = errors.New("user record has no identity")

func decodeRecord(raw string, record *models.UserRecord) error {
	if err := json.Unmarshal([]byte(raw), record); err != nil {
		return err
	}
	if record.ID == "" && record.Email == "" {
		return errEmptyRecord
	}
	return nil
}
