// Package memory is an in-process RepositoryManager. It backs the server's
// "memory" DSN for local development and the service tests. Transactions are
// serialised with every other write and rolled back by restoring a snapshot.
package memory

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/blacklist"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

// DSN selects the in-memory store in the server configuration.
const DSN = "memory"

type state struct {
	users     map[string]models.User
	tokens    map[string]models.RefreshToken
	blacklist map[string]models.BlacklistedToken
}

func (s state) clone() state {
	c := state{
		users:     make(map[string]models.User, len(s.users)),
		tokens:    make(map[string]models.RefreshToken, len(s.tokens)),
		blacklist: make(map[string]models.BlacklistedToken, len(s.blacklist)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.blacklist {
		c.blacklist[k] = v
	}
	return c
}

// txKey marks a context as running inside WithTx of the manager it holds.
type txKey struct{}

// RepositoryManager keeps all rows in maps. txMu is held for the whole of a
// transaction and for every write made outside one, so a rollback never
// discards writes it does not own. mu guards data.
type RepositoryManager struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data state
}

func NewRepositoryManager() *RepositoryManager {
	return &RepositoryManager{data: state{
		users:     map[string]models.User{},
		tokens:    map[string]models.RefreshToken{},
		blacklist: map[string]models.BlacklistedToken{},
	}}
}

func (m *RepositoryManager) RunMigrations(context.Context) error { return nil }

func (m *RepositoryManager) DB() dbx.DBTX { return nil }

// WithTx runs fn exclusively against the store and restores the previous
// state when fn fails, panics or ctx ends before fn returns.
func (m *RepositoryManager) WithTx(ctx context.Context, fn dbx.TxFunc) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	snapshot := m.data.clone()
	m.mu.RUnlock()

	defer func() {
		if p := recover(); p != nil {
			m.restore(snapshot)
			panic(p)
		}
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			m.restore(snapshot)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, m), nil)
}

func (m *RepositoryManager) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*RepositoryManager)
	return owner == m
}

// lockWrite takes the locks a write needs. Outside a transaction it waits for
// any running transaction to finish first.
func (m *RepositoryManager) lockWrite(ctx context.Context) (unlock func()) {
	if m.inTx(ctx) {
		m.mu.Lock()
		return m.mu.Unlock
	}
	m.txMu.Lock()
	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		m.txMu.Unlock()
	}
}

func (m *RepositoryManager) restore(s state) {
	m.mu.Lock()
	m.data = s
	m.mu.Unlock()
}

func (m *RepositoryManager) Users(dbx.DBTX) users.Repository {
	return &userRepo{m: m}
}

func (m *RepositoryManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return &tokenRepo{m: m}
}

func (m *RepositoryManager) Blacklist(dbx.DBTX) blacklist.Repository {
	return &blacklistRepo{m: m}
}

// RefreshTokenSnapshot returns a copy of every stored refresh-token record.
func (m *RepositoryManager) RefreshTokenSnapshot() []models.RefreshToken {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.RefreshToken, 0, len(m.data.tokens))
	for _, t := range m.data.tokens {
		out = append(out, t)
	}
	return out
}
