package testutil

import (
	"context"
	"sync"

	"github.com/gritlabs/backend/internal/client"
)

type MockLedger struct {
	FindAccountByCredentialFunc func(ctx context.Context, service, value string) (*client.Account, error)
	FindAccountByIDFunc         func(ctx context.Context, accountRef string) (*client.Account, error)
	AdjustBalanceFunc           func(ctx context.Context, accountRef string, delta int64, memo string) (int64, error)
	LinkCredentialFunc          func(ctx context.Context, service, value, accountRef string) error
}

func (m *MockLedger) FindAccountByCredential(ctx context.Context, service, value string) (*client.Account, error) {
	if m.FindAccountByCredentialFunc != nil {
		return m.FindAccountByCredentialFunc(ctx, service, value)
	}

	return nil, nil
}

func (m *MockLedger) FindAccountByID(ctx context.Context, accountRef string) (*client.Account, error) {
	if m.FindAccountByIDFunc != nil {
		return m.FindAccountByIDFunc(ctx, accountRef)
	}

	return nil, nil
}

func (m *MockLedger) AdjustBalance(ctx context.Context, accountRef string, delta int64, memo string) (int64, error) {
	if m.AdjustBalanceFunc != nil {
		return m.AdjustBalanceFunc(ctx, accountRef, delta, memo)
	}

	return 0, nil
}

func (m *MockLedger) LinkCredential(ctx context.Context, service, value, accountRef string) error {
	if m.LinkCredentialFunc != nil {
		return m.LinkCredentialFunc(ctx, service, value, accountRef)
	}

	return nil
}

// InMemoryLedger keeps accounts and balances in memory so entry and merge
// flows can run end to end against a deterministic balance store.
type InMemoryLedger struct {
	mutex sync.Mutex

	accounts    map[string]*client.Account
	credentials map[string]string
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		accounts:    make(map[string]*client.Account),
		credentials: make(map[string]string),
	}
}

func (l *InMemoryLedger) AddAccount(accountRef string, points int64) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.accounts[accountRef] = &client.Account{ID: accountRef, Points: points}
}

func (l *InMemoryLedger) FindAccountByCredential(ctx context.Context, service, value string) (*client.Account, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	ref, ok := l.credentials[service+":"+value]
	if !ok {
		return nil, nil
	}

	return l.accounts[ref], nil
}

func (l *InMemoryLedger) FindAccountByID(ctx context.Context, accountRef string) (*client.Account, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	account, ok := l.accounts[accountRef]
	if !ok {
		return nil, nil
	}

	return account, nil
}

func (l *InMemoryLedger) AdjustBalance(ctx context.Context, accountRef string, delta int64, memo string) (int64, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	account, ok := l.accounts[accountRef]
	if !ok {
		return 0, nil
	}

	account.Points += delta
	return account.Points, nil
}

func (l *InMemoryLedger) LinkCredential(ctx context.Context, service, value, accountRef string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.credentials[service+":"+value] = accountRef
	return nil
}
