package token

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pilab-dev/shadow-token/domain"
	"github.com/stretchr/testify/mock"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_735_873_686_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// singleProvider serves the same collection under every name.
type singleProvider struct {
	coll domain.TokenCollection
}

//nolint:ireturn
func (p singleProvider) Collection(string) domain.TokenCollection { return p.coll }

// MockCollection is a testify mock of domain.TokenCollection.
type MockCollection struct {
	mock.Mock
}

func (m *MockCollection) InsertOne(ctx context.Context, token *domain.Token) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockCollection) UpdateOne(ctx context.Context, filter domain.TokenFilter, update domain.TokenUpdate) (domain.UpdateResult, error) {
	args := m.Called(ctx, filter, update)
	return args.Get(0).(domain.UpdateResult), args.Error(1)
}

func (m *MockCollection) FindOne(ctx context.Context, filter domain.TokenFilter) (*domain.Token, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Token), args.Error(1)
}

func (m *MockCollection) DeleteOne(ctx context.Context, filter domain.TokenFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCollection) DeleteMany(ctx context.Context, filter domain.TokenFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

// sweepCollection instruments DeleteMany and delegates the rest.
type sweepCollection struct {
	domain.TokenCollection

	calls     atomic.Int64
	completed atomic.Int64

	// When set, the first DeleteMany signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
	blocked atomic.Bool

	fail     error
	panicMsg string
}

func (c *sweepCollection) DeleteMany(ctx context.Context, filter domain.TokenFilter) (int64, error) {
	c.calls.Add(1)
	if c.release != nil && c.blocked.CompareAndSwap(false, true) {
		c.entered <- struct{}{}
		<-c.release
	}
	if c.panicMsg != "" {
		panic(c.panicMsg)
	}
	if c.fail != nil {
		return 0, c.fail
	}
	n, err := c.TokenCollection.DeleteMany(ctx, filter)
	c.completed.Add(1)
	return n, err
}
