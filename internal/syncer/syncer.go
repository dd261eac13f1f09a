// Package syncer keeps the displayed month in step with the accounting
// service, falling back to the offline cache whenever the service cannot be
// reached.
package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/kthezelais/budget-tracker/internal/service"
	"github.com/kthezelais/budget-tracker/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const defaultRemoteTimeout = 5 * time.Second

// Remote is the accounting service as seen by the client
type Remote interface {
	FetchTransactions(ctx context.Context, timezone, month string) ([]*domain.Transaction, error)
	FetchOldestTransaction(ctx context.Context) (*domain.Transaction, error)
	FetchMonthlyBudgets(ctx context.Context) ([]*domain.MonthlyBudget, error)
	FetchMonthlyBudget(ctx context.Context, month string) (*domain.MonthlyBudget, error)
	CreateMonthlyBudget(ctx context.Context, month string, amount decimal.Decimal, rolloverEnabled bool) (*domain.MonthlyBudget, error)
	UpdateMonthlyBudget(ctx context.Context, month string, update domain.MonthlyBudgetUpdate) (*domain.MonthlyBudget, error)
	FetchBudgetSummary(ctx context.Context, month string) (*domain.BudgetSummary, error)
	FetchSettings(ctx context.Context) ([]*domain.Setting, error)
	UpdateSetting(ctx context.Context, key, value string) (*domain.Setting, error)
	CreateTransaction(ctx context.Context, input domain.TransactionInput) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, id int32, input domain.TransactionInput) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, id int32) error
	RegisterDevice(ctx context.Context, deviceID, username, deviceName string) (*domain.Device, error)
	Subscribe(ctx context.Context) (<-chan websocket.Event, error)
}

// Cache is the offline store of the last synchronized ledger
type Cache interface {
	Load(ctx context.Context, collection string, dst interface{}) error
	Save(ctx context.Context, collection string, records interface{}) error
	LastSyncTime(ctx context.Context) (time.Time, error)
	SetLastSyncTime(ctx context.Context, t time.Time) error
	CurrentMonth(ctx context.Context) (string, error)
	SetCurrentMonth(ctx context.Context, month string) error
}

// State is the phase of the load state machine
type State int

const (
	StateIdle State = iota
	StateLoading
	StateSuccess
	StateDegradedFallback
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSuccess:
		return "success"
	case StateDegradedFallback:
		return "degraded_fallback"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Notice is a user-facing message attached to a load result
type Notice string

const (
	NoticeNone    Notice = ""
	NoticeOffline Notice = "Using offline data"
	NoticeFailed  Notice = "Unable to load budget data"
)

// LoadResult is what the presentation layer renders for a month
type LoadResult struct {
	Month          string
	State          State
	Summary        *domain.BudgetSummary
	Budget         *domain.MonthlyBudget
	Transactions   []*domain.Transaction
	RolloverLocked bool
	Notice         Notice
	LastSync       time.Time
}

// Options configures a Syncer
type Options struct {
	Remote        Remote
	Cache         Cache
	Engine        *service.BudgetEngine
	Timezone      *time.Location
	DeviceID      string
	DefaultBudget decimal.Decimal
	RemoteTimeout time.Duration
	Logger        zerolog.Logger
}

// Syncer orchestrates loads and mutations of the displayed month. Loads and
// mutations never overlap.
type Syncer struct {
	remote        Remote
	cache         Cache
	engine        *service.BudgetEngine
	loc           *time.Location
	deviceID      string
	defaultBudget decimal.Decimal
	remoteTimeout time.Duration
	logger        zerolog.Logger

	// mu serializes loads and mutations
	mu    sync.Mutex
	month string
	last  *LoadResult
	data  *snapshot
	// dirty is set when the cache missed a local write
	dirty bool

	stateMu sync.RWMutex
	state   State
}

// New creates a Syncer
func New(opts Options) *Syncer {
	loc := opts.Timezone
	if loc == nil {
		loc = time.Local
	}
	engine := opts.Engine
	if engine == nil {
		engine = service.NewBudgetEngine(loc)
	}
	defaultBudget := opts.DefaultBudget
	if defaultBudget.IsZero() {
		defaultBudget = domain.DefaultBudgetAmount
	}
	timeout := opts.RemoteTimeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}

	return &Syncer{
		remote:        opts.Remote,
		cache:         opts.Cache,
		engine:        engine,
		loc:           engine.Location(),
		deviceID:      opts.DeviceID,
		defaultBudget: defaultBudget,
		remoteTimeout: timeout,
		logger:        opts.Logger.With().Str("component", "syncer").Logger(),
	}
}

// State returns the current phase of the load state machine
func (s *Syncer) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Syncer) setState(state State) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

// remoteCtx bounds a single remote call
func (s *Syncer) remoteCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.remoteTimeout)
}

// defaultFromSettings returns the default_budget_amount setting or the
// configured fallback
func (s *Syncer) defaultFromSettings(settings []*domain.Setting) decimal.Decimal {
	for _, setting := range settings {
		if setting.Key != domain.SettingDefaultBudgetAmount {
			continue
		}
		if amount, err := decimal.NewFromString(setting.Value); err == nil {
			return amount
		}
	}
	return s.defaultBudget
}

func findBudget(budgets []*domain.MonthlyBudget, month string) *domain.MonthlyBudget {
	for _, b := range budgets {
		if b != nil && b.MonthYear == month {
			return b
		}
	}
	return nil
}
