package executor

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ping-42/device-scheduler/scheduler"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrUnavailable is returned by Scope.Executor when a dependency is missing.
var ErrUnavailable = errors.New("action executor unavailable")

// Deps are the long lived resources shared by every execution scope.
type Deps struct {
	DB      *gorm.DB
	Devices DeviceAPI
	Broker  MessageBroker
	Log     *logrus.Entry
	Options Options
}

// Scope binds a db session to one execution attempt.
type Scope struct {
	deps    Deps
	session *gorm.DB
	cancel  context.CancelFunc
}

// NewScopeFunc returns the scope provider installed on the scheduler controller.
func NewScopeFunc(deps Deps) scheduler.ScopeFunc {
	if deps.Options.InstanceID == "" {
		// claims must be attributed to the same owner across iterations
		deps.Options.InstanceID = uuid.NewString()
	}
	return func(ctx context.Context) (scheduler.Scope, error) {
		return NewScope(ctx, deps), nil
	}
}

func NewScope(ctx context.Context, deps Deps) *Scope {
	ctx, cancel := context.WithCancel(ctx)
	s := &Scope{deps: deps, cancel: cancel}
	if deps.DB != nil {
		s.session = deps.DB.WithContext(ctx)
	}
	return s
}

func (s *Scope) Executor() (scheduler.Executor, error) {
	if s.session == nil {
		return nil, errors.Join(ErrUnavailable, errors.New("no database handle"))
	}
	if s.deps.Devices == nil {
		return nil, errors.Join(ErrUnavailable, errors.New("no device cloud client"))
	}
	return New(NewGormStore(s.session), s.deps.Devices, s.deps.Broker, s.deps.Log, s.deps.Options), nil
}

// Release cancels the session context, aborting any query still in flight.
func (s *Scope) Release() {
	s.cancel()
}
