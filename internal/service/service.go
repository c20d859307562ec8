package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Tzesh/EcommerceAPI/internal/domain"
	apperrors "github.com/Tzesh/EcommerceAPI/pkg/errors"
)

// EventPublisher emits auth domain events. *event.Producer satisfies it.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, u *domain.User) error
	PublishUserUpdated(ctx context.Context, u *domain.User, actor string) error
	PublishRoleChanged(ctx context.Context, u *domain.User, previous domain.Role, actor string) error
	PublishUserDeleted(ctx context.Context, u *domain.User, actor string) error
}

// LoginLimiter throttles repeated login failures per username.
// *limiter.LoginLimiter satisfies it.
type LoginLimiter interface {
	Check(ctx context.Context, username string) error
	RecordFailure(ctx context.Context, username string) error
	Reset(ctx context.Context, username string) error
	RetryAfter(ctx context.Context, username string) time.Duration
}

// Metrics counts outcomes of auth operations.
type Metrics struct {
	operations *prometheus.CounterVec
}

// NewMetrics registers the auth operation counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		operations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Auth operations by outcome.",
		}, []string{"operation", "outcome"}),
	}
}

func (m *Metrics) record(operation string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome(err)).Inc()
}

// outcome turns err into a low-cardinality label value.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return strings.ToLower(appErr.Code)
	}
	return "error"
}

type options struct {
	events  EventPublisher
	limiter LoginLimiter
	metrics *Metrics
	now     func() time.Time
}

// Option configures optional service collaborators.
type Option func(*options)

// WithEvents publishes domain events through p.
func WithEvents(p EventPublisher) Option {
	return func(o *options) { o.events = p }
}

// WithLoginLimiter throttles failed logins through l.
func WithLoginLimiter(l LoginLimiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithMetrics records operation outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides the audit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// publish runs fn if events are configured. Failures are logged and never
// fail the calling operation.
func publish(ctx context.Context, logger *slog.Logger, events EventPublisher, userID string, fn func(EventPublisher) error) {
	if events == nil {
		return
	}
	if err := fn(events); err != nil {
		logger.ErrorContext(ctx, "failed to publish event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
