package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Tzesh/EcommerceAPI/internal/domain"
	pkgkafka "github.com/Tzesh/EcommerceAPI/pkg/kafka"
)

// Kafka topic constants for auth domain events.
const (
	TopicUserRegistered  = "auth.user.registered"
	TopicUserUpdated     = "auth.user.updated"
	TopicUserRoleChanged = "auth.user.role_changed"
	TopicUserDeleted     = "auth.user.deleted"
)

// Event type constants carried in the envelope.
const (
	TypeUserRegistered  = "user.registered"
	TypeUserUpdated     = "user.updated"
	TypeUserRoleChanged = "user.role_changed"
	TypeUserDeleted     = "user.deleted"
)

// Aggregate type constant.
const AggregateTypeUser = "user"

// SourceAuthService identifies events originating from this service.
const SourceAuthService = "auth-service"

// UserData is the payload for registered and updated events.
type UserData struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	AccountType string `json:"account_type"`
	Actor       string `json:"actor"`
}

// RoleChangedData is the payload for a user.role_changed event.
type RoleChangedData struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PreviousRole string `json:"previous_role"`
	Role         string `json:"role"`
	Actor        string `json:"actor"`
}

// UserDeletedData is the payload for a user.deleted event.
type UserDeletedData struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Actor    string `json:"actor"`
}

// Publisher writes an event envelope to a topic. *pkgkafka.Producer
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes auth domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the auth service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func userData(u *domain.User, actor string) UserData {
	return UserData{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Name:        u.Name,
		Role:        string(u.Role),
		AccountType: string(u.AccountType),
		Actor:       actor,
	}
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, u *domain.User) error {
	return p.publish(ctx, TopicUserRegistered, TypeUserRegistered, u.ID, userData(u, u.Username))
}

// PublishUserUpdated publishes a user.updated event.
func (p *Producer) PublishUserUpdated(ctx context.Context, u *domain.User, actor string) error {
	return p.publish(ctx, TopicUserUpdated, TypeUserUpdated, u.ID, userData(u, actor))
}

// PublishRoleChanged publishes a user.role_changed event.
func (p *Producer) PublishRoleChanged(ctx context.Context, u *domain.User, previous domain.Role, actor string) error {
	return p.publish(ctx, TopicUserRoleChanged, TypeUserRoleChanged, u.ID, RoleChangedData{
		ID:           u.ID,
		Username:     u.Username,
		PreviousRole: string(previous),
		Role:         string(u.Role),
		Actor:        actor,
	})
}

// PublishUserDeleted publishes a user.deleted event.
func (p *Producer) PublishUserDeleted(ctx context.Context, u *domain.User, actor string) error {
	return p.publish(ctx, TopicUserDeleted, TypeUserDeleted, u.ID, UserDeletedData{
		ID:       u.ID,
		Username: u.Username,
		Actor:    actor,
	})
}

func (p *Producer) publish(ctx context.Context, topic, eventType, userID string, data any) error {
	event, err := pkgkafka.NewEvent(ctx, eventType, userID, AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "published "+eventType+" event",
		slog.String("user_id", userID),
		slog.String("event_id", event.EventID),
	)

	return nil
}
