package activitymap

import (
	"strings"
	"time"

	"github.com/goliatone/go-authkit"
)

const (
	// MetadataKeyFromKind stores the action token kind before the transition.
	MetadataKeyFromKind = "from_kind"
	// MetadataKeyToKind stores the action token kind after the transition.
	MetadataKeyToKind = "to_kind"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "user"
	defaultActorID    = "system"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	objectType    string
	actorFallback string
}

// Normalize converts an authkit.ActivityEvent into a generic normalized shape.
// Events without a user, such as failed logins for unknown identifiers, are
// attributed to the actor fallback.
func Normalize(event authkit.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	userID := strings.TrimSpace(event.UserID)
	actorID := userID
	if actorID == "" {
		actorID = options.actorFallback
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: options.objectType,
		ObjectID:   userID,
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback sets the actor id used when the event has no user.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// KeyValues flattens a record into logger key/value pairs.
func (n Normalized) KeyValues() []any {
	out := []any{
		"verb", n.Verb,
		"actor_id", n.ActorID,
		"object_type", n.ObjectType,
		"object_id", n.ObjectID,
		"channel", n.Channel,
		"occurred_at", n.OccurredAt,
	}
	if len(n.Metadata) > 0 {
		out = append(out, "metadata", n.Metadata)
	}
	return out
}

func normalizeMetadata(event authkit.ActivityEvent) map[string]any {
	var metadata map[string]any
	if len(event.Metadata) > 0 {
		metadata = make(map[string]any, len(event.Metadata)+2)
		for key, value := range event.Metadata {
			metadata[key] = value
		}
	}

	set := func(key string, kind authkit.TokenKind) {
		if kind == "" {
			return
		}
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[key] = string(kind)
	}
	set(MetadataKeyFromKind, event.FromKind)
	set(MetadataKeyToKind, event.ToKind)

	return metadata
}
