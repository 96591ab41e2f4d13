// Package activitymap flattens auth.ActivityEvent values into a flat record
// that metrics labels and audit log lines can consume directly.
package activitymap

import (
	"fmt"
	"sort"
	"strings"
	"time"

	auth "github.com/vaultx/vaultx-auth"
)

// Attribute keys produced by the core packages.
const (
	KeyReason    = "reason"
	KeyProvider  = "provider"
	KeyCreated   = "created"
	KeyRule      = "rule"
	KeyActorType = "actor_type"
)

const (
	ChannelAuth  = "auth"
	ChannelAdmin = "admin"

	// Unknown is returned by Label for attributes the event did not carry
	Unknown = "unknown"

	defaultActorID = "system"
)

// Normalized is the flattened form of an activity event. Attribute values
// are always strings.
type Normalized struct {
	ActorID    string            `json:"actor_id"`
	Verb       string            `json:"verb"`
	Channel    string            `json:"channel"`
	Subject    string            `json:"subject,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	actorFallback string
	now           auth.Clock
}

// WithActorFallback sets the actor id used when the event names neither an
// actor nor a user.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if actorID = strings.TrimSpace(actorID); actorID != "" {
			opts.actorFallback = actorID
		}
	}
}

// WithClock stamps events that carry no OccurredAt
func WithClock(clock auth.Clock) Option {
	return func(opts *normalizeOptions) {
		if clock != nil {
			opts.now = clock
		}
	}
}

// Normalize converts an auth.ActivityEvent into a Normalized record. The
// channel is the verb prefix, so "admin.user.deleted" lands in "admin".
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		actorFallback: defaultActorID,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	verb := strings.TrimSpace(string(event.EventType))

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now()
	}

	return Normalized{
		ActorID: firstNonEmpty(
			strings.TrimSpace(event.Actor.ID),
			strings.TrimSpace(event.UserID),
			options.actorFallback,
		),
		Verb:       verb,
		Channel:    channelFor(verb),
		Subject:    strings.TrimSpace(event.UserID),
		Attributes: attributes(event),
		OccurredAt: occurredAt,
	}
}

// Label returns the attribute stored under key or Unknown
func (n Normalized) Label(key string) string {
	if v, ok := n.Attributes[key]; ok && v != "" {
		return v
	}
	return Unknown
}

// Fields renders the record as alternating key/value pairs for auth.Logger.
// Attributes follow the fixed fields in key order.
func (n Normalized) Fields() []any {
	fields := []any{"verb", n.Verb, "channel", n.Channel, "actor", n.ActorID}
	if n.Subject != "" {
		fields = append(fields, "subject", n.Subject)
	}

	keys := make([]string, 0, len(n.Attributes))
	for k := range n.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fields = append(fields, k, n.Attributes[k])
	}
	return fields
}

func channelFor(verb string) string {
	prefix, _, found := strings.Cut(verb, ".")
	if !found || prefix == "" {
		return ChannelAuth
	}
	switch prefix {
	case ChannelAdmin:
		return ChannelAdmin
	default:
		return ChannelAuth
	}
}

func attributes(event auth.ActivityEvent) map[string]string {
	var out map[string]string
	set := func(key, value string) {
		if out == nil {
			out = map[string]string{}
		}
		out[key] = value
	}

	for key, value := range event.Metadata {
		key = strings.TrimSpace(key)
		if key == "" || value == nil {
			continue
		}
		set(key, fmt.Sprint(value))
	}

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, exists := out[KeyActorType]; !exists {
			set(KeyActorType, actorType)
		}
	}

	if provider := strings.TrimSpace(event.Provider); provider != "" {
		set(KeyProvider, strings.ToLower(provider))
	}

	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
