package activitymap_test

import (
	"testing"
	"time"

	"github.com/goliatone/go-authkit"
	"github.com/goliatone/go-authkit/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := authkit.ActivityEvent{
		EventType: authkit.ActivityEventBlocked,
		UserID:    "user-100",
		FromKind:  authkit.KindResetPasswordRequest,
		ToKind:    authkit.KindAccountBlocked,
		Metadata: map[string]any{
			"reason": "abuse",
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "user-100" {
		t.Fatalf("expected actor_id user-100, got %q", out.ActorID)
	}
	if out.Verb != string(authkit.ActivityEventBlocked) {
		t.Fatalf("expected verb %q, got %q", authkit.ActivityEventBlocked, out.Verb)
	}
	if out.ObjectType != "user" || out.ObjectID != "user-100" {
		t.Fatalf("unexpected object %q/%q", out.ObjectType, out.ObjectID)
	}
	if out.Channel != "auth" {
		t.Fatalf("expected channel auth, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}
	if out.Metadata["reason"] != "abuse" {
		t.Fatalf("expected metadata reason abuse, got %#v", out.Metadata["reason"])
	}
	if out.Metadata[activitymap.MetadataKeyFromKind] != "reset-password-request" {
		t.Fatalf("unexpected from_kind %#v", out.Metadata[activitymap.MetadataKeyFromKind])
	}
	if out.Metadata[activitymap.MetadataKeyToKind] != "account-blocked" {
		t.Fatalf("unexpected to_kind %#v", out.Metadata[activitymap.MetadataKeyToKind])
	}
	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeOptionOverrides(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(
		authkit.ActivityEvent{EventType: authkit.ActivityEventPasswordResetSuccess, ToKind: authkit.KindNone},
		activitymap.WithDefaultChannel("security"),
		activitymap.WithDefaultObjectType("account"),
		activitymap.WithActorFallback("reset-link"),
	)

	if out.Channel != "security" {
		t.Fatalf("expected channel security, got %q", out.Channel)
	}
	if out.ObjectType != "account" {
		t.Fatalf("expected object_type account, got %q", out.ObjectType)
	}
	if out.ActorID != "reset-link" {
		t.Fatalf("expected fallback actor, got %q", out.ActorID)
	}
	if out.ObjectID != "" {
		t.Fatalf("expected empty object id, got %q", out.ObjectID)
	}
	if out.Metadata != nil {
		t.Fatalf("expected no metadata, got %+v", out.Metadata)
	}
	if out.OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be set when input is zero")
	}
}

func TestNormalizedKeyValues(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(authkit.ActivityEvent{EventType: authkit.ActivityEventLoginFailure})
	kv := out.KeyValues()
	if len(kv)%2 != 0 {
		t.Fatalf("expected key/value pairs, got %d entries", len(kv))
	}
	if kv[0] != "verb" || kv[1] != string(authkit.ActivityEventLoginFailure) {
		t.Fatalf("unexpected leading pair %v %v", kv[0], kv[1])
	}
	if kv[3] != "system" {
		t.Fatalf("expected system actor, got %v", kv[3])
	}
}
