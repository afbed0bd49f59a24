package domain

import (
	"encoding/json"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func ts(raw string) json.RawMessage { return json.RawMessage(raw) }

func hasFieldError(errs []FieldError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestValidateEvent_NormalizesAndAccepts(t *testing.T) {
	raw := RawEvent{
		Type:       "article_view",
		Slug:       "  welcome  ",
		SessionID:  " session-1 ",
		OccurredAt: ts(`"2025-06-01T10:00:00Z"`),
	}
	ev, errs := ValidateEvent(raw, testNow, DefaultClockSkew)
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if ev.Slug != "welcome" {
		t.Errorf("Slug = %q, want trimmed %q", ev.Slug, "welcome")
	}
	if ev.SessionID != "session-1" {
		t.Errorf("SessionID = %q, want trimmed %q", ev.SessionID, "session-1")
	}
	if ev.Type != EventTypeArticleView {
		t.Errorf("Type = %q, want %q", ev.Type, EventTypeArticleView)
	}
	want := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if !ev.OccurredAt.Equal(want) {
		t.Errorf("OccurredAt = %v, want %v", ev.OccurredAt, want)
	}
	if ev.Identity != nil {
		t.Errorf("Identity = %+v, want nil for anonymous event", ev.Identity)
	}
}

func TestValidateEvent_ClosedTypeSet(t *testing.T) {
	for _, typ := range []string{"article_view", "interaction"} {
		raw := RawEvent{Type: typ, Slug: "welcome", SessionID: "s1", OccurredAt: ts(`"2025-06-01T10:00:00Z"`)}
		if _, errs := ValidateEvent(raw, testNow, DefaultClockSkew); len(errs) > 0 {
			t.Errorf("type %q rejected: %v", typ, errs)
		}
	}
	for _, typ := range []string{"page_view", "click", "ARTICLE_VIEW", "unknown"} {
		raw := RawEvent{Type: typ, Slug: "welcome", SessionID: "s1", OccurredAt: ts(`"2025-06-01T10:00:00Z"`)}
		_, errs := ValidateEvent(raw, testNow, DefaultClockSkew)
		if !hasFieldError(errs, "type") {
			t.Errorf("type %q accepted, want rejection", typ)
		}
	}
}

func TestValidateEvent_RequiredFields(t *testing.T) {
	tests := []struct {
		name  string
		raw   RawEvent
		field string
	}{
		{"missing type", RawEvent{Slug: "a", SessionID: "s", OccurredAt: ts(`1748772000`)}, "type"},
		{"missing slug", RawEvent{Type: "interaction", SessionID: "s", OccurredAt: ts(`1748772000`)}, "slug"},
		{"blank slug", RawEvent{Type: "interaction", Slug: "   ", SessionID: "s", OccurredAt: ts(`1748772000`)}, "slug"},
		{"missing session", RawEvent{Type: "interaction", Slug: "a", OccurredAt: ts(`1748772000`)}, "sessionId"},
		{"blank session", RawEvent{Type: "interaction", Slug: "a", SessionID: " ", OccurredAt: ts(`1748772000`)}, "sessionId"},
		{"missing timestamp", RawEvent{Type: "interaction", Slug: "a", SessionID: "s"}, "occurredAt"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, errs := ValidateEvent(tc.raw, testNow, DefaultClockSkew)
			if !hasFieldError(errs, tc.field) {
				t.Errorf("want error on %q, got %v", tc.field, errs)
			}
		})
	}
}

func TestValidateEvent_OccurredAtForms(t *testing.T) {
	sec := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		raw  json.RawMessage
		want time.Time
		ok   bool
	}{
		{"rfc3339", ts(`"2025-06-01T10:00:00Z"`), sec, true},
		{"rfc3339 offset", ts(`"2025-06-01T12:00:00+02:00"`), sec, true},
		{"epoch seconds", ts(`1748772000`), time.Unix(1748772000, 0).UTC(), true},
		{"epoch millis", ts(`1748772000000`), time.UnixMilli(1748772000000).UTC(), true},
		{"garbage string", ts(`"yesterday"`), time.Time{}, false},
		{"negative", ts(`-5`), time.Time{}, false},
		{"bool", ts(`true`), time.Time{}, false},
		{"null", ts(`null`), time.Time{}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw := RawEvent{Type: "interaction", Slug: "a", SessionID: "s", OccurredAt: tc.raw}
			ev, errs := ValidateEvent(raw, testNow, DefaultClockSkew)
			if tc.ok {
				if len(errs) > 0 {
					t.Fatalf("unexpected errors: %v", errs)
				}
				if !ev.OccurredAt.Equal(tc.want) {
					t.Errorf("OccurredAt = %v, want %v", ev.OccurredAt, tc.want)
				}
				return
			}
			if !hasFieldError(errs, "occurredAt") {
				t.Errorf("want occurredAt error, got %v", errs)
			}
		})
	}
}

func TestValidateEvent_FutureSkew(t *testing.T) {
	within := RawEvent{Type: "interaction", Slug: "a", SessionID: "s",
		OccurredAt: ts(`"` + testNow.Add(time.Minute).Format(time.RFC3339) + `"`)}
	if _, errs := ValidateEvent(within, testNow, 5*time.Minute); len(errs) > 0 {
		t.Errorf("timestamp within skew rejected: %v", errs)
	}

	beyond := RawEvent{Type: "interaction", Slug: "a", SessionID: "s",
		OccurredAt: ts(`"` + testNow.Add(time.Hour).Format(time.RFC3339) + `"`)}
	if _, errs := ValidateEvent(beyond, testNow, 5*time.Minute); !hasFieldError(errs, "occurredAt") {
		t.Errorf("timestamp beyond skew accepted")
	}
}

func TestValidateEvent_Identity(t *testing.T) {
	base := RawEvent{Type: "interaction", Slug: "a", SessionID: "s", OccurredAt: ts(`1748772000`)}

	// absent entirely: valid and anonymous
	if ev, errs := ValidateEvent(base, testNow, DefaultClockSkew); len(errs) > 0 || ev.Identity != nil {
		t.Errorf("anonymous event: errs=%v identity=%+v", errs, ev.Identity)
	}

	// present but empty: validation failure, distinct from absent
	withEmpty := base
	withEmpty.Identity = &Identity{Email: "   "}
	if _, errs := ValidateEvent(withEmpty, testNow, DefaultClockSkew); !hasFieldError(errs, "identity.email") {
		t.Errorf("empty identity accepted")
	}

	withEmail := base
	withEmail.Identity = &Identity{Email: " user@example.com "}
	ev, errs := ValidateEvent(withEmail, testNow, DefaultClockSkew)
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if ev.Identity == nil || ev.Identity.Email != "user@example.com" {
		t.Errorf("Identity = %+v, want trimmed email", ev.Identity)
	}
}

func TestValidateEvent_IgnoresUnknownKeys(t *testing.T) {
	payload := []byte(`{
		"type": "article_view",
		"slug": "welcome",
		"sessionId": "s1",
		"occurredAt": "2025-06-01T10:00:00Z",
		"referrer": "https://example.org",
		"experiment": {"bucket": 3}
	}`)
	var raw RawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, errs := ValidateEvent(raw, testNow, DefaultClockSkew); len(errs) > 0 {
		t.Errorf("payload with extra keys rejected: %v", errs)
	}
}

func TestValidateBatch_OneBadEventKeepsSiblings(t *testing.T) {
	raws := []RawEvent{
		{Type: "article_view", Slug: "welcome", SessionID: "s1", OccurredAt: ts(`1748772000`)},
		{Type: "bogus", Slug: "welcome", SessionID: "s2", OccurredAt: ts(`1748772000`)},
		{Type: "interaction", Slug: "about", SessionID: "s3", OccurredAt: ts(`1748772000`)},
	}
	valid, rejected, topErr := ValidateBatch(raws, 100, testNow, DefaultClockSkew)
	if topErr != nil {
		t.Fatalf("topErr: %v", topErr)
	}
	if len(valid) != 2 {
		t.Errorf("valid = %d, want 2", len(valid))
	}
	if len(rejected) != 1 {
		t.Fatalf("rejected = %v, want one entry", rejected)
	}
	if _, ok := rejected[1]; !ok {
		t.Errorf("rejected index = %v, want index 1", rejected)
	}

	m := FieldErrorMap(rejected)
	if _, ok := m["events[1].type"]; !ok {
		t.Errorf("FieldErrorMap = %v, want events[1].type key", m)
	}
}

func TestValidateBatch_MaxItems(t *testing.T) {
	raws := make([]RawEvent, 3)
	if _, _, topErr := ValidateBatch(raws, 2, testNow, DefaultClockSkew); topErr == nil {
		t.Error("oversized batch accepted")
	}
}
