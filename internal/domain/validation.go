package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldError represents a single field's validation error.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// epoch values above this are treated as milliseconds rather than seconds
const epochMillisCutoff = int64(1_000_000_000_000)

// ValidateEvent checks one decoded payload and, on success, returns the
// normalized Event (trimmed strings, UTC timestamp). It never panics;
// malformed input comes back as FieldError values.
// now: reference time (injectable for tests)
// skew: allowable future skew (positive duration)
func ValidateEvent(raw RawEvent, now time.Time, skew time.Duration) (Event, []FieldError) {
	var errs []FieldError
	var ev Event

	typ := EventType(strings.TrimSpace(raw.Type))
	if typ == "" {
		errs = append(errs, FieldError{"type", "required"})
	} else if !typ.Valid() {
		errs = append(errs, FieldError{"type", fmt.Sprintf("must be one of %s", knownTypeList())})
	}
	ev.Type = typ

	slug := strings.TrimSpace(raw.Slug)
	if slug == "" {
		errs = append(errs, FieldError{"slug", "required"})
	} else if len(slug) > MaxSlugLen {
		errs = append(errs, FieldError{"slug", fmt.Sprintf("max length %d", MaxSlugLen)})
	}
	ev.Slug = slug

	sid := strings.TrimSpace(raw.SessionID)
	if sid == "" {
		errs = append(errs, FieldError{"sessionId", "required"})
	} else if len(sid) > MaxSessionIDLen {
		errs = append(errs, FieldError{"sessionId", fmt.Sprintf("max length %d", MaxSessionIDLen)})
	}
	ev.SessionID = sid

	ts, err := parseOccurredAt(raw.OccurredAt)
	if err != nil {
		errs = append(errs, FieldError{"occurredAt", err.Error()})
	} else if ts.After(now.Add(skew)) {
		errs = append(errs, FieldError{"occurredAt", "must not be in the future (beyond allowed skew)"})
	}
	ev.OccurredAt = ts

	// identity absent entirely is valid; present-but-empty is not
	if raw.Identity != nil {
		email := strings.TrimSpace(raw.Identity.Email)
		switch {
		case email == "":
			errs = append(errs, FieldError{"identity.email", "required when identity is present"})
		case len(email) > MaxEmailLen:
			errs = append(errs, FieldError{"identity.email", fmt.Sprintf("max length %d", MaxEmailLen)})
		default:
			ev.Identity = &Identity{Email: email}
		}
	}

	if len(errs) > 0 {
		return Event{}, errs
	}
	return ev, nil
}

// parseOccurredAt accepts an RFC 3339 string or a numeric epoch
// (seconds, or milliseconds above epochMillisCutoff) and normalizes to UTC.
func parseOccurredAt(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 {
		return time.Time{}, errors.New("required")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
		if err != nil {
			return time.Time{}, errors.New("must be an RFC 3339 timestamp or epoch value")
		}
		return t.UTC(), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		// fractional epoch seconds are accepted and truncated
		if f, err := n.Float64(); err == nil {
			i := int64(f)
			if i <= 0 {
				return time.Time{}, errors.New("epoch value must be positive")
			}
			if i >= epochMillisCutoff {
				return time.UnixMilli(i).UTC(), nil
			}
			return time.Unix(i, 0).UTC(), nil
		}
	}
	return time.Time{}, errors.New("must be an RFC 3339 timestamp or epoch value")
}

func knownTypeList() string {
	names := make([]string, 0, len(KnownEventTypes))
	for _, t := range KnownEventTypes {
		names = append(names, string(t))
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// ValidateBatch validates every payload independently so one bad event never
// discards its siblings. It returns the validated subset in input order and
// the failures keyed by input index. maxItems caps the batch size (top-level
// error, nothing validated).
func ValidateBatch(raws []RawEvent, maxItems int, now time.Time, skew time.Duration) (valid []Event, rejected map[int][]FieldError, topErr error) {
	if maxItems > 0 && len(raws) > maxItems {
		return nil, nil, fmt.Errorf("events: max %d items", maxItems)
	}
	rejected = make(map[int][]FieldError)
	valid = make([]Event, 0, len(raws))
	for i, raw := range raws {
		ev, errs := ValidateEvent(raw, now, skew)
		if len(errs) > 0 {
			rejected[i] = errs
			continue
		}
		valid = append(valid, ev)
	}
	return valid, rejected, nil
}

// FieldErrorMap flattens per-index failures into the problem+json errors
// shape, e.g. "events[3].slug" -> ["required"].
func FieldErrorMap(rejected map[int][]FieldError) map[string][]string {
	if len(rejected) == 0 {
		return nil
	}
	out := make(map[string][]string, len(rejected))
	for i, errs := range rejected {
		prefix := "events[" + strconv.Itoa(i) + "]."
		for _, fe := range errs {
			out[prefix+fe.Field] = append(out[prefix+fe.Field], fe.Msg)
		}
	}
	return out
}
