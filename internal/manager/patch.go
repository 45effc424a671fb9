package manager

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"minder/internal/reminder"
	"minder/internal/timezone"
)

// FieldError reports a rejected field of a partial update.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return reminder.ErrInvalid }

// patch is a type-checked set of field changes. Nil pointers are left untouched.
type patch struct {
	memberID     *string
	memberName   *string
	channelID    *string
	channelName  *string
	providedWhen *string
	content      *string
	triggerTS    *float64
	createdTS    *float64
	userNotified *bool
	fromDM       *bool
	timezoneName *string
	fields       []string
}

func parsePatch(fields map[string]string) (*patch, error) {
	if len(fields) == 0 {
		return nil, &FieldError{Field: "", Reason: "no fields to update"}
	}

	p := &patch{}
	for name, raw := range fields {
		if err := p.set(name, raw); err != nil {
			return nil, err
		}
		p.fields = append(p.fields, name)
	}
	sort.Strings(p.fields)
	return p, nil
}

func (p *patch) set(name, raw string) error {
	switch name {
	case "member_id":
		v, err := parseID(name, raw, false)
		p.memberID = v
		return err
	case "channel_id":
		v, err := parseID(name, raw, true)
		p.channelID = v
		return err
	case "member_name":
		p.memberName = &raw
	case "channel_name":
		p.channelName = &raw
	case "provided_when":
		p.providedWhen = &raw
	case "content":
		if strings.TrimSpace(raw) == "" {
			return &FieldError{Field: name, Reason: "must not be empty"}
		}
		p.content = &raw
	case "trigger_ts", "created_ts":
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			return &FieldError{Field: name, Reason: "must be a positive epoch timestamp"}
		}
		if name == "trigger_ts" {
			p.triggerTS = &v
		} else {
			p.createdTS = &v
		}
	case "user_notified", "from_dm":
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return &FieldError{Field: name, Reason: "must be a boolean"}
		}
		if name == "user_notified" {
			p.userNotified = &v
		} else {
			p.fromDM = &v
		}
	case "timezone_name":
		tz, err := timezone.Build(raw)
		if err != nil {
			return &FieldError{Field: name, Reason: err.Error()}
		}
		n := tz.Name()
		p.timezoneName = &n
	case "key", "is_complete":
		return &FieldError{Field: name, Reason: "is read-only"}
	default:
		return &FieldError{Field: name, Reason: "unknown field"}
	}
	return nil
}

func parseID(name, raw string, allowEmpty bool) (*string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" && allowEmpty {
		return &raw, nil
	}
	if _, err := strconv.ParseUint(raw, 10, 64); err != nil {
		return nil, &FieldError{Field: name, Reason: "must be a numeric id"}
	}
	return &raw, nil
}

func (p *patch) apply(r *reminder.Reminder) {
	if p.memberID != nil {
		r.MemberID = *p.memberID
	}
	if p.memberName != nil {
		r.MemberName = *p.memberName
	}
	if p.channelID != nil {
		r.ChannelID = *p.channelID
		r.FromDM = r.ChannelID == ""
		if r.FromDM {
			r.ChannelName = ""
		}
	}
	if p.channelName != nil {
		r.ChannelName = *p.channelName
	}
	if p.providedWhen != nil {
		r.ProvidedWhen = *p.providedWhen
	}
	if p.content != nil {
		r.Content = *p.content
	}
	if p.triggerTS != nil {
		r.TriggerTS = *p.triggerTS
	}
	if p.createdTS != nil {
		r.CreatedTS = *p.createdTS
	}
	if p.userNotified != nil {
		r.UserNotified = *p.userNotified
	}
	if p.fromDM != nil {
		r.FromDM = *p.fromDM
	}
	if p.timezoneName != nil {
		r.TimezoneName = *p.timezoneName
	}
}

func (p *patch) names() []string { return p.fields }
