package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"minder/internal/manager"
	"minder/internal/reminder"
	"minder/internal/status"

	"go.uber.org/zap"
)

func (s *Server) listReminders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := manager.Filter{
		MemberID:  q.Get("member_id"),
		ChannelID: q.Get("channel_id"),
	}
	for _, ex := range strings.Split(q.Get("exclude"), ",") {
		switch strings.TrimSpace(ex) {
		case "":
		case "complete":
			f.ExcludeComplete = true
		case "notified":
			f.ExcludeNotified = true
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown exclude value %q", ex))
			return
		}
	}

	list, err := s.manager.List(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	now := s.clk.Now()
	data := make([]map[string]any, 0, len(list))
	for _, rem := range list {
		data = append(data, rem.AsMap(now))
	}
	writeData(w, http.StatusOK, fmt.Sprintf("Found %d reminders", len(data)), len(data), data)
}

func (s *Server) createReminder(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form body")
		return
	}
	form := r.PostForm

	var missing []string
	for _, name := range []string{"when", "content", "member_id", "member_name"} {
		if strings.TrimSpace(form.Get(name)) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		writeError(w, http.StatusBadRequest, "Missing required fields: "+strings.Join(missing, ", "))
		return
	}
	if _, err := strconv.ParseUint(form.Get("member_id"), 10, 64); err != nil {
		writeError(w, http.StatusBadRequest, "member_id must be a numeric id")
		return
	}

	req := manager.AddRequest{
		When:     form.Get("when"),
		Content:  form.Get("content"),
		Owner:    reminder.Member{ID: form.Get("member_id"), Name: form.Get("member_name")},
		Timezone: form.Get("timezone"),
	}
	if id := form.Get("channel_id"); id != "" {
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "channel_id must be a numeric id")
			return
		}
		req.Channel = &reminder.Channel{ID: id, Name: form.Get("channel_name")}
	}

	rem, err := s.manager.Add(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.audit(r, "Reminder created via API", rem)
	writeData(w, http.StatusCreated, "Reminder created", 1, rem.AsMap(s.clk.Now()))
}

func (s *Server) getReminder(w http.ResponseWriter, r *http.Request) {
	rem, err := s.manager.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Found reminder", 1, rem.AsMap(s.clk.Now()))
}

func (s *Server) deleteReminder(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("id")
	rem, err := s.manager.Get(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.manager.Delete(r.Context(), key); err != nil {
		s.fail(w, r, err)
		return
	}

	s.audit(r, "Reminder deleted via API", rem)
	writeData(w, http.StatusOK, "Reminder deleted", 1, map[string]any{"key": key})
}

func (s *Server) updateReminder(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form body")
		return
	}
	fields := make(map[string]string, len(r.PostForm))
	for name := range r.PostForm {
		fields[name] = r.PostForm.Get(name)
	}

	rem, err := s.manager.Update(r.Context(), r.PathValue("id"), fields)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.audit(r, "Reminder updated via API", rem)
	writeData(w, http.StatusOK, "Reminder updated", 1, rem.AsMap(s.clk.Now()))
}

func (s *Server) cleanReminders(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form body")
		return
	}
	memberID := r.PostForm.Get("member_id")

	deleted, err := s.manager.Clean(r.Context(), memberID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if deleted == nil {
		deleted = []string{}
	}
	writeData(w, http.StatusOK, fmt.Sprintf("Removed %d reminders", len(deleted)), len(deleted), deleted)
}

func (s *Server) when(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ft, err := s.manager.Resolve(r.Context(), q.Get("when"), q.Get("timezone"), q.Get("member_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	left, _ := ft.SecondsRemaining(s.clk.Now())
	writeData(w, http.StatusOK, ft.String(), 1, map[string]any{
		"provided_when": ft.ProvidedWhen,
		"timezone":      ft.Timezone.Name(),
		"created_ts":    ft.CreatedTimestamp(),
		"resolved_ts":   ft.ResolvedTimestamp(),
		"resolved_time": ft.ResolvedTime.Format(timeLayout),
		"seconds_left":  left,
	})
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func (s *Server) audit(r *http.Request, msg string, rem *reminder.Reminder) {
	username := ""
	if claims := ClaimsFrom(r.Context()); claims != nil {
		username = claims.Subject
	}
	s.log.Info(msg, zap.String("username", username), zap.String("key", rem.Key), zap.String("member_id", rem.MemberID))

	if s.status != nil {
		action := status.Edit
		if r.Method == http.MethodDelete {
			action = status.Delete
		}
		s.status.Log(r.Context(), action, msg, map[string]string{
			"username": username,
			"key":      rem.Key,
		})
	}
}
