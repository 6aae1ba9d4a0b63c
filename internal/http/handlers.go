package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"finanzas/internal/app"
	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/session"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	})
}

// handleReady is ready once the backend answers and the first snapshot for
// the signed-in user has arrived.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			checks["backend"] = "failed: " + err.Error()
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["backend"] = "ok"
		}
	}

	st := s.app.Status()
	if st.Session.Loaded {
		checks["records"] = "ok"
	} else {
		checks["records"] = "not loaded (" + st.Session.State.String() + ")"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()
	st := s.app.Status()

	w.WriteHeader(http.StatusOK)
	metric := func(name, help, kind string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("record_writes_accepted_total", "Create and delete intents accepted", "counter", atomic.LoadInt64(&s.appMetrics.writesAccepted))
	metric("records", "Records in the current snapshot", "gauge", st.Session.Records)
	metric("snapshot_version", "Version of the session state", "counter", st.Session.Version)
	metric("event_streams_open", "Open server-sent event streams", "gauge", atomic.LoadInt64(&s.appMetrics.openStreams))
	metric("rate_limit_hits_total", "Total rate limit hits", "counter", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "Currently tracked rate limit clients", "gauge", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "Total suspicious requests detected", "counter", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "Application uptime in seconds", "gauge", fmt.Sprintf("%.0f", time.Since(s.appMetrics.uptime).Seconds()))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newStatusView(s.app.Status()))
}

// handleSignIn retries sign-in. Failures show up as the status fault.
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	s.app.SignIn(r.Context())
	writeJSON(w, http.StatusAccepted, newStatusView(s.app.Status()))
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s.app.SignOut()
	writeJSON(w, http.StatusAccepted, newStatusView(s.app.Status()))
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newLedgerView(s.app.Ledger()))
}

// handleCalendar renders the displayed month, or ?month=YYYY-MM without
// changing the displayed month.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		ym, err := core.ParseYearMonth(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, newCalendarView(s.app.CalendarFor(ym)))
		return
	}
	writeJSON(w, http.StatusOK, newCalendarView(s.app.Calendar()))
}

type changeMonthRequest struct {
	Delta *int   `json:"delta,omitempty"`
	Month string `json:"month,omitempty"`
}

type monthResponse struct {
	Month string `json:"month"`
	Title string `json:"title"`
}

func (s *Server) handleChangeMonth(w http.ResponseWriter, r *http.Request) {
	var req changeMonthRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var ym core.YearMonth
	switch {
	case req.Month != "" && req.Delta != nil:
		writeError(w, http.StatusBadRequest, "send either delta or month, not both")
		return
	case req.Month != "":
		parsed, err := core.ParseYearMonth(req.Month)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.app.SetMonth(parsed)
		ym = parsed
	case req.Delta != nil:
		ym = s.app.ChangeMonth(*req.Delta)
	default:
		writeError(w, http.StatusBadRequest, "delta or month is required")
		return
	}
	writeJSON(w, http.StatusOK, monthResponse{Month: ym.String(), Title: monthTitle(ym)})
}

type switchViewRequest struct {
	View string `json:"view"`
}

func (s *Server) handleSwitchView(w http.ResponseWriter, r *http.Request) {
	var req switchViewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := s.app.SwitchView(req.View)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"view": string(v)})
}

type addRecordRequest struct {
	Form        string `json:"form"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
}

type acceptedResponse struct {
	Status string      `json:"status"`
	Record *recordView `json:"record,omitempty"`
}

// handleAddRecord accepts JSON or an HTML form. The record appears with the
// next snapshot.
func (s *Server) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	var req addRecordRequest
	if isForm(r) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		req = addRecordRequest{
			Form:        r.PostForm.Get("form"),
			Type:        r.PostForm.Get("type"),
			Description: r.PostForm.Get("description"),
			Amount:      r.PostForm.Get("amount"),
			Date:        r.PostForm.Get("date"),
		}
	} else if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	form := app.Form(strings.ToLower(strings.TrimSpace(req.Form)))
	switch form {
	case "":
		form = app.FormQuick
	case app.FormQuick, app.FormPlanner:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown form %q", req.Form))
		return
	}

	d, err := s.app.AddRecord(r.Context(), app.RecordForm{
		Form:        form,
		Type:        sanitizeInput(req.Type),
		Description: sanitizeInput(req.Description),
		Amount:      sanitizeInput(req.Amount),
		Date:        sanitizeInput(req.Date),
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, app.ErrInvalidForm) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}
	atomic.AddInt64(&s.appMetrics.writesAccepted, 1)
	rv := newRecordView(d.WithID(""))
	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted", Record: &rv})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if err := s.app.DeleteRecord(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrEmptyID) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Delete rejected",
			applog.FieldRecordID, id, applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	atomic.AddInt64(&s.appMetrics.writesAccepted, 1)
	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted"})
}
