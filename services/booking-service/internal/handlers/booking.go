package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/engine"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/ledger"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/shop"
)

type Decider interface {
	Handle(ctx context.Context, in engine.Intent) engine.Decision
	Shop() *shop.Shop
}

// Guard protects operator routes.
type Guard interface {
	Require(next http.Handler) http.Handler
}

type BookingHandler struct {
	decider Decider
	ledger  ledger.Ledger
	logger  *slog.Logger
	now     func() time.Time
}

func NewBookingHandler(d Decider, l ledger.Ledger, logger *slog.Logger, now func() time.Time) *BookingHandler {
	if now == nil {
		now = time.Now
	}
	return &BookingHandler{decider: d, ledger: l, logger: logger, now: now}
}

func (h *BookingHandler) Register(mux *http.ServeMux, operator Guard) {
	mux.HandleFunc("/api/v1/intents", h.Intent)
	mux.HandleFunc("/api/v1/slots", h.Slots)
	mux.HandleFunc("/api/v1/appointments/cancel", h.Cancel)
	mux.HandleFunc("/api/v1/appointments/reschedule", h.Reschedule)
	mux.Handle("/api/v1/appointments", operator.Require(http.HandlerFunc(h.List)))
	mux.Handle("/api/v1/appointments/complete", operator.Require(http.HandlerFunc(h.Complete)))
}

type intentRequest struct {
	CustomerRef   string `json:"customer_ref"`
	CustomerName  string `json:"customer_name"`
	Service       string `json:"service"`
	Kind          string `json:"kind"`
	At            string `json:"at"`
	RangeStart    string `json:"range_start"`
	RangeEnd      string `json:"range_end"`
	AppointmentID string `json:"appointment_id"`
	Recipient     string `json:"recipient"`
	Reason        string `json:"reason"`
}

type appointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	CustomerRef   string `json:"customer_ref"`
	CustomerName  string `json:"customer_name,omitempty"`
	Recipient     string `json:"recipient"`
	Service       string `json:"service"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	CancelReason  string `json:"cancel_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type intervalItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type decisionResponse struct {
	Kind         string           `json:"kind"`
	Outcome      string           `json:"outcome"`
	Reason       string           `json:"reason,omitempty"`
	Detail       string           `json:"detail,omitempty"`
	Service      string           `json:"service,omitempty"`
	Appointment  *appointmentItem `json:"appointment,omitempty"`
	Previous     *intervalItem    `json:"previous,omitempty"`
	Alternatives []intervalItem   `json:"alternatives"`
}

// Intent accepts any structured intent and returns the engine's decision.
func (h *BookingHandler) Intent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	in, err := h.toIntent(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.respond(w, h.decider.Handle(r.Context(), in))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.fixedKind(w, r, engine.KindCancel)
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	h.fixedKind(w, r, engine.KindReschedule)
}

func (h *BookingHandler) fixedKind(w http.ResponseWriter, r *http.Request, kind engine.Kind) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Kind = string(kind)
	in, err := h.toIntent(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.respond(w, h.decider.Handle(r.Context(), in))
}

// Slots lists free start times for a service on one local day.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	dateStr := strings.TrimSpace(q.Get("date"))
	if dateStr == "" {
		http.Error(w, "date is required", http.StatusBadRequest)
		return
	}
	loc := h.decider.Shop().Location
	day, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	end := day.AddDate(0, 0, 1)
	ref := strings.TrimSpace(q.Get("customer_ref"))
	if ref == "" {
		ref = "public"
	}
	h.respond(w, h.decider.Handle(r.Context(), engine.Intent{
		CustomerRef: ref,
		Service:     q.Get("service"),
		Kind:        engine.KindCheckAvailability,
		Range:       &model.Interval{Start: day, End: end},
	}))
}

// List returns upcoming confirmed appointments for the operator.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	from := h.now()
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		t, err := engine.ParseTime(raw, h.decider.Shop().Location)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		from = t
	}
	window := 7 * 24 * time.Hour
	if raw := strings.TrimSpace(q.Get("window")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > 90*24*time.Hour {
			http.Error(w, "invalid window", http.StatusBadRequest)
			return
		}
		window = d
	}

	appts, err := h.ledger.ListUpcoming(r.Context(), from, window)
	if err != nil {
		h.logger.Error("list appointments failed", "err", err)
		http.Error(w, "failed to list appointments", http.StatusServiceUnavailable)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toItem(a))
	}
	writeJSON(w, http.StatusOK, items)
}

type completeRequest struct {
	AppointmentID string `json:"appointment_id"`
}

// Complete marks a confirmed appointment as served.
func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}
	appt, err := h.ledger.Complete(r.Context(), req.AppointmentID)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	case errors.Is(err, ledger.ErrAlreadyTerminal):
		http.Error(w, "appointment is cancelled or completed", http.StatusConflict)
		return
	case errors.Is(err, ledger.ErrInvalid):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		h.logger.Error("complete appointment failed", "err", err, "appointment_id", req.AppointmentID)
		http.Error(w, "failed to complete appointment", http.StatusServiceUnavailable)
		return
	}
	h.logger.Info("appointment completed", "appointment_id", appt.ID)
	writeJSON(w, http.StatusOK, toItem(appt))
}

func (h *BookingHandler) toIntent(req intentRequest) (engine.Intent, error) {
	kind, ok := engine.ParseKind(req.Kind)
	if !ok {
		return engine.Intent{}, errors.New("unknown kind")
	}
	loc := h.decider.Shop().Location
	in := engine.Intent{
		CustomerRef:   req.CustomerRef,
		CustomerName:  req.CustomerName,
		Service:       req.Service,
		Kind:          kind,
		AppointmentID: req.AppointmentID,
		Recipient:     req.Recipient,
		Reason:        req.Reason,
	}
	if strings.TrimSpace(req.At) != "" {
		at, err := engine.ParseTime(req.At, loc)
		if err != nil {
			return engine.Intent{}, errors.New("invalid at")
		}
		in.At = &at
	}
	if req.RangeStart != "" || req.RangeEnd != "" {
		start, err := engine.ParseTime(req.RangeStart, loc)
		if err != nil {
			return engine.Intent{}, errors.New("invalid range_start")
		}
		end, err := engine.ParseTime(req.RangeEnd, loc)
		if err != nil {
			return engine.Intent{}, errors.New("invalid range_end")
		}
		in.Range = &model.Interval{Start: start, End: end}
	}
	return in, nil
}

func (h *BookingHandler) respond(w http.ResponseWriter, d engine.Decision) {
	resp := decisionResponse{
		Kind:         string(d.Kind),
		Outcome:      string(d.Outcome),
		Reason:       string(d.Reason),
		Service:      d.Service.Key,
		Alternatives: make([]intervalItem, 0, len(d.Alternatives)),
	}
	if d.Reason == engine.ReasonStoreUnavailable {
		h.logger.Error("decision failed", "kind", d.Kind, "detail", d.Detail)
	} else {
		resp.Detail = d.Detail
	}
	if d.Appointment != nil {
		item := toItem(*d.Appointment)
		resp.Appointment = &item
	}
	if d.Previous != nil {
		resp.Previous = &intervalItem{StartTime: formatTime(d.Previous.Start), EndTime: formatTime(d.Previous.End)}
	}
	for _, alt := range d.Alternatives {
		resp.Alternatives = append(resp.Alternatives, intervalItem{
			StartTime: formatTime(alt),
			EndTime:   formatTime(alt.Add(d.Service.Duration)),
		})
	}
	writeJSON(w, StatusFor(d), resp)
}

// StatusFor maps a decision to its HTTP status.
func StatusFor(d engine.Decision) int {
	switch d.Outcome {
	case engine.Committed:
		if d.Kind == engine.KindBook {
			return http.StatusCreated
		}
		return http.StatusOK
	case engine.Offered:
		return http.StatusOK
	}
	switch d.Reason {
	case engine.ReasonConflict, engine.ReasonAlreadyTerminal:
		return http.StatusConflict
	case engine.ReasonInvalidSlot, engine.ReasonInvalidIntent:
		return http.StatusUnprocessableEntity
	case engine.ReasonNotFound:
		return http.StatusNotFound
	case engine.ReasonLimitReached:
		return http.StatusTooManyRequests
	}
	return http.StatusServiceUnavailable
}

func toItem(a model.Appointment) appointmentItem {
	return appointmentItem{
		AppointmentID: a.ID,
		CustomerRef:   a.CustomerRef,
		CustomerName:  a.CustomerName,
		Recipient:     a.Recipient,
		Service:       a.Service,
		StartTime:     formatTime(a.StartTime),
		EndTime:       formatTime(a.EndTime),
		Status:        string(a.Status),
		CancelReason:  a.CancelReason,
		CreatedAt:     formatTime(a.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
