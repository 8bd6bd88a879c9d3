package intake

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"

	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/engine"
	"github.com/md-rashed-zaman/barberbook/services/booking-service/internal/shop"
)

// Decider is the part of the engine the channel adapters need.
type Decider interface {
	Handle(ctx context.Context, in engine.Intent) engine.Decision
	Shop() *shop.Shop
}

type Options struct {
	// TwilioAuthToken enables X-Twilio-Signature validation on /sms.
	TwilioAuthToken string
	// PublicURL is the externally visible base URL Twilio signs against.
	PublicURL string
	// TelegramSecret must match X-Telegram-Bot-Api-Secret-Token when set.
	TelegramSecret string
	Now            func() time.Time
}

type Handler struct {
	decider   Decider
	extractor Extractor
	logger    *slog.Logger
	validator *client.RequestValidator
	publicURL string
	tgSecret  string
	now       func() time.Time
}

func NewHandler(d Decider, ex Extractor, logger *slog.Logger, opts Options) *Handler {
	h := &Handler{
		decider:   d,
		extractor: ex,
		logger:    logger,
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
		tgSecret:  opts.TelegramSecret,
		now:       opts.Now,
	}
	if opts.TwilioAuthToken != "" {
		v := client.NewRequestValidator(opts.TwilioAuthToken)
		h.validator = &v
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/sms", h.SMS)
	mux.HandleFunc("/chat", h.Chat)
	mux.HandleFunc("/telegram", h.Telegram)
}

// Converse runs one message through extraction, the engine and the reply formatter.
func (h *Handler) Converse(ctx context.Context, msg Message) (string, engine.Decision) {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = h.now()
	}
	s := h.decider.Shop()
	in, err := h.extractor.Extract(ctx, msg)
	if err != nil {
		h.logger.Info("intake not understood", "channel", msg.Channel, "customer_ref", msg.CustomerRef, "error", err)
		return notUnderstoodReply, engine.Decision{Outcome: engine.Rejected, Reason: engine.ReasonInvalidIntent}
	}
	d := h.decider.Handle(ctx, in)
	h.logger.Info("intake handled",
		"channel", msg.Channel,
		"customer_ref", msg.CustomerRef,
		"kind", d.Kind,
		"outcome", d.Outcome,
		"reason", d.Reason,
	)
	return Reply(d, s), d
}

// SMS is the Twilio messaging webhook. It answers with TwiML.
func (h *Handler) SMS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}
	if h.validator != nil {
		params := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		if !h.validator.Validate(h.publicURL+r.URL.RequestURI(), params, r.Header.Get("X-Twilio-Signature")) {
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
	}
	from := strings.TrimSpace(r.PostForm.Get("From"))
	body := strings.TrimSpace(r.PostForm.Get("Body"))
	if from == "" {
		http.Error(w, "missing From", http.StatusBadRequest)
		return
	}

	reply, _ := h.Converse(r.Context(), Message{
		CustomerRef:  from,
		CustomerName: r.PostForm.Get("ProfileName"),
		Channel:      "sms",
		Text:         body,
	})
	out, err := twiml.Messages([]twiml.Element{&twiml.MessagingMessage{Body: reply}})
	if err != nil {
		h.logger.Error("render twiml failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(out))
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Reply         string   `json:"reply"`
	Outcome       string   `json:"outcome"`
	Reason        string   `json:"reason,omitempty"`
	AppointmentID string   `json:"appointment_id,omitempty"`
	Alternatives  []string `json:"alternatives,omitempty"`
}

// Chat serves the web widget.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" || strings.TrimSpace(req.Message) == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	reply, d := h.Converse(r.Context(), Message{
		CustomerRef:  "web:" + req.SessionID,
		CustomerName: req.Name,
		Channel:      "chat",
		Text:         req.Message,
	})
	resp := chatResponse{Reply: reply, Outcome: string(d.Outcome), Reason: string(d.Reason)}
	if d.Appointment != nil {
		resp.AppointmentID = d.Appointment.ID
	}
	for _, alt := range d.Alternatives {
		resp.Alternatives = append(resp.Alternatives, alt.UTC().Format(time.RFC3339))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type telegramUpdate struct {
	Message *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From *struct {
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		} `json:"from"`
	} `json:"message"`
}

type telegramReply struct {
	Method string `json:"method"`
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

// Telegram is the bot webhook. The reply is returned inline as a sendMessage call.
func (h *Handler) Telegram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.tgSecret != "" {
		got := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.tgSecret)) != 1 {
			http.Error(w, "invalid secret", http.StatusForbidden)
			return
		}
	}
	var upd telegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	// Edits, joins and other update types are acknowledged and ignored.
	if upd.Message == nil || strings.TrimSpace(upd.Message.Text) == "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	msg := Message{
		CustomerRef: "telegram:" + strconv.FormatInt(upd.Message.Chat.ID, 10),
		Channel:     "telegram",
		Text:        upd.Message.Text,
	}
	if upd.Message.From != nil {
		msg.CustomerName = strings.TrimSpace(upd.Message.From.FirstName + " " + upd.Message.From.LastName)
	}
	if strings.HasPrefix(strings.TrimSpace(msg.Text), "/start") {
		writeTelegram(w, upd.Message.Chat.ID, "Hi! I can book, move or cancel your appointment at "+h.decider.Shop().Name+". Just tell me what you need.")
		return
	}
	reply, _ := h.Converse(r.Context(), msg)
	writeTelegram(w, upd.Message.Chat.ID, reply)
}

func writeTelegram(w http.ResponseWriter, chatID int64, text string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(telegramReply{Method: "sendMessage", ChatID: chatID, Text: text})
}
