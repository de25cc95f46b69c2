package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/atlasbank/greeting-engine/internal/dispatch"
	"github.com/atlasbank/greeting-engine/internal/domain"
	"github.com/atlasbank/greeting-engine/internal/referral"
	"github.com/atlasbank/greeting-engine/internal/repository/postgres"
)

// RosterStore is the roster surface the handlers use.
type RosterStore interface {
	GetAll(ctx context.Context) ([]domain.Person, error)
	BindChatID(ctx context.Context, code, chatID string) (bool, error)
	Insert(ctx context.Context, p *domain.Person) (int64, error)
	FindByChatID(ctx context.Context, chatID string) (*domain.Person, error)
}

// HolidayStore lists holidays.
type HolidayStore interface {
	GetAll(ctx context.Context) ([]domain.Holiday, error)
}

// DispatchRunner triggers and observes dispatch runs.
type DispatchRunner interface {
	DispatchDate(ctx context.Context, date string) (string, error)
	Stats() dispatch.Stats
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	roster     RosterStore
	holidays   HolidayStore
	dispatcher DispatchRunner
	minter     *referral.Minter
}

// NewHandlers creates the admin handler set.
func NewHandlers(roster RosterStore, holidays HolidayStore, dispatcher DispatchRunner, minter *referral.Minter) *Handlers {
	return &Handlers{roster: roster, holidays: holidays, dispatcher: dispatcher, minter: minter}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetStats returns the dispatcher counters.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.dispatcher.Stats())
}

// TriggerDispatch runs a dispatch for an explicit date. The daily loop
// handles "today"; a manual trigger always names its date.
func (h *Handlers) TriggerDispatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Date string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Date == "" {
		respondError(w, http.StatusBadRequest, "date is required (DD.MM.YYYY or YYYY-MM-DD)")
		return
	}

	runID, err := h.dispatcher.DispatchDate(r.Context(), body.Date)
	if err != nil {
		log.Printf("[API] manual dispatch for %s failed: %v", body.Date, err)
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"run_id": runID, "date": body.Date})
}

// ListPeople returns the full roster.
func (h *Handlers) ListPeople(w http.ResponseWriter, r *http.Request) {
	people, err := h.roster.GetAll(r.Context())
	if err != nil {
		log.Printf("[API] list people: %v", err)
		respondError(w, http.StatusInternalServerError, "roster unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"people": people, "count": len(people)})
}

// ListHolidays returns all holidays.
func (h *Handlers) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.holidays.GetAll(r.Context())
	if err != nil {
		log.Printf("[API] list holidays: %v", err)
		respondError(w, http.StatusInternalServerError, "holidays unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"holidays": holidays, "count": len(holidays)})
}

// Activate binds a messaging chat id to the person holding the activation
// code. Binding is one-shot; an already-bound code reports a conflict.
func (h *Handlers) Activate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code   string `json:"code"`
		ChatID string `json:"chat_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" || body.ChatID == "" {
		respondError(w, http.StatusBadRequest, "code and chat_id are required")
		return
	}

	ok, err := h.roster.BindChatID(r.Context(), body.Code, body.ChatID)
	if err != nil {
		log.Printf("[API] activate: %v", err)
		respondError(w, http.StatusInternalServerError, "activation failed")
		return
	}
	if !ok {
		respondError(w, http.StatusConflict, "code unknown or already activated")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"activated": true})
}

// CreatePerson inserts a roster member, minting an activation code when the
// payload carries none.
func (h *Handlers) CreatePerson(w http.ResponseWriter, r *http.Request) {
	var p domain.Person
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid person payload")
		return
	}
	if p.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	if p.ReferralCode == "" {
		code, err := h.minter.Mint(r.Context(), referral.Seed{
			Name:      p.Name,
			BirthDate: p.BirthDate,
			StartDate: p.StartDate,
		})
		if err != nil {
			log.Printf("[API] mint code: %v", err)
			respondError(w, http.StatusInternalServerError, "could not mint activation code")
			return
		}
		p.ReferralCode = code
	}

	id, err := h.roster.Insert(r.Context(), &p)
	if err != nil {
		log.Printf("[API] insert person: %v", err)
		respondError(w, http.StatusInternalServerError, "insert failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"id":            id,
		"referral_code": p.ReferralCode,
	})
}

// GetPersonByChat resolves the person bound to a chat id.
func (h *Handlers) GetPersonByChat(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chat_id")
	if chatID == "" {
		respondError(w, http.StatusBadRequest, "chat_id is required")
		return
	}
	p, err := h.roster.FindByChatID(r.Context(), chatID)
	if errors.Is(err, postgres.ErrNotFound) {
		respondError(w, http.StatusNotFound, "no person bound to this chat")
		return
	}
	if err != nil {
		log.Printf("[API] find by chat: %v", err)
		respondError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
