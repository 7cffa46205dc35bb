package progress

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/rahul/contentpilot/internal/store"
)

// Handler serves the progress contract from a store.ProgressStore.
type Handler struct {
	Store *store.ProgressStore
	// Tokens maps bearer tokens to user ids.
	Tokens map[string]string
	mux    *http.ServeMux
}

func NewHandler(st *store.ProgressStore, tokens map[string]string) *Handler {
	h := &Handler{Store: st, Tokens: tokens, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /api/onboarding/step", h.authed(h.getStep))
	h.mux.HandleFunc("POST /api/onboarding/step/{n}/complete", h.authed(h.completeStep))
	h.mux.HandleFunc("GET /api/onboarding/init", h.authed(h.getInit))
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) authed(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		userID, known := h.Tokens[strings.TrimSpace(token)]
		if !ok || !known {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid or missing token"})
			return
		}
		next(w, r, userID)
	}
}

func (h *Handler) getStep(w http.ResponseWriter, r *http.Request, userID string) {
	step, err := h.Store.CurrentStep(userID)
	if errors.Is(err, store.ErrNoProgress) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "onboarding not started"})
		return
	}
	if err != nil {
		h.internalError(w, "current step", err)
		return
	}
	writeJSON(w, http.StatusOK, stepResponse{Step: step})
}

func (h *Handler) completeStep(w http.ResponseWriter, r *http.Request, userID string) {
	step, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || step < 1 || step > h.Store.TotalSteps {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid step number"})
		return
	}

	var req completeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body: " + err.Error()})
		return
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}
	data, err := json.Marshal(req.Data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid data"})
		return
	}

	if err := h.Store.CompleteStep(userID, step, string(data)); err != nil {
		h.internalError(w, "complete step", err)
		return
	}
	log.Printf("[progress] user %s completed step %d", userID, step)
	writeJSON(w, http.StatusOK, completeResponse{Success: true})
}

func (h *Handler) getInit(w http.ResponseWriter, r *http.Request, userID string) {
	prog, err := h.Store.Start(userID)
	if err != nil {
		h.internalError(w, "init", err)
		return
	}

	resp := InitResponse{
		Onboarding: Onboarding{CurrentStep: prog.CurrentStep},
		Session: Session{
			ID:        prog.SessionID,
			UserID:    prog.UserID,
			StartedAt: prog.StartedAt,
		},
	}
	for _, rec := range prog.Steps {
		var data map[string]any
		if err := json.Unmarshal([]byte(rec.Data), &data); err != nil {
			log.Printf("[progress] skipping unreadable data for user %s step %d: %v", userID, rec.StepNumber, err)
			continue
		}
		resp.Onboarding.Steps = append(resp.Onboarding.Steps, StepData{StepNumber: rec.StepNumber, Data: data})
	}
	if h.Store.TotalSteps > 0 {
		resp.Onboarding.CompletionPercentage = float64(len(resp.Onboarding.Steps)) * 100 / float64(h.Store.TotalSteps)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	log.Printf("[progress] %s failed: %v", op, err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[progress] encoding response failed: %v", err)
	}
}
