package gateway

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/rolechat/internal/chat"
	"github.com/flemzord/rolechat/internal/security"
	"github.com/flemzord/rolechat/pkg/message"
)

// Stream event names.
const (
	eventFragment = "fragment"
	eventDone     = "done"
	eventError    = "error"
)

// ChatResponse is the body of GET /api/chats/{id}.
type ChatResponse struct {
	Character characterJSON     `json:"character"`
	Settings  chat.Settings     `json:"settings"`
	State     string            `json:"state"`
	Messages  []message.Message `json:"messages"`
}

// FragmentEvent carries one reply fragment.
type FragmentEvent struct {
	Text string `json:"text"`
}

// TurnError reports a failed turn. Message holds the inline error marker
// shown in place of the reply.
type TurnError struct {
	Error   string          `json:"error"`
	Message message.Message `json:"message"`
}

// TextRequest carries user text for send and edit.
type TextRequest struct {
	Text string `json:"text"`
}

// SettingsRequest updates conversation settings. Nil fields are left
// unchanged.
type SettingsRequest struct {
	Model        *string `json:"model"`
	Persona      *string `json:"persona"`
	HistoryLimit *int    `json:"history_limit"`
}

// SuggestionsResponse is the body of GET /api/chats/{id}/suggestions.
type SuggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

// SummaryResponse is the body of GET /api/chats/{id}/summary.
type SummaryResponse struct {
	Summary string `json:"summary"`
}

// conversation opens the conversation named by the {id} route parameter.
func (g *Gateway) conversation(w http.ResponseWriter, r *http.Request) (*chat.Conversation, bool) {
	c, err := g.svc.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		g.writeErr(w, r, err)
		return nil, false
	}
	return c, true
}

func (g *Gateway) handleGetChat(w http.ResponseWriter, r *http.Request) {
	c, ok := g.conversation(w, r)
	if !ok {
		return
	}
	msgs, err := c.Messages(r.Context())
	if err != nil {
		g.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{
		Character: toCharacterJSON(c.Character()),
		Settings:  c.Settings(),
		State:     c.State().String(),
		Messages:  msgs,
	})
}

func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request) {
	c, ok := g.conversation(w, r)
	if !ok {
		return
	}
	msgs, err := c.Messages(r.Context())
	if err != nil {
		g.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (g *Gateway) handleClear(w http.ResponseWriter, r *http.Request) {
	c, ok := g.conversation(w, r)
	if !ok {
		return
	}
	if err := c.Clear(r.Context()); err != nil {
		g.writeErr(w, r, err)
		return
	}
	g.audit.Log(security.AuditEvent{
		Type:      security.EventHistoryRewrite,
		Remote:    r.RemoteAddr,
		Character: c.ID(),
		Detail:    "clear",
	})
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleSend(w http.ResponseWriter, r *http.Request) {
	c, text, ok := g.textRequest(w, r)
	if !ok {
		return
	}
	g.stream(w, r, func(ctx context.Context, onFragment func(string)) (message.Message, error) {
		return c.Send(ctx, text, onFragment)
	})
}

func (g *Gateway) handleEdit(w http.ResponseWriter, r *http.Request) {
	c, text, ok := g.textRequest(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "messageID")
	g.audit.Log(security.AuditEvent{
		Type:      security.EventHistoryRewrite,
		Remote:    r.RemoteAddr,
		Character: c.ID(),
		Detail:    "edit",
		Metadata:  map[string]string{"message_id": id},
	})
	g.stream(w, r, func(ctx context.Context, onFragment func(string)) (message.Message, error) {
		return c.Edit(ctx, id, text, onFragment)
	})
}

func (g *Gateway) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	c, ok := g.conversation(w, r)
	if !ok {
		return
	}
	g.stream(w, r, c.Regenerate)
}

func (g *Gateway) textRequest(w http.ResponseWriter, r *http.Request) (*chat.Conversation, string, bool) {
	var req TextRequest
	if err := decode(r, &req); err != nil {
		g.writeErr(w, r, err)
		return nil, "", false
	}
	if err := security.ValidateMessage(req.Text, 0); err != nil {
		g.writeErr(w, r, err)
		return nil, "", false
	}
	c, ok := g.conversation(w, r)
	return c, req.Text, ok
}

// stream runs a turn and relays it as Server-Sent Events: one "fragment"
// event per reply fragment, then "done" with the persisted reply or
// "error" with the inline marker. A turn that fails before its first
// fragment is answered with a JSON TurnError instead, or a plain error when
// no marker was stored.
func (g *Gateway) stream(w http.ResponseWriter, r *http.Request, run func(context.Context, func(string)) (message.Message, error)) {
	sw := newSSEWriter(w)
	reply, err := run(r.Context(), func(fragment string) {
		_ = sw.event(eventFragment, FragmentEvent{Text: fragment})
	})
	if err != nil {
		if !sw.started {
			if reply.ID == "" {
				g.writeErr(w, r, err)
				return
			}
			status := errorStatus(err)
			if status >= http.StatusInternalServerError {
				g.logger.Warn("turn failed", "path", r.URL.Path, "error", err)
			}
			writeJSON(w, status, TurnError{Error: err.Error(), Message: reply})
			return
		}
		_ = sw.event(eventError, TurnError{Error: err.Error(), Message: reply})
		return
	}
	_ = sw.event(eventDone, reply)
}

func (g *Gateway) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := decode(r, &req); err != nil {
		g.writeErr(w, r, err)
		return
	}
	c, ok := g.conversation(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if req.Model != nil {
		if err := c.SetModel(ctx, *req.Model); err != nil {
			g.writeErr(w, r, err)
			return
		}
	}
	if req.Persona != nil {
		if err := c.SetPersona(ctx, *req.Persona); err != nil {
			g.writeErr(w, r, err)
			return
		}
	}
	if req.HistoryLimit != nil {
		if err := c.SetHistoryLimit(ctx, *req.HistoryLimit); err != nil {
			g.writeErr(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, c.Settings())
}

func (g *Gateway) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	c, ok := g.conversation(w, r)
	if !ok {
		return
	}
	suggestions, err := c.Suggest(r.Context())
	if err != nil {
		g.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuggestionsResponse{Suggestions: suggestions})
}

func (g *Gateway) handleSummary(w http.ResponseWriter, r *http.Request) {
	c, ok := g.conversation(w, r)
	if !ok {
		return
	}
	summary, err := c.Summarize(r.Context())
	if err != nil {
		g.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryResponse{Summary: summary})
}

func (g *Gateway) handleRegenerateMemory(w http.ResponseWriter, r *http.Request) {
	c, ok := g.conversation(w, r)
	if !ok {
		return
	}
	mem, err := c.RegenerateMemory(r.Context())
	if err != nil {
		g.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mem)
}

func (g *Gateway) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	c, ok := g.conversation(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "messageID")
	if err := c.DeleteMemory(r.Context(), id); err != nil {
		g.writeErr(w, r, err)
		return
	}
	g.audit.Log(security.AuditEvent{
		Type:      security.EventMemoryDelete,
		Remote:    r.RemoteAddr,
		Character: c.ID(),
		Metadata:  map[string]string{"message_id": id},
	})
	w.WriteHeader(http.StatusNoContent)
}
