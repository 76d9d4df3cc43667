package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/flemzord/rolechat/internal/chat"
	"github.com/flemzord/rolechat/internal/security"
	"github.com/flemzord/rolechat/pkg/message"
)

// WebSocket frame types.
const (
	FrameSend       = "send"
	FrameEdit       = "edit"
	FrameRegenerate = "regenerate"
	FrameFragment   = "fragment"
	FrameDone       = "done"
	FrameError      = "error"
)

const wsReadLimit = 64 << 10

// InboundFrame is a client request on /ws/chats/{id}.
type InboundFrame struct {
	ID        string `json:"id,omitempty"`
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// OutboundFrame is a server event. ID echoes the request it answers.
type OutboundFrame struct {
	ID      string           `json:"id,omitempty"`
	Type    string           `json:"type"`
	Text    string           `json:"text,omitempty"`
	Message *message.Message `json:"message,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// handleWebSocket runs one conversation over a WebSocket. Requests are
// processed one at a time in arrival order.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	c, ok := g.conversation(w, r)
	if !ok {
		return
	}

	// The hijacked connection keeps the server deadlines otherwise.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()
	conn.SetReadLimit(wsReadLimit)

	ctx := r.Context()
	logger := g.logger.With("character", c.ID(), "remote", r.RemoteAddr)
	logger.Debug("websocket connected")

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if !errors.Is(err, context.Canceled) {
					logger.Debug("websocket read ended", "error", err)
				}
			}
			return
		}
		if typ != websocket.MessageText {
			g.sendFrame(ctx, conn, OutboundFrame{Type: FrameError, Error: "expected a text frame"})
			continue
		}

		var in InboundFrame
		if err := json.Unmarshal(data, &in); err != nil {
			g.sendFrame(ctx, conn, OutboundFrame{Type: FrameError, Error: "invalid JSON frame"})
			continue
		}
		if err := g.limiter.Allow(clientKey(r), security.KindTurn); err != nil {
			if g.metrics != nil {
				g.metrics.RateLimited(security.KindTurn)
			}
			g.sendFrame(ctx, conn, OutboundFrame{ID: in.ID, Type: FrameError, Error: err.Error()})
			continue
		}
		g.runFrame(ctx, conn, c, in)
	}
}

func (g *Gateway) runFrame(ctx context.Context, conn *websocket.Conn, c *chat.Conversation, in InboundFrame) {
	onFragment := func(fragment string) {
		g.sendFrame(ctx, conn, OutboundFrame{ID: in.ID, Type: FrameFragment, Text: fragment})
	}

	var (
		reply message.Message
		err   error
	)
	switch in.Type {
	case FrameSend, FrameEdit:
		if err = security.ValidateMessage(in.Text, 0); err != nil {
			break
		}
		if in.Type == FrameSend {
			reply, err = c.Send(ctx, in.Text, onFragment)
		} else {
			reply, err = c.Edit(ctx, in.MessageID, in.Text, onFragment)
		}
	case FrameRegenerate:
		reply, err = c.Regenerate(ctx, onFragment)
	default:
		err = errors.New("unknown frame type " + in.Type)
	}

	if err != nil {
		out := OutboundFrame{ID: in.ID, Type: FrameError, Error: err.Error()}
		if reply.Text != "" {
			out.Message = &reply
		}
		g.sendFrame(ctx, conn, out)
		return
	}
	g.sendFrame(ctx, conn, OutboundFrame{ID: in.ID, Type: FrameDone, Message: &reply})
}

func (g *Gateway) sendFrame(ctx context.Context, conn *websocket.Conn, frame OutboundFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		g.logger.Error("marshaling websocket frame", "error", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		g.logger.Debug("websocket write failed", "error", err)
	}
}
