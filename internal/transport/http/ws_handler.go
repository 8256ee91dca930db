package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"amc-progress-service/internal/app"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// WSHandler plays live buzzer sessions over websockets.
type WSHandler struct {
	service  *app.LiveService
	upgrader websocket.Upgrader
	rate     rate.Limit
	burst    int
}

// NewWSHandler limits each connection to perSecond inbound messages with the
// given burst.
func NewWSHandler(service *app.LiveService, perSecond float64, burst int) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rate:  rate.Limit(perSecond),
		burst: burst,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Choice string `json:"choice"`
}

type buzzResult struct {
	Granted    bool   `json:"granted"`
	LockHolder string `json:"lockHolder,omitempty"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
}

// Serve upgrades the request and wires the connection into the live session
// use cases.
func (h *WSHandler) Serve(c *gin.Context) {
	sessionID := c.Query("sessionId")
	displayName := c.Query("name")
	user := userID(c)
	if user == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "live sessions require a signed-in user"})
		return
	}
	if sessionID == "" || displayName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing sessionId or name"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	joined, err := h.service.Join(ctx, sessionID, user, displayName)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}

	updates, cancel, err := h.service.Subscribe(ctx, sessionID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer cancel()
	// The request context is done once the client drops; leaving must still
	// release the buzzer.
	defer h.service.Leave(context.WithoutCancel(ctx), sessionID, user)

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "snapshot", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "joined", Payload: joined}

	limiter := rate.NewLimiter(h.rate, h.burst)
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if !limiter.Allow() {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "rate limit exceeded"}}
			continue
		}
		send <- h.dispatch(c, sessionID, user, inbound)
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(c *gin.Context, sessionID, user string, inbound inboundMessage) outboundMessage[any] {
	ctx := c.Request.Context()
	switch inbound.Type {
	case "buzz":
		snap, err := h.service.Buzz(ctx, sessionID, user)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "buzzResult", Payload: buzzResult{Granted: snap.LockHolder == user, LockHolder: snap.LockHolder}}
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
		}
		res, _, err := h.service.Answer(ctx, sessionID, user, payload.Choice)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "answerResult", Payload: res}
	case "start":
		return snapshotReply(h.service.Start(ctx, sessionID, user))
	case "next":
		return snapshotReply(h.service.Next(ctx, sessionID, user))
	case "reset":
		return snapshotReply(h.service.ResetBuzzer(ctx, sessionID, user))
	case "end":
		standings, err := h.service.End(ctx, sessionID, user)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "ended", Payload: standings}
	}
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
}

func snapshotReply(snap any, err error) outboundMessage[any] {
	if err != nil {
		return errorMessage(err)
	}
	return outboundMessage[any]{Type: "snapshot", Payload: snap}
}
