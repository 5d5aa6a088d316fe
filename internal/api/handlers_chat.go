package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quantgens/quantgens-server/internal/chat"
)

// chatRequestCeiling bounds one chat turn end to end, covering all model
// rounds and tool executions.
const chatRequestCeiling = 30 * time.Second

type chatRequest struct {
	Messages []chat.Message `json:"messages"`
}

// handleChat runs one chat turn and streams orchestrator events to the client
// as server-sent events. SSE headers are deferred until the first event so
// validation failures can still produce a plain 400.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), chatRequestCeiling)
	defer cancel()

	streaming := false
	emit := func(ev chat.StreamEvent) {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to marshal stream event")
			return
		}
		if !streaming {
			streaming = true
			h := c.Writer.Header()
			h.Set("Content-Type", "text/event-stream")
			h.Set("Cache-Control", "no-cache")
			h.Set("Connection", "keep-alive")
			h.Set("X-Accel-Buffering", "no")
			c.Writer.WriteHeader(http.StatusOK)
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
		c.Writer.Flush()

		if ev.Type == chat.EventDone && s.eventBus != nil {
			s.eventBus.PublishChatCompleted(ev.Reason)
		}
	}

	err := s.chat.Run(ctx, req.Messages, emit)
	if err == nil {
		return
	}

	if errors.Is(err, chat.ErrInvalidConversation) {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	s.logger.Error().Err(err).Msg("Chat turn failed")
	if !streaming {
		errorResponse(c, http.StatusBadGateway, "chat is currently unavailable")
	}
}
