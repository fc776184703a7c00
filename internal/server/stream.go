package server

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	streamPingPeriod = 30 * time.Second
	streamWriteWait  = 10 * time.Second
)

// handleEventStream upgrades to a websocket and forwards the task's event
// stream until the bus closes the channel at the terminal event.
func (s *Server) handleEventStream(c *gin.Context) {
	taskID := c.Param("task_id")

	conn, err := s.wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("Websocket upgrade failed for task %s: %v", taskID, err)
		return
	}
	defer conn.Close()

	ch, cancel := s.deps.Bus.Subscribe(taskID)
	defer cancel()

	if s.deps.Obs != nil {
		s.deps.Obs.Metrics.IncrementStreamConnections(c.Request.Context())
		defer s.deps.Obs.Metrics.DecrementStreamConnections(c.Request.Context())
	}
	s.logger.Debug("Event stream opened for task %s", taskID)

	// The reader drains control frames and unblocks the writer when the
	// client goes away.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				// Task reached a terminal state and the bus closed the stream.
				s.logger.Debug("Event stream closed for task %s", taskID)
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				s.logger.Error("Failed to encode %s event for task %s: %v", event.EventType(), taskID, err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Debug("Event stream write failed for task %s: %v", taskID, err)
				return
			}
			if s.deps.Obs != nil {
				s.deps.Obs.Metrics.RecordStreamMessage(c.Request.Context(), string(event.EventType()), int64(len(payload)))
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}
