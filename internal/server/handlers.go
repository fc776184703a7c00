package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	otterrors "otto/internal/errors"
	"otto/internal/orchestrator"
)

// apiResponse is the uniform envelope for every JSON endpoint.
type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, apiResponse{Success: status < 400, Data: data})
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if otterrors.IsValidation(err) {
		status = http.StatusBadRequest
	}
	c.JSON(status, apiResponse{Success: false, Error: err.Error()})
}

func (s *Server) handleOrchestrate(c *gin.Context) {
	var req orchestrator.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiResponse{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	result, err := s.deps.Orchestrator.Orchestrate(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

func (s *Server) handleChat(c *gin.Context) {
	var req orchestrator.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiResponse{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	result, err := s.deps.Orchestrator.Chat(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// handleStatus serves a live snapshot while the task runs and the terminal
// result afterwards; unknown ids get 404.
func (s *Server) handleStatus(c *gin.Context) {
	taskID := c.Param("task_id")

	if status, ok := s.deps.Orchestrator.GetStatus(taskID); ok {
		respond(c, http.StatusOK, gin.H{"state": "active", "status": status})
		return
	}
	for _, result := range s.deps.Orchestrator.History() {
		if result.TaskID == taskID {
			respond(c, http.StatusOK, gin.H{"state": "terminal", "result": result})
			return
		}
	}
	c.JSON(http.StatusNotFound, apiResponse{Success: false, Error: "unknown task " + taskID})
}

func (s *Server) handleOrchestrationMetrics(c *gin.Context) {
	respond(c, http.StatusOK, s.deps.Orchestrator.GetMetrics())
}

func (s *Server) handleActive(c *gin.Context) {
	respond(c, http.StatusOK, s.deps.Orchestrator.ListActive())
}

func (s *Server) handleCancel(c *gin.Context) {
	taskID := c.Param("task_id")
	if err := s.deps.Orchestrator.Cancel(taskID); err != nil {
		c.JSON(http.StatusNotFound, apiResponse{Success: false, Error: err.Error()})
		return
	}
	respond(c, http.StatusAccepted, gin.H{"task_id": taskID, "cancelling": true})
}

func (s *Server) handleRecommendations(c *gin.Context) {
	respond(c, http.StatusOK, s.deps.Orchestrator.GetRecommendations())
}

func (s *Server) handleTools(c *gin.Context) {
	respond(c, http.StatusOK, s.deps.Registry.List())
}

func (s *Server) handleHealth(c *gin.Context) {
	services := gin.H{
		"memory": s.deps.Memory != nil,
		"llm":    s.deps.LLM != nil,
		"tools":  len(s.deps.Registry.List()),
	}
	if s.deps.LLM != nil {
		services["llm_model"] = s.deps.LLM.Model()
	}
	if s.deps.Memory != nil {
		services["memory_items"] = s.deps.Memory.Stats()
	}
	respond(c, http.StatusOK, gin.H{
		"status":    "ok",
		"version":   Version,
		"uptime":    time.Since(s.startTime).String(),
		"timestamp": time.Now(),
		"services":  services,
	})
}
