package server

import (
	"net/http"
	"time"

	"aria/internal/assistant/app"
	"aria/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type turnRequest struct {
	UserID    string `json:"userId" binding:"required"`
	SessionID string `json:"sessionId"`
	Utterance string `json:"utterance" binding:"required"`
}

type registerRequest struct {
	UserID       string    `json:"userId" binding:"required"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"accessToken" binding:"required"`
	RefreshToken string    `json:"refreshToken"`
	TokenExpiry  time.Time `json:"tokenExpiry"`
	Timezone     string    `json:"timezone"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) handleTurn(c *gin.Context) {
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	output := s.orchestrator.HandleTurn(c.Request.Context(), app.TurnInput{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Utterance: req.Utterance,
	})
	c.JSON(http.StatusOK, output)
}

func (s *Server) handleGetContext(c *gin.Context) {
	conv, ok, err := s.orchestrator.Conversation(c.Request.Context(), c.Param("userId"), c.Param("sessionId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) handleClearContext(c *gin.Context) {
	if err := s.orchestrator.ClearSession(c.Request.Context(), c.Param("userId"), c.Param("sessionId")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleRegisterPrincipal(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TokenExpiry.IsZero() {
		req.TokenExpiry = time.Now().Add(time.Hour)
	}

	err := s.tokens.Register(c.Request.Context(), auth.Principal{
		UserID:       req.UserID,
		Email:        req.Email,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		TokenExpiry:  req.TokenExpiry,
		Timezone:     req.Timezone,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"userId": req.UserID})
}

// handleWebSocket serves a persistent turn channel: each JSON frame in is a
// turn request, each frame out the corresponding TurnOutput.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var req turnRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket closed: %v", err)
			}
			return
		}
		if req.UserID == "" || req.Utterance == "" {
			if err := conn.WriteJSON(gin.H{"error": "userId and utterance are required"}); err != nil {
				return
			}
			continue
		}

		output := s.orchestrator.HandleTurn(c.Request.Context(), app.TurnInput{
			UserID:    req.UserID,
			SessionID: req.SessionID,
			Utterance: req.Utterance,
		})
		if err := conn.WriteJSON(output); err != nil {
			return
		}
	}
}
