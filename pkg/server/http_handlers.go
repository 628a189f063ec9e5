package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/hackmatch/hackmatch/pkg/database"
)

type postMessageRequest struct {
	Content string `json:"content" binding:"required"`
	Kind    string `json:"kind"`
}

type markReadRequest struct {
	MessageIDs []string `json:"messageIds" binding:"required"`
}

// pagingParams reads page/limit from the query string, clamped to the
// configured bounds.
func (s *Server) pagingParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(s.config.DefaultPageSize)))
	if limit < 1 {
		limit = s.config.DefaultPageSize
	}
	if limit > s.config.MaxPageSize {
		limit = s.config.MaxPageSize
	}
	return page, limit
}

func (s *Server) recordREST(route string, status int) {
	if s.metrics != nil {
		s.metrics.RecordRESTRequest(route, strconv.Itoa(status))
	}
}

func (s *Server) respondMessages(c *gin.Context, route string, msgs []*database.Message, err error) {
	if err != nil {
		log.Error().Err(err).Str("route", route).Msg("history query failed")
		s.recordREST(route, http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}
	if msgs == nil {
		// A channel or pair with no history is an empty page, not an error
		msgs = []*database.Message{}
	}
	s.recordREST(route, http.StatusOK)
	c.JSON(http.StatusOK, msgs)
}

// handleTeamHistory returns one page of a channel's history, oldest-first
// within a newest-first window.
func (s *Server) handleTeamHistory(c *gin.Context) {
	page, limit := s.pagingParams(c)
	msgs, err := s.db.PageTeamHistory(c.Param("channel"), page, limit)
	s.respondMessages(c, "team_history", msgs, err)
}

// handleDirectHistory returns one page of the conversation between the
// caller and the named peer.
func (s *Server) handleDirectHistory(c *gin.Context) {
	page, limit := s.pagingParams(c)
	msgs, err := s.db.PageDirectHistory(identityFrom(c), c.Param("userID"), page, limit)
	s.respondMessages(c, "direct_history", msgs, err)
}

func (s *Server) respondCreated(c *gin.Context, route string, msg *database.Message, err error) {
	switch {
	case err == nil:
		s.recordREST(route, http.StatusCreated)
		c.JSON(http.StatusCreated, msg)
	case errors.Is(err, database.ErrValidation):
		s.recordREST(route, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("route", route).Msg("message post failed")
		s.recordREST(route, http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
	}
}

// handlePostTeamMessage posts to a channel through the router, so REST
// callers trigger the same live fan-out as websocket clients.
func (s *Server) handlePostTeamMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.recordREST("post_team", http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	msg, err := s.router.SendTeamMessage(identityFrom(c), c.Param("channel"), req.Content, req.Kind)
	s.respondCreated(c, "post_team", msg, err)
}

// handlePostDirectMessage posts a direct message through the router.
func (s *Server) handlePostDirectMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.recordREST("post_direct", http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	msg, err := s.router.SendDirectMessage(identityFrom(c), c.Param("userID"), req.Content, req.Kind)
	s.respondCreated(c, "post_direct", msg, err)
}

// handleMarkRead sets the read flag on the listed messages addressed to the
// caller. Ids that don't match are skipped without error; this is a bulk
// best-effort update.
func (s *Server) handleMarkRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.recordREST("mark_read", http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": "messageIds is required"})
		return
	}

	ids := lo.FilterMap(req.MessageIDs, func(raw string, _ int) (int64, bool) {
		id, err := strconv.ParseInt(raw, 10, 64)
		return id, err == nil
	})

	updated, err := s.db.MarkRead(ids, identityFrom(c))
	if err != nil {
		log.Error().Err(err).Msg("mark read failed")
		s.recordREST("mark_read", http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}

	s.recordREST("mark_read", http.StatusOK)
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// handleHealth serves health check status
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "healthy",
		"uptime_seconds":     int64(time.Since(s.startTime).Seconds()),
		"messages":           s.db.CountMessages(),
		"online_users":       s.presence.Online(),
		"active_connections": len(s.presence.Connections()),
	})
}
