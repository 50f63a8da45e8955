package web

import (
	"errors"
	"net/http"

	"github.com/deemkeen/fedwire/activitypub"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func (s *Server) handlePostOutbox(c *gin.Context) {
	body, ok := readBody(c, "Outbox")
	if !ok {
		return
	}

	sub, err := s.outbox.Submit(c.Request.Context(), body)
	if errors.Is(err, activitypub.ErrMalformedActivity) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Outbox: submission failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store activity"})
		return
	}

	c.Header("Location", sub.ID)
	writeActivityJSON(c, http.StatusCreated, sub.Activity)
}

func (s *Server) handleGetActivity(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid activity ID"})
		return
	}

	activity, found, err := s.outbox.Get(s.outbox.ActivityURL(id.String()))
	if err != nil {
		log.Error().Err(err).Str("id", id.String()).Msg("Outbox: failed to read activity")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read activity"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Activity not found"})
		return
	}

	c.Header("Link", s.inboxLinkHeader())
	writeActivityJSON(c, http.StatusOK, activity)
}

func (s *Server) handleRecent(c *gin.Context) {
	items, err := s.outbox.Recent(recentLimit)
	if err != nil {
		log.Error().Err(err).Msg("Outbox: failed to list recent activities")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list activities"})
		return
	}
	writeActivityJSON(c, http.StatusOK, orderedCollection(s.conf.BaseURL()+"/recent", items))
}

func orderedCollection(id string, items []activitypub.Object) gin.H {
	if items == nil {
		items = []activitypub.Object{}
	}
	return gin.H{
		"@context":     activitypub.ActivityStreamsContext,
		"id":           id,
		"type":         "OrderedCollection",
		"totalItems":   len(items),
		"orderedItems": items,
	}
}
