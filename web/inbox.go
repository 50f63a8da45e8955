package web

import (
	"errors"
	"net/http"

	"github.com/deemkeen/fedwire/activitypub"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func (s *Server) handlePostInbox(c *gin.Context) {
	body, ok := readBody(c, "Inbox")
	if !ok {
		return
	}
	if s.verifier != nil {
		sender, err := s.verifier.Verify(c.Request.Context(), c.Request, body)
		if err != nil {
			log.Warn().Err(err).Str("ip", c.ClientIP()).Msg("Inbox: signature rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		log.Debug().Str("sender", sender).Msg("Inbox: signature verified")
	}

	id, err := s.inbox.Receive(c.Request.Context(), body)
	switch {
	case errors.Is(err, activitypub.ErrDuplicateID):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, activitypub.ErrMalformedActivity), errors.Is(err, activitypub.ErrRejected):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		log.Error().Err(err).Msg("Inbox: failed to store notification")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store notification"})
	default:
		c.Header("Location", id)
		c.Status(http.StatusCreated)
	}
}

// handleGetInbox lists notifications as an LDP container.
func (s *Server) handleGetInbox(c *gin.Context) {
	items, err := s.inbox.Items(0)
	if err != nil {
		log.Error().Err(err).Msg("Inbox: failed to list notifications")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list notifications"})
		return
	}
	if items == nil {
		items = []activitypub.Object{}
	}
	c.Header("Content-Type", "application/ld+json; charset=utf-8")
	c.JSON(http.StatusOK, gin.H{
		"@context":     gin.H{"ldp": "http://www.w3.org/ns/ldp#"},
		"@id":          s.conf.BaseURL() + "/inbox",
		"@type":        "ldp:Container",
		"ldp:contains": items,
	})
}
