package web

import (
	"net/http"

	"github.com/deemkeen/fedwire/activitypub"
	"github.com/deemkeen/fedwire/util"
	"github.com/gin-gonic/gin"
)

const securityContext = "https://w3id.org/security/v1"

// GetActor describes the server's own Service actor. Its key signs outgoing
// deliveries.
func GetActor(conf *util.AppConfig, publicKeyPem string) gin.H {
	base := conf.BaseURL()
	actorID := base + "/actor"
	return gin.H{
		"@context":          []string{activitypub.ActivityStreamsContext, securityContext},
		"id":                actorID,
		"type":              "Service",
		"preferredUsername": util.Name,
		"name":              util.GetNameAndVersion(),
		"inbox":             base + "/inbox",
		"outbox":            base + "/outbox",
		"url":               base + "/",
		"publicKey": gin.H{
			"id":           actorID + "#main-key",
			"owner":        actorID,
			"publicKeyPem": publicKeyPem,
		},
	}
}

func (s *Server) handleActor(c *gin.Context) {
	c.Header("Link", s.inboxLinkHeader())
	writeActivityJSON(c, http.StatusOK, GetActor(s.conf, s.publicKeyPem))
}
