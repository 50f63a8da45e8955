package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/deemkeen/fedwire/util"
	"github.com/gin-gonic/gin"
)

// GetWebfinger answers for the server actor only.
func GetWebfinger(resource string, conf *util.AppConfig) (gin.H, bool) {
	subject := fmt.Sprintf("acct:%s@%s", util.Name, conf.Conf.SslDomain)
	if !strings.EqualFold(strings.TrimSpace(resource), subject) {
		return nil, false
	}
	return gin.H{
		"subject": subject,
		"links": []gin.H{
			{
				"rel":  "self",
				"type": "application/activity+json",
				"href": conf.BaseURL() + "/actor",
			},
		},
	}, true
}

func GetWebFingerNotFound() string {
	return `{"detail":"Not Found"}`
}

func (s *Server) handleWebfinger(c *gin.Context) {
	body, ok := GetWebfinger(c.Query("resource"), s.conf)
	if !ok {
		c.Data(http.StatusNotFound, "application/json; charset=utf-8", []byte(GetWebFingerNotFound()))
		return
	}
	c.Header("Content-Type", "application/jrd+json; charset=utf-8")
	c.JSON(http.StatusOK, body)
}
