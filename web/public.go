package web

import (
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/deemkeen/fedwire/activitypub"
	"github.com/deemkeen/fedwire/pagination"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var preferMaxMembers = regexp.MustCompile(`max-member-count="?(\d+)"?`)

func (s *Server) handlePublic(c *gin.Context) {
	items, err := s.outbox.Public()
	if err != nil {
		log.Error().Err(err).Msg("Public: failed to list activities")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list activities"})
		return
	}
	base := s.conf.BaseURL()
	writeActivityJSON(c, http.StatusOK, gin.H{
		"@context":   activitypub.ActivityStreamsContext,
		"id":         base + "/public",
		"type":       "OrderedCollection",
		"totalItems": len(items),
		"first":      base + "/public/page",
	})
}

func (s *Server) handlePublicPage(c *gin.Context) {
	var cursor *pagination.Filter
	if raw := c.Query("cursor"); raw != "" {
		f, err := pagination.ParseCursor([]byte(raw))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cursor = &f
	}

	items, err := s.outbox.Public()
	if err != nil {
		log.Error().Err(err).Msg("Public: failed to list activities")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list activities"})
		return
	}

	size := s.pageSize(c.Query("max-member-count"), c.GetHeader("Prefer"))
	page, next := pagination.Page(items, cursor, size)

	base := s.conf.BaseURL()
	body := gin.H{
		"@context":     activitypub.ActivityStreamsContext,
		"id":           base + c.Request.URL.RequestURI(),
		"type":         "OrderedCollectionPage",
		"partOf":       base + "/public",
		"orderedItems": page,
	}
	if next != nil {
		nextURL, err := pageURL(base, *next, size)
		if err != nil {
			log.Error().Err(err).Msg("Public: failed to encode cursor")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not encode cursor"})
			return
		}
		body["next"] = nextURL
	}
	writeActivityJSON(c, http.StatusOK, body)
}

// pageSize picks the page size from the query parameter, then the Prefer
// header, then the configured default, clamped to the configured maximum.
func (s *Server) pageSize(query, prefer string) int {
	size := s.conf.Pagination.DefaultPageSize
	if n, ok := positiveInt(query); ok {
		size = n
	} else if m := preferMaxMembers.FindStringSubmatch(prefer); m != nil {
		if n, ok := positiveInt(m[1]); ok {
			size = n
		}
	}
	if size < 1 {
		size = 1
	}
	if max := s.conf.Pagination.MaxPageSize; max > 0 && size > max {
		size = max
	}
	return size
}

func positiveInt(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func pageURL(base string, cursor pagination.Filter, size int) (string, error) {
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("cursor", string(data))
	q.Set("max-member-count", strconv.Itoa(size))
	return base + "/public/page?" + q.Encode(), nil
}
