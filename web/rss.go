package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/deemkeen/fedwire/activitypub"
	"github.com/deemkeen/fedwire/pagination"
	"github.com/deemkeen/fedwire/util"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/feeds"
	"github.com/rs/zerolog/log"
)

// GetRSS renders the public activity log as an RSS feed.
func GetRSS(conf *util.AppConfig, activities []activitypub.Object) (string, error) {
	base := conf.BaseURL()
	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s public activities", util.Name),
		Link:        &feeds.Link{Href: base + "/public/feed"},
		Description: fmt.Sprintf("Publicly addressed activities published by %s", conf.Conf.SslDomain),
		Author:      &feeds.Author{Name: util.Name},
		Created:     time.Now(),
	}

	for _, activity := range activities {
		feed.Items = append(feed.Items, feedItem(activity))
	}
	return feed.ToRss()
}

func feedItem(activity activitypub.Object) *feeds.Item {
	id := activitypub.ID(activity)
	item := &feeds.Item{
		Id:    id,
		Title: activityTitle(activity),
		Link:  &feeds.Link{Href: id},
	}

	body := activity
	if obj, ok := activity["object"].(map[string]any); ok {
		body = obj
	}
	if content, ok := body["content"].(string); ok {
		item.Content = content
	}
	if summary, ok := body["summary"].(string); ok {
		item.Description = summary
	}
	if actor := activitypub.RefIDs(activity["actor"]); len(actor) > 0 {
		item.Author = &feeds.Author{Name: actor[0]}
	}
	if published, ok := activity["published"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, published); err == nil {
			item.Created = t
		}
	}
	return item
}

func activityTitle(activity activitypub.Object) string {
	kind := "Activity"
	if types := activitypub.Types(activity); len(types) > 0 {
		kind = types[0]
	}
	if obj, ok := activity["object"].(map[string]any); ok {
		if name, ok := obj["name"].(string); ok && name != "" {
			return fmt.Sprintf("%s: %s", kind, name)
		}
		if types := activitypub.Types(obj); len(types) > 0 {
			return fmt.Sprintf("%s %s", kind, types[0])
		}
	}
	return kind
}

func (s *Server) handleFeed(c *gin.Context) {
	activities, err := s.outbox.Public()
	if err != nil {
		log.Error().Err(err).Msg("Feed: failed to list activities")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list activities"})
		return
	}
	page, _ := pagination.Page(activities, nil, s.conf.Pagination.DefaultPageSize)
	rss, err := GetRSS(s.conf, page)
	if err != nil {
		log.Error().Err(err).Msg("Feed: failed to render RSS")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not render feed"})
		return
	}
	c.Header("Content-Type", "application/rss+xml; charset=utf-8")
	c.String(http.StatusOK, rss)
}
