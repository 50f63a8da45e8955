package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/deemkeen/fedwire/activitypub"
	"github.com/deemkeen/fedwire/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	contentTypeActivity = "application/activity+json; charset=utf-8"
	maxActivityBytes    = 1 * 1024 * 1024
	recentLimit         = 20
)

// RequestVerifier authenticates a POST to the inbox and returns the sender.
type RequestVerifier interface {
	Verify(ctx context.Context, req *http.Request, body []byte) (string, error)
}

// Server exposes the outbox, inbox and public log over HTTP.
type Server struct {
	conf         *util.AppConfig
	outbox       *activitypub.Outbox
	inbox        *activitypub.Inbox
	publicKeyPem string
	verifier     RequestVerifier
}

func NewServer(conf *util.AppConfig, outbox *activitypub.Outbox, inbox *activitypub.Inbox, publicKeyPem string) *Server {
	return &Server{conf: conf, outbox: outbox, inbox: inbox, publicKeyPem: publicKeyPem}
}

// WithVerifier makes the inbox refuse POSTs that v does not accept.
func (s *Server) WithVerifier(v RequestVerifier) *Server {
	s.verifier = v
	return s
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() *gin.Engine {
	g := gin.New()
	g.Use(gin.Recovery(), RequestLogger())
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	// Stricter rate limit for submissions: 5 req/sec per IP
	postLimiter := NewRateLimiter(rate.Limit(5), 10)
	maxBodySize := MaxBytesMiddleware(maxActivityBytes)

	g.GET("/", s.handleIndex)

	g.POST("/outbox", RateLimitMiddleware(postLimiter), maxBodySize, s.handlePostOutbox)
	g.GET("/activities/:id", s.handleGetActivity)
	g.GET("/recent", s.handleRecent)

	g.POST("/inbox", RateLimitMiddleware(postLimiter), maxBodySize, s.handlePostInbox)
	g.GET("/inbox", s.handleGetInbox)

	g.GET("/public", s.handlePublic)
	g.GET("/public/page", s.handlePublicPage)
	g.GET("/public/feed", s.handleFeed)

	g.GET("/actor", s.handleActor)
	g.GET("/.well-known/webfinger", s.handleWebfinger)

	return g
}

// Run serves until ctx is cancelled or the listener fails. In-flight
// requests get up to 30 seconds to finish.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.conf.Conf.Host, s.conf.Conf.HttpPort),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("baseURL", s.conf.BaseURL()).Msg("HTTP: starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("HTTP: stopping server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(c *gin.Context) {
	base := s.conf.BaseURL()
	c.JSON(http.StatusOK, gin.H{
		"name":   util.GetNameAndVersion(),
		"outbox": base + "/outbox",
		"inbox":  base + "/inbox",
		"public": base + "/public",
		"recent": base + "/recent",
		"feed":   base + "/public/feed",
		"actor":  base + "/actor",
	})
}

// writeActivityJSON renders v with the ActivityStreams media type.
func writeActivityJSON(c *gin.Context, status int, v any) {
	c.Header("Content-Type", contentTypeActivity)
	c.JSON(status, v)
}

func (s *Server) inboxLinkHeader() string {
	return fmt.Sprintf(`<%s/inbox>; rel="%s"`, s.conf.BaseURL(), activitypub.LDPInbox)
}
