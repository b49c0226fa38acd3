// Package webhook is the inbound side of the WhatsApp channel: the Cloud API
// verification handshake, signed message delivery, and the operational
// /healthz and /metrics endpoints.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nhle/chattask/internal/dispatcher"
)

const (
	signatureHeader = "X-Hub-Signature-256"
	maxBodyBytes    = 1 << 20

	dedupCacheSize = 4096
	dedupTTL       = 10 * time.Minute

	processTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// InboundHandler processes one inbound message. *dispatcher.Dispatcher
// implements it.
type InboundHandler interface {
	HandleInbound(ctx context.Context, in dispatcher.Inbound) (dispatcher.Result, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config configures the webhook server.
type Config struct {
	Addr string

	// VerifyToken must match hub.verify_token in the subscription handshake.
	VerifyToken string

	// AppSecret signs message deliveries. Empty disables the check.
	AppSecret string
}

// Server receives webhook calls. Messages are acknowledged immediately and
// processed in the background.
type Server struct {
	cfg     Config
	handler InboundHandler
	health  Pinger
	logger  *zap.Logger
	engine  *gin.Engine
	now     func() time.Time

	received *prometheus.CounterVec

	dedupMu sync.Mutex
	dedup   *lru.Cache[string, time.Time]

	wg sync.WaitGroup
}

// New creates a Server. Metrics are registered on reg and served from
// gatherer; health may be nil.
func New(cfg Config, handler InboundHandler, health Pinger, reg prometheus.Registerer, gatherer prometheus.Gatherer, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dedup, err := lru.New[string, time.Time](dedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("webhook deduper init: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		handler: handler,
		health:  health,
		logger:  logger.Named("webhook"),
		now:     time.Now,
		dedup:   dedup,
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chattask",
			Subsystem: "webhook",
			Name:      "messages_total",
			Help:      "Inbound messages by outcome.",
		}, []string{"outcome"}),
	}
	if err := reg.Register(s.received); err != nil {
		return nil, fmt.Errorf("registering webhook metrics: %w", err)
	}
	if cfg.AppSecret == "" {
		s.logger.Warn("webhook signature verification disabled: no app secret configured")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/webhook", s.verify)
	engine.POST("/webhook", s.receive)
	engine.GET("/healthz", s.healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	s.engine = engine

	return s, nil
}

// Handler exposes the routes for embedding or testing.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down and waits for
// background processing to finish.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("webhook server listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("webhook server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Wait()
	if err != nil {
		return fmt.Errorf("shutting down webhook server: %w", err)
	}
	return nil
}

// Wait blocks until every accepted message has been processed.
func (s *Server) Wait() {
	s.wg.Wait()
}

// verify answers the subscription handshake.
func (s *Server) verify(c *gin.Context) {
	if c.Query("hub.mode") != "subscribe" || s.cfg.VerifyToken == "" ||
		!hmac.Equal([]byte(c.Query("hub.verify_token")), []byte(s.cfg.VerifyToken)) {
		c.String(http.StatusForbidden, "forbidden")
		return
	}
	c.String(http.StatusOK, c.Query("hub.challenge"))
}

func (s *Server) receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	if !s.validSignature(c.GetHeader(signatureHeader), body) {
		s.received.WithLabelValues("bad_signature").Inc()
		c.Status(http.StatusUnauthorized)
		return
	}

	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		s.received.WithLabelValues("malformed").Inc()
		c.Status(http.StatusBadRequest)
		return
	}

	// Acknowledge first; the provider retries slow responses.
	c.Status(http.StatusOK)

	for _, in := range n.inbounds() {
		if s.isDuplicate(in.MessageID) {
			s.received.WithLabelValues("duplicate").Inc()
			s.logger.Debug("duplicate message skipped", zap.String("message_id", in.MessageID))
			continue
		}
		s.received.WithLabelValues("accepted").Inc()
		s.process(in)
	}
}

func (s *Server) process(in dispatcher.Inbound) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("inbound handler panicked", zap.Any("panic", r), zap.String("message_id", in.MessageID))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		res, err := s.handler.HandleInbound(ctx, in)
		if err != nil {
			s.logger.Error("handling inbound message", zap.String("message_id", in.MessageID), zap.Error(err))
			return
		}
		s.logger.Debug("inbound message handled",
			zap.String("message_id", in.MessageID),
			zap.String("intent", string(res.Action)),
			zap.Bool("success", res.Success))
	}()
}

// validSignature checks the sha256=<hex> HMAC of body under the app secret.
func (s *Server) validSignature(header string, body []byte) bool {
	if s.cfg.AppSecret == "" {
		return true
	}
	hexSig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.cfg.AppSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func (s *Server) isDuplicate(messageID string) bool {
	if messageID == "" {
		return false
	}
	s.dedupMu.Lock()
	defer s.dedupMu.Unlock()

	now := s.now()
	if ts, ok := s.dedup.Get(messageID); ok {
		if now.Sub(ts) <= dedupTTL {
			return true
		}
		s.dedup.Remove(messageID)
	}
	s.dedup.Add(messageID, now)
	return false
}

func (s *Server) healthz(c *gin.Context) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
