// Package httpapi exposes the dispatcher over HTTP and WebSocket.
package httpapi

import (
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/gorilla/websocket"

	"github.com/Reality-Reimagined/voiceai/internal/core"
	"github.com/Reality-Reimagined/voiceai/internal/dispatch"
	"github.com/Reality-Reimagined/voiceai/internal/health"
	"github.com/Reality-Reimagined/voiceai/internal/observe"
)

// Request size limits.
const (
	maxJSONBodyBytes   = 1 << 20
	maxUploadBytes     = 32 << 20
	wsWriteTimeout     = 10 * time.Second
	wsReadBufferBytes  = 4096
	wsWriteBufferBytes = 32 * 1024
)

// Deps are the collaborators of a Server. Auth, Checkout, Metrics,
// MetricsHandler and Health are optional.
type Deps struct {
	Dispatcher     *dispatch.Dispatcher
	Store          core.ObjectStore
	Auth           core.Authenticator
	Checkout       core.CheckoutProvider
	Health         *health.Handler
	Metrics        *observe.Metrics
	MetricsHandler http.Handler
	Log            *logger.Logger
}

// Options tune the HTTP surface.
type Options struct {
	PriceID           string
	AllowedOrigins    []string
	RateLimitEnabled  bool
	RequestsPerMinute int
	Burst             int
}

// Server routes HTTP requests to the dispatcher.
type Server struct {
	dispatcher *dispatch.Dispatcher
	store      core.ObjectStore
	auth       core.Authenticator
	checkout   core.CheckoutProvider
	health     *health.Handler
	metrics    *observe.Metrics
	metricsH   http.Handler
	limiter    *userLimiter
	upgrader   websocket.Upgrader
	options    Options
	log        *logger.Logger
}

// New builds a Server.
func New(deps Deps, opts Options) *Server {
	s := &Server{
		dispatcher: deps.Dispatcher,
		store:      deps.Store,
		auth:       deps.Auth,
		checkout:   deps.Checkout,
		health:     deps.Health,
		metrics:    deps.Metrics,
		metricsH:   deps.MetricsHandler,
		options:    opts,
		log:        deps.Log,
	}

	if opts.RateLimitEnabled {
		s.limiter = newUserLimiter(opts.RequestsPerMinute, opts.Burst)
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  wsReadBufferBytes,
		WriteBufferSize: wsWriteBufferBytes,
		CheckOrigin:     s.originAllowed,
	}

	if s.health == nil {
		s.health = health.New()
	}

	return s
}

// Handler returns the root handler with CORS and request metrics applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/tts", s.protect(http.HandlerFunc(s.handleSynthesize)))
	mux.Handle("GET /ws/tts", s.protect(http.HandlerFunc(s.handleStream)))
	mux.Handle("POST /api/clone-voice", s.protect(http.HandlerFunc(s.handleCloneVoice)))
	mux.Handle("GET /api/voices", s.protect(http.HandlerFunc(s.handleListVoices)))
	mux.Handle("POST /api/webhooks", s.protect(http.HandlerFunc(s.handleSubscribe)))
	mux.Handle("DELETE /api/webhooks", s.protect(http.HandlerFunc(s.handleUnsubscribe)))
	mux.Handle("POST /api/speech-edit", s.protect(http.HandlerFunc(s.handleEditSpeech)))
	mux.Handle("POST /api/create-checkout-session", s.protect(http.HandlerFunc(s.handleCheckout)))
	mux.HandleFunc("GET /audio/{key...}", s.handleAudio)

	s.health.Register(mux)

	if s.metricsH != nil {
		mux.Handle("GET /metrics", s.metricsH)
	}

	var handler http.Handler = mux

	handler = s.corsPolicy().Handler(handler)

	if s.metrics != nil {
		handler = observe.Middleware(s.metrics, s.log)(handler)
	}

	return handler
}

// protect applies authentication and then the per-user rate limit.
func (s *Server) protect(next http.Handler) http.Handler {
	return s.authenticate(s.rateLimit(next))
}
