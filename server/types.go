package server

import "time"

// Server tuning constants.
const (
	// MaxClients bounds concurrent WebSocket connections
	MaxClients = 256

	// ShutdownTimeout bounds the LIFO teardown stack on Stop
	ShutdownTimeout = 10 * time.Second

	// Broadcast frame cadence for the spline live stream (60 FPS)
	splineFrameInterval = 16670 * time.Microsecond

	// Cadence of the per-client server-metrics stream
	metricsStreamInterval = 500 * time.Millisecond

	// Points per spline live frame
	splineFramePoints = 100

	// Deadline for one spline render request
	splineRenderTimeout = 5 * time.Second

	// Deadline for each fetch in the endpoint sweep
	endpointCheckTimeout = 5 * time.Second

	// One-time CSRF tokens expire after this long
	csrfTokenTTL = 5 * time.Minute
)

// ServerState for the lifecycle atomics.
type ServerState int32

const (
	ServerStateRunning ServerState = iota
	ServerStateDraining
	ServerStateStopped
)

// Subscriber topics, typed so accounting cannot drift on string literals.
type Topic string

const (
	TopicChat           Topic = "chat"
	TopicStatusLive     Topic = "status-live"
	TopicWorkers        Topic = "workers"
	TopicVersionUpdates Topic = "version-updates"
	TopicSplineLive     Topic = "spline-live"
)

// AllTopics in reporting order.
var AllTopics = []Topic{TopicChat, TopicStatusLive, TopicWorkers, TopicVersionUpdates, TopicSplineLive}

// Cache metadata attached to routes that want CDN/browser caching semantics.
type CacheMeta struct {
	DurationSec int    `json:"durationSec"`
	Immutable   bool   `json:"immutable"`
	Type        string `json:"type"` // public | private
}

// Header name constants shared across handlers.
const (
	headerDevToken    = "X-TES-Dev-Token"
	headerCSRF        = "X-CSRF-Token"
	headerWSCSRF      = "x-tes-ws-csrf-token"
	headerAPIDomain   = "X-API-Domain"
	headerAPIScope    = "X-API-Scope"
	headerAPIVersion  = "X-API-Version"
	headerRespTime    = "X-Response-Time-Ms"
	headerReady       = "X-Ready"
	headerRetryAfter  = "Retry-After"
	headerRLLimit     = "X-RateLimit-Limit"
	headerRLRemaining = "X-RateLimit-Remaining"
	headerRLReset     = "X-RateLimit-Reset"
)
