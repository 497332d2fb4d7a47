package realtime

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-realtime/internal/auth"
	"github.com/spec-kit/helpdesk-realtime/internal/clock"
	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	"github.com/spec-kit/helpdesk-realtime/internal/events"
	"github.com/spec-kit/helpdesk-realtime/internal/observability"
	"github.com/spec-kit/helpdesk-realtime/internal/presence"
	"github.com/spec-kit/helpdesk-realtime/internal/worker"
)

// SockJS close codes.
const (
	closeUnauthorized = 4001
	closeGoingAway    = 1001
)

// Transport is the client side of one connection. sockjs.Session
// satisfies it.
type Transport interface {
	Recv() (string, error)
	Send(frame string) error
	Close(status uint32, reason string) error
}

// Authenticator turns a bearer token into a session.
type Authenticator interface {
	Authenticate(token string) (domain.Session, error)
}

// TicketGate resolves a ticket the session may see.
type TicketGate interface {
	GetTicket(ctx context.Context, session domain.Session, ticketID string) (*domain.Ticket, error)
}

// ViewerTracker records which tickets a session has open.
type ViewerTracker interface {
	Enter(ctx context.Context, session domain.Session, ticketID string) error
	Refresh(ctx context.Context, session domain.Session, ticketID string) error
	Leave(ctx context.Context, session domain.Session, ticketID string) error
}

// Acknowledger records delivery receipts.
type Acknowledger interface {
	Acknowledge(ctx context.Context, session domain.Session, ticketID string, messageIDs []string) (int, error)
}

// TaskQueue runs best-effort work off the connection goroutines.
type TaskQueue interface {
	Enqueue(ctx context.Context, task worker.Task) error
}

// Config holds per-connection cadences.
type Config struct {
	HeartbeatInterval     time.Duration
	AwayAfter             time.Duration
	ViewerRefreshInterval time.Duration
	DedupCapacity         int
	SendBuffer            int
}

// Dependencies bundles Gateway collaborators. Queue is optional; without
// it viewer refreshes run inline.
type Dependencies struct {
	Auth     Authenticator
	Channel  events.Channel
	Tracker  *presence.Tracker
	Tickets  TicketGate
	Viewers  ViewerTracker
	Messages Acknowledger
	Queue    TaskQueue
	Clock    clock.Clock
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// Gateway serves realtime clients: topic subscriptions, presence
// heartbeats, ticket viewing and delivery receipts.
type Gateway struct {
	cfg  Config
	deps Dependencies

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// views counts connections viewing a ticket per user, so the viewer
	// row is deleted only when the last of them leaves.
	viewsMu sync.Mutex
	views   map[viewKey]int
}

type viewKey struct {
	userID   string
	ticketID string
}

// NewGateway constructs a Gateway. Shutdown ends every connection it
// serves.
func NewGateway(cfg Config, deps Dependencies) *Gateway {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.DedupCapacity <= 0 {
		cfg.DedupCapacity = 1024
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Gateway{cfg: cfg, deps: deps, base: base, cancel: cancel, views: make(map[viewKey]int)}
}

func (g *Gateway) acquireView(userID, ticketID string) {
	g.viewsMu.Lock()
	defer g.viewsMu.Unlock()
	g.views[viewKey{userID, ticketID}]++
}

// releaseView reports whether no connection of userID views ticketID
// any more.
func (g *Gateway) releaseView(userID, ticketID string) bool {
	g.viewsMu.Lock()
	defer g.viewsMu.Unlock()
	key := viewKey{userID, ticketID}
	if g.views[key] > 1 {
		g.views[key]--
		return false
	}
	delete(g.views, key)
	return true
}

func (g *Gateway) viewHeld(userID, ticketID string) bool {
	g.viewsMu.Lock()
	defer g.viewsMu.Unlock()
	return g.views[viewKey{userID, ticketID}] > 0
}

// Handler returns the SockJS endpoint mounted at prefix.
func (g *Gateway) Handler(prefix string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(prefix+"/", sockjs.NewHandler(prefix, sockjs.DefaultOptions, g.handleSession))
	return otelhttp.NewHandler(mux, "realtime")
}

func (g *Gateway) handleSession(sess sockjs.Session) {
	token := tokenFromRequest(sess.Request())
	if token == "" {
		_ = sess.Close(closeUnauthorized, "missing token")
		return
	}
	session, err := g.deps.Auth.Authenticate(token)
	if err != nil {
		_ = sess.Close(closeUnauthorized, "invalid token")
		return
	}
	g.Serve(g.base, session, sess)
}

// Serve runs one connection until the transport fails or ctx ends. It
// returns after every goroutine of the connection has stopped.
func (g *Gateway) Serve(ctx context.Context, session domain.Session, t Transport) {
	g.wg.Add(1)
	defer g.wg.Done()
	newConn(g, uuid.NewString(), session, t).run(ctx)
}

// Shutdown closes every open connection and waits for their teardown.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.cancel()
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func tokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
