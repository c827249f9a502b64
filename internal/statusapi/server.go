// Package statusapi is the optional HTTP status surface: a small gin
// server reporting the orchestrator's live phase, round, and lock
// ownership for operators watching the unbounded schema-agreement wait.
// It never blocks and never participates in the orchestrator's exit-code
// logic.
package statusapi

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/carnegie-technologies/cqlmigrate/internal/orchestrator"
)

// Snapshot is the JSON shape served at GET /status.
type Snapshot struct {
	Phase           string         `json:"phase"`
	Round           int            `json:"round"`
	ServiceProgress map[string]int `json:"service_progress"`
	LockHeld        bool           `json:"lock_held"`
	LockClient      string         `json:"lock_client"`
}

// Reporter satisfies orchestrator.StatusReporter and the round-progress
// callback the scheduler accepts, storing each update into an
// atomic.Pointer-guarded snapshot the HTTP handlers read. The orchestrator
// calls these synchronously from its own goroutine, so there is never more
// than one writer at a time.
type Reporter struct {
	snap atomic.Pointer[Snapshot]
}

// NewReporter returns a Reporter seeded with the start-of-run snapshot.
func NewReporter() *Reporter {
	r := &Reporter{}
	r.snap.Store(&Snapshot{
		Phase:           orchestrator.StateStart.String(),
		ServiceProgress: map[string]int{},
	})
	return r
}

// Phase records the orchestrator's current state-machine node.
func (r *Reporter) Phase(s orchestrator.State) {
	next := *r.snap.Load()
	next.Phase = s.String()
	r.snap.Store(&next)
}

// Lock records whether the orchestrator currently believes it holds the
// migration lock, and the client identifier it holds it as.
func (r *Reporter) Lock(held bool, client string) {
	next := *r.snap.Load()
	next.LockHeld = held
	next.LockClient = client
	r.snap.Store(&next)
}

// Round records a new migration round starting, and increments each
// participating service's started-round counter so /status can show
// per-service progress through its queue.
func (r *Reporter) Round(round int, services []string) {
	cur := r.snap.Load()
	next := *cur
	next.Round = round
	progress := make(map[string]int, len(cur.ServiceProgress))
	for k, v := range cur.ServiceProgress {
		progress[k] = v
	}
	for _, s := range services {
		progress[s]++
	}
	next.ServiceProgress = progress
	r.snap.Store(&next)
}

// Snapshot returns the current status snapshot.
func (r *Reporter) Snapshot() Snapshot { return *r.snap.Load() }

// Server is the read-only observability surface.
type Server struct {
	reporter   *Reporter
	router     *gin.Engine
	httpServer *http.Server
}

// NewServer builds the gin router serving /healthz and /status, adapted
// from the teacher's gin.New()+Recovery()+Logger()+CORS construction.
func NewServer(addr string, reporter *Reporter) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET"},
		MaxAge:          12 * time.Hour,
	}))

	s := &Server{reporter: reporter, router: router}
	router.GET("/healthz", s.handleHealthz)
	router.GET("/status", s.handleStatus)
	s.httpServer = &http.Server{Addr: addr, Handler: router}
	return s
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.reporter.Snapshot())
}

// Run serves until the listener fails or Shutdown is called; it returns
// http.ErrServerClosed on a clean shutdown, matching net/http's contract.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
