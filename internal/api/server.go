package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/boardflow-core/internal/audit"
	"github.com/nerrad567/boardflow-core/internal/automation"
	"github.com/nerrad567/boardflow-core/internal/board"
	"github.com/nerrad567/boardflow-core/internal/event"
	"github.com/nerrad567/boardflow-core/internal/infrastructure/config"
	"github.com/nerrad567/boardflow-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// RuleService is the rule authoring surface, implemented by
// *automation.Registry.
type RuleService interface {
	ListRules(ctx context.Context, filter automation.RuleFilter) ([]automation.Rule, error)
	GetRule(ctx context.Context, id string) (*automation.Rule, error)
	CreateRule(ctx context.Context, rule *automation.Rule) error
	UpdateRule(ctx context.Context, rule *automation.Rule) error
	DeleteRule(ctx context.Context, id string) error
	AddActions(ctx context.Context, ruleID string, actions []automation.RuleAction) error
	GetActions(ctx context.Context, ruleID string) ([]automation.RuleAction, error)
	RuleCount() int
}

// ExecutionLog lists recorded rule runs.
type ExecutionLog interface {
	ListExecutions(ctx context.Context, ruleID string, limit int) ([]automation.RuleExecution, error)
}

// BoardService reads and repositions cards and lists.
type BoardService interface {
	GetCard(ctx context.Context, id string) (*board.Card, error)
	MoveCard(ctx context.Context, req board.MoveCardRequest) (*board.MoveCardResult, error)
	GetList(ctx context.Context, id string) (*board.List, error)
	MoveList(ctx context.Context, req board.MoveListRequest) (*board.MoveListResult, error)
	GetBoard(ctx context.Context, id string) (*board.Board, error)
}

// EventPublisher sends domain events produced by mutations.
type EventPublisher interface {
	PublishAll(ctx context.Context, events []event.DomainEvent)
}

// AuditTrail records and lists rule authoring changes.
type AuditTrail interface {
	Create(ctx context.Context, entry *audit.Entry) error
	List(ctx context.Context, filter audit.Filter) (*audit.Page, error)
}

// BrokerStatus reports broker connectivity.
type BrokerStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Rules      RuleService
	Executions ExecutionLog
	Boards     BoardService
	Events     EventPublisher // optional: moves are not published without it
	Broker     BrokerStatus   // optional
	Audit      AuditTrail     // optional: authoring is not audited without it
	DB         *sql.DB        // optional: pool stats for /metrics
	Hub        *Hub           // optional: created on Start when nil
	Version    string
}

// Server is the HTTP API server for Boardflow Core.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	rules      RuleService
	executions ExecutionLog
	boards     BoardService
	events     EventPublisher
	broker     BrokerStatus
	audit      AuditTrail
	db         *sql.DB
	version    string
	startTime  time.Time
	server     *http.Server
	hub        *Hub
	cancel     context.CancelFunc
}

// New creates a new API server. The server is not started until Start is
// called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Rules == nil {
		return nil, fmt.Errorf("rule service is required")
	}
	if deps.Boards == nil {
		return nil, fmt.Errorf("board service is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		rules:      deps.Rules,
		executions: deps.Executions,
		boards:     deps.Boards,
		events:     deps.Events,
		broker:     deps.Broker,
		audit:      deps.Audit,
		db:         deps.DB,
		hub:        deps.Hub,
		version:    deps.Version,
		startTime:  time.Now(),
	}, nil
}

// Hub returns the WebSocket hub, creating it if needed. The hub is the
// processor's broadcaster, so callers wire it before Start.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	s.Hub()
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The hub runs until ctx is cancelled or Close is called.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.Hub().Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
