package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/auth"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/livecall"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/report"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/scenario"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type Calls interface {
	StartCall(ctx context.Context, request call.StartCallRequest) (*call.StartCallResult, error)
	EndCall(ctx context.Context, jobID, telephonySID string) error
}

type LiveCalls interface {
	Acquire() func()
	Current() ([]livecall.LiveCall, bool)
	Snapshot(ctx context.Context) []livecall.LiveCall
}

type Stream interface {
	Subscribe() chan []byte
	Unsubscribe(ch chan []byte)
}

type Reports interface {
	Generate(ctx context.Context, callID string) (*report.Report, error)
	Save(ctx context.Context, report *report.Report) (*report.Report, error)
	List(ctx context.Context) ([]report.Summary, error)
	Get(ctx context.Context, id string) (*report.Report, error)
	Delete(ctx context.Context, id string) error
	ExportXLSX(ctx context.Context, w io.Writer) error
}

type PromptGenerator interface {
	GenerateAgentPrompt(ctx context.Context, description, scenarioType string) (string, error)
}

type QuestionGroups interface {
	RandomGroup(language string) scenario.Group
}

type Health interface {
	Degraded() map[string]string
}

type Authenticator interface {
	Authenticate(username, password string) error
}

// Dependencies are the services behind the HTTP API.
type Dependencies struct {
	Sessions       *auth.Manager
	Authenticator  Authenticator
	Calls          Calls
	LiveCalls      LiveCalls
	Stream         Stream
	Reports        Reports
	Prompts        PromptGenerator
	QuestionGroups QuestionGroups
	Health         Health
}

type Server struct {
	Router     *gin.Engine
	HTTPServer *http.Server
	deps       Dependencies
	keepalive  time.Duration
}

func New(deps Dependencies) *Server {
	if config.Conf.GinMode != "" {
		gin.SetMode(config.Conf.GinMode)
	}

	router := gin.New()
	router.Use(RequestLogger(), Recovery())

	server := &Server{
		Router:    router,
		deps:      deps,
		keepalive: 15 * time.Second,
	}

	server.registerRoutes()

	server.HTTPServer = &http.Server{
		Addr:              ":" + config.Conf.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(config.Conf.HTTPTimeout) * time.Second,
	}

	return server
}

func (server *Server) registerRoutes() {
	server.Router.GET("/healthz", server.health)

	api := server.Router.Group("/api")
	api.POST("/auth/login", server.login)

	protected := api.Group("")
	protected.Use(auth.RequireAccessToken(server.deps.Sessions))

	protected.GET("/auth/session", server.session)

	protected.POST("/calls", server.startCall)
	protected.GET("/calls/live", server.liveCalls)
	protected.GET("/calls/live/stream", server.liveCallStream)
	protected.POST("/calls/live/:jobId/end", server.endCall)

	protected.POST("/reports/generate", server.generateReport)
	protected.POST("/reports", server.saveReport)
	protected.GET("/reports", server.listReports)
	protected.GET("/reports/export", server.exportReports)
	protected.GET("/reports/:id", server.getReport)
	protected.DELETE("/reports/:id", server.deleteReport)

	protected.POST("/prompts/generate", server.generatePrompt)
	protected.GET("/question-groups/random", server.randomQuestionGroup)
}

// Run serves until ctx is done, then shuts down gracefully.
func (server *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	// Streams end with ctx instead of holding Shutdown open.
	server.HTTPServer.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		logging.Logger.Info("HTTP server listening", zap.String("addr", server.HTTPServer.Addr))

		err := server.HTTPServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := server.HTTPServer.Shutdown(shutdownCtx)
	if err != nil {
		logging.Logger.Error("HTTP server shutdown failed", zap.String("error", err.Error()))
		return err
	}

	logging.Logger.Info("HTTP server stopped")

	return nil
}
