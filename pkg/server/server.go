package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"erc20idx/pkg/address"
	"erc20idx/pkg/controller"
	"erc20idx/pkg/metrics"
	"erc20idx/pkg/state"
	"erc20idx/pkg/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templatesFS embed.FS

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Options struct {
	AllowedOrigins []string
	Columns        int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
}

type Server struct {
	ctrl    *controller.Controller
	opts    Options
	logger  *zap.Logger
	router  *gin.Engine
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
	sub     controller.Subscriber
	http    *http.Server
}

// wsMessage is the frame pushed to websocket clients.
type wsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type queryFinished struct {
	QueryID    string `json:"queryId"`
	Address    string `json:"address"`
	Tokens     int    `json:"tokens"`
	DurationMs int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
}

type queryRequest struct {
	Address string `json:"address" form:"address"`
}

func NewServer(ctrl *controller.Controller, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Columns <= 0 {
		opts.Columns = 4
	}
	s := &Server{
		ctrl:    ctrl,
		opts:    opts,
		logger:  opts.Logger.Named("server"),
		router:  gin.New(),
		clients: make(map[*websocket.Conn]bool),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	corsConfig := cors.DefaultConfig()
	if len(s.opts.AllowedOrigins) == 0 || containsWildcard(s.opts.AllowedOrigins) {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.opts.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	s.router.Use(cors.New(corsConfig))
	s.router.Use(ZapLoggerMiddleware(s.logger))
	s.router.Use(gin.Recovery())

	tmpl := template.Must(template.New("").Funcs(template.FuncMap{
		"shortAddr": utils.ShortAddress,
	}).ParseFS(templatesFS, "templates/*.html"))
	s.router.SetHTMLTemplate(tmpl)

	s.router.GET("/", s.handleIndex)
	s.router.POST("/query", s.handleQueryForm)
	s.router.POST("/connect", s.handleConnect)

	api := s.router.Group("/api")
	{
		api.GET("/state", s.handleState)
		api.POST("/query", s.handleQuery)
	}

	s.router.GET("/ws", s.handleWS)
	s.router.GET("/healthz", s.handleHealth)
	if s.opts.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.opts.Metrics.Handler()))
	}
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on port until Shutdown is called.
func (s *Server) Start(port int) error {
	s.startBroadcasting()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()
	s.logger.Info("API server listening", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener and closes every websocket client.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopBroadcasting()
	s.mu.Lock()
	for client := range s.clients {
		_ = client.Close()
		delete(s.clients, client)
	}
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"State":       s.ctrl.State(),
		"Placeholder": state.Placeholder,
		"Notice":      state.FilterNotice,
		"Columns":     s.opts.Columns,
	})
}

// handleQueryForm runs the query and redirects back to the page, which shows
// either the results or the error.
func (s *Server) handleQueryForm(c *gin.Context) {
	var req queryRequest
	_ = c.ShouldBind(&req)
	_, _ = s.ctrl.Query(c.Request.Context(), req.Address)
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) handleConnect(c *gin.Context) {
	_, _ = s.ctrl.Connect(c.Request.Context())
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.State())
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	st, err := s.ctrl.Query(c.Request.Context(), req.Address)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, st)
	case errors.Is(err, address.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "state": st})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "state": st})
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "UP",
		"checkTime": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	s.mu.Lock()
	s.clients[conn] = true
	err = conn.WriteJSON(wsMessage{Type: "initial", Data: s.ctrl.State()})
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()
	if err != nil {
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// startBroadcasting subscribes before returning so no event is missed.
func (s *Server) startBroadcasting() {
	s.mu.Lock()
	if s.sub != nil {
		s.mu.Unlock()
		return
	}
	sub := s.ctrl.Subscribe()
	s.sub = sub
	s.mu.Unlock()

	go func() {
		for event := range sub {
			s.broadcast(event)
		}
	}()
}

func (s *Server) stopBroadcasting() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		s.ctrl.Unsubscribe(sub)
	}
}

func toMessage(event controller.Event) wsMessage {
	msg := wsMessage{Type: string(event.Type), Data: event.Data}
	if stats, ok := event.Data.(controller.QueryStats); ok {
		qf := queryFinished{
			QueryID:    stats.QueryID,
			Address:    stats.Address,
			Tokens:     stats.Tokens,
			DurationMs: stats.Duration.Milliseconds(),
		}
		if stats.Err != nil {
			qf.Error = stats.Err.Error()
		}
		msg.Data = qf
	}
	return msg
}

func (s *Server) broadcast(event controller.Event) {
	msg := toMessage(event)

	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		if err := client.WriteJSON(msg); err != nil {
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}
