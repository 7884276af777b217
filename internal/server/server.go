// Package server exposes the HTTP read API: message listing, manual job
// triggers, and static serving of the collected media files.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nishinokaede/yunaMessage/internal/config"
	"github.com/nishinokaede/yunaMessage/internal/database"
	"github.com/nishinokaede/yunaMessage/internal/scheduler"
)

// MessageOut is the wire shape of one listed message. URL is populated only
// for media messages with a stored file.
type MessageOut struct {
	MsgID       string `json:"msg_id"`
	MsgType     string `json:"msg_type"`
	TextContent string `json:"text_content,omitempty"`
	Grp         string `json:"grp,omitempty"`
	MemberID    string `json:"member_id,omitempty"`
	MemberName  string `json:"member_name,omitempty"`
	URL         string `json:"url,omitempty"`
	CreatedAt   string `json:"created_at"`
	PublishedAt string `json:"published_at,omitempty"`
}

// Server serves the read API over gin.
type Server struct {
	logger *slog.Logger
	cfg    *config.Config
	store  database.Store
	sched  *scheduler.Scheduler
	router *gin.Engine
	http   *http.Server
}

// New builds the server and its routes.
func New(logger *slog.Logger, cfg *config.Config, store database.Store, sched *scheduler.Scheduler) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "server")

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	s := &Server{
		logger: log,
		cfg:    cfg,
		store:  store,
		sched:  sched,
		router: router,
		http: &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "yunaMessage backend")
	})
	router.GET("/messages", s.listMessages)
	router.POST("/manual/getToken", s.manualTrigger(config.JobGetToken))
	router.POST("/manual/getMessage", s.manualTrigger(config.JobGetMessage))
	router.Static("/data/messages", cfg.Storage.MessageDir)

	return s
}

// Handler returns the HTTP handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server and shuts it down gracefully when ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return errors.New("http server stopped unexpectedly")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info("HTTP server stopped gracefully.")
		return nil
	}
}

// listMessages handles GET /messages?limit&offset&msg_id&date.
func (s *Server) listMessages(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	msgID := c.Query("msg_id")

	date := c.Query("date")
	if date != "" && !validDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be 8 digits in the form YYYYMMDD"})
		return
	}

	rows, err := s.store.ListMessages(c.Request.Context(), limit, offset, msgID)
	if err != nil {
		s.logger.ErrorContext(c.Request.Context(), "Failed to list messages", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}

	result := make([]MessageOut, 0, len(rows))
	for _, row := range rows {
		if date != "" && !matchDate(row, date) {
			continue
		}
		result = append(result, s.toMessageOut(row))
	}

	// Ascending by msg_id: all-numeric ids by value first, then the rest
	// by string compare.
	sort.SliceStable(result, func(i, j int) bool {
		return lessMsgID(result[i].MsgID, result[j].MsgID)
	})

	c.JSON(http.StatusOK, result)
}

func (s *Server) toMessageOut(row database.Message) MessageOut {
	out := MessageOut{
		MsgID:       row.MsgID,
		MsgType:     row.MessageType,
		TextContent: row.TextContent,
		Grp:         row.Grp,
		MemberID:    row.MemberID,
		MemberName:  row.MemberName,
		CreatedAt:   row.CreatedAt,
		PublishedAt: row.PublishedAt,
	}

	// Text messages never carry a URL, even when a file path is stored.
	switch row.MessageType {
	case "image", "audio", "video":
		if row.FilePath != "" {
			out.URL = s.cfg.Server.FileBaseURL + "/data/messages/" +
				row.MemberName + "/" + filepath.Base(row.FilePath)
		}
	}
	return out
}

// manualTrigger returns a handler requesting an out-of-band run of the job.
func (s *Server) manualTrigger(job string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.sched.RunNow(job); err != nil {
			if errors.Is(err, scheduler.ErrUnknownJob) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "status": "in_progress"})
	}
}

// matchDate reports whether the row belongs to the 8-digit date, preferring
// the published_at prefix and falling back to the timestamp embedded in the
// stored filename.
func matchDate(row database.Message, date string) bool {
	if row.PublishedAt != "" {
		return len(row.PublishedAt) >= len(date) && row.PublishedAt[:len(date)] == date
	}
	if row.FilePath == "" {
		return false
	}

	name := filepath.Base(row.FilePath)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.SplitN(stem, "_", 3)
	if len(parts) < 3 {
		return false
	}
	ts := parts[2]
	return len(ts) >= len(date) && ts[:len(date)] == date
}

// lessMsgID orders numeric ids (by value) before non-numeric ids (by
// string).
func lessMsgID(a, b string) bool {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)

	switch {
	case aErr == nil && bErr == nil:
		return ai < bi
	case aErr == nil:
		return true
	case bErr == nil:
		return false
	default:
		return a < b
	}
}

func validDate(date string) bool {
	if len(date) != 8 {
		return false
	}
	for _, r := range date {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// requestLogger logs each request with its status and duration.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		log.Info("Handled request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(startTime))
	}
}
