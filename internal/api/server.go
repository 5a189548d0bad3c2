package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bidintake/internal"
	"bidintake/internal/listener"
	"bidintake/internal/pipeline"
	"bidintake/internal/runlock"
)

type Scheduler interface {
	Trigger(ctx context.Context) (pipeline.RunResult, error)
	Status() listener.Status
}

// HealthCheck reports whether the mailbox accepts a connection.
type HealthCheck func(ctx context.Context) bool

type Server struct {
	scheduler   Scheduler
	health      HealthCheck
	triggerWait time.Duration
	logger      *zap.Logger
	engine      *gin.Engine
}

type runCounts struct {
	Fetched   int `json:"fetched"`
	Created   int `json:"created"`
	Discarded int `json:"discarded"`
	Failed    int `json:"failed"`
}

type processResponse struct {
	Success   bool                 `json:"success"`
	Message   string               `json:"message"`
	RunID     string               `json:"runId,omitempty"`
	Counts    *runCounts           `json:"counts,omitempty"`
	Data      []internal.BidRecord `json:"data"`
	Error     string               `json:"error,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

func NewServer(scheduler Scheduler, health HealthCheck, triggerWait time.Duration, logger *zap.Logger) *Server {
	s := &Server{
		scheduler:   scheduler,
		health:      health,
		triggerWait: triggerWait,
		logger:      logger.Named("api"),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	group := r.Group("/api/v1/email-processing")
	group.POST("/process-now", s.processNow)
	group.GET("/health", s.healthCheck)
	group.GET("/status", s.status)
	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) processNow(c *gin.Context) {
	ctx := c.Request.Context()
	if s.triggerWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.triggerWait)
		defer cancel()
	}

	result, err := s.scheduler.Trigger(ctx)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, runlock.ErrBusy):
			status = http.StatusConflict
		case internal.IsConnectionError(err):
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, processResponse{
			Success:   false,
			Message:   "Failed to process emails",
			RunID:     result.RunID,
			Error:     err.Error(),
			Timestamp: time.Now().UTC(),
		})
		return
	}

	c.JSON(http.StatusOK, processResponse{
		Success: true,
		Message: fmt.Sprintf("Processed %d bid emails", len(result.Bids)),
		RunID:   result.RunID,
		Counts: &runCounts{
			Fetched:   result.Fetched,
			Created:   len(result.Bids),
			Discarded: result.Discarded,
			Failed:    result.Failed,
		},
		Data:      result.Bids,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) healthCheck(c *gin.Context) {
	connected := s.health(c.Request.Context())
	state, status := "Connected", http.StatusOK
	if !connected {
		state, status = "Failed", http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"success":   connected,
		"imap":      state,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"data":      s.scheduler.Status(),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}
