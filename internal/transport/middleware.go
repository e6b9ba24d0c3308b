package transport

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	apperrors "go-background-remover/internal/errors"
	"go-background-remover/internal/logger"
	"go-background-remover/internal/service"
)

const (
	requestIDKey      = "request_id"
	requestIDHeader   = "X-Request-ID"
	trackedRequestKey = "tracked_request"
)

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := ksuid.New().String()
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithRequest(c.GetString(requestIDKey), c.Request.Method, c.Request.URL.Path).
			WithFields(logrus.Fields{
				"status":     c.Writer.Status(),
				"latency_ms": time.Since(start).Milliseconds(),
				"ip":         c.ClientIP(),
				"bytes":      c.Writer.Size(),
				"user_agent": c.Request.UserAgent(),
			}).Info("HTTP request")
	}
}

// recoveryBoundary turns a panic anywhere below it into a 500. A tracked
// background removal request is moved to ERRORED so it leaves the in-flight
// count.
func recoveryBoundary() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.WithFields(logrus.Fields{
					"request_id": c.GetString(requestIDKey),
					"panic":      rec,
					"stack":      string(debug.Stack()),
				}).Error("Unhandled panic")

				appErr := apperrors.NewInternalError("An unexpected error occurred", fmt.Errorf("panic: %v", rec))
				if req, ok := c.Get(trackedRequestKey); ok {
					if tracked, ok := req.(*service.Request); ok {
						appErr = tracked.Fail(appErr)
					}
				}

				if c.Writer.Written() {
					c.Abort()
					return
				}
				respondError(c, appErr)
			}
		}()
		c.Next()
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// workerLimiter bounds concurrent requests on a route. A request waits up to
// timeout for a slot, then gets 503.
func workerLimiter(workers int64, timeout time.Duration) gin.HandlerFunc {
	sem := semaphore.NewWeighted(workers)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		if err := sem.Acquire(ctx, 1); err != nil {
			respondUntracked(c, apperrors.NewServiceUnavailableError(
				"Server busy", "All workers are busy. Please try again later.", err))
			return
		}
		defer sem.Release(1)

		c.Next()
	}
}
