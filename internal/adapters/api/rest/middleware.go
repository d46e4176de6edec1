package rest

import (
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var errUnauthorize = errors.New("unauthorized")

func (s *Server) Authentication() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := s.checkAuth(c)
		if err != nil {
			s.log.Debug("unauthorized request", zap.String("uri", c.Request.RequestURI), zap.Error(err))
			c.Writer.WriteHeader(http.StatusUnauthorized)
			c.Abort()
			return
		}
		c.Set(ctxAccountID, id)
		c.Next()
	}
}

func (s *Server) AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.checkAdmin(c) {
			c.Writer.WriteHeader(http.StatusForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info(
			"Request",
			zap.String("uri", c.Request.RequestURI),
			zap.Duration("duration", time.Since(start)),
			zap.String("method", c.Request.Method),
			zap.Int("status", c.Writer.Status()),
			zap.Int("size", c.Writer.Size()),
		)
	}
}

func (s *Server) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.allow(accountID(c)) {
			c.Header("Retry-After", "1")
			c.Writer.WriteHeader(http.StatusTooManyRequests)
			c.Abort()
			return
		}
		c.Next()
	}
}

// limiter keeps one token bucket per account.
type limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

func newLimiter(limit rate.Limit, burst int) *limiter {
	return &limiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   limit,
		burst:   burst,
	}
}

func (l *limiter) allow(key string) bool {
	if l.limit == rate.Inf {
		return true
	}
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	l.mu.Unlock()
	return b.Allow()
}

type gzipWriter struct {
	gin.ResponseWriter
	writer *gzip.Writer
}

func (g *gzipWriter) Write(data []byte) (int, error) {
	return g.writer.Write(data)
}

func (g *gzipWriter) WriteString(data string) (int, error) {
	return g.writer.Write([]byte(data))
}

func (s *Server) GzipCompress() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}
		gz := gzip.NewWriter(c.Writer)
		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")
		c.Writer = &gzipWriter{ResponseWriter: c.Writer, writer: gz}
		defer func() {
			if c.Writer.Size() <= 0 {
				gz.Reset(io.Discard)
			}
			if err := gz.Close(); err != nil {
				s.log.Error("failed close gzip writer", zap.Error(err))
			}
		}()
		c.Next()
	}
}

func (s *Server) GzipDecompress() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Content-Encoding"), "gzip") {
			c.Next()
			return
		}
		gz, err := gzip.NewReader(c.Request.Body)
		if err != nil {
			s.log.Debug("failed read gzip body", zap.Error(err))
			c.Writer.WriteHeader(http.StatusBadRequest)
			c.Abort()
			return
		}
		defer func() {
			if err := gz.Close(); err != nil {
				s.log.Error("failed close gzip reader", zap.Error(err))
			}
		}()
		c.Request.Body = gz
		c.Next()
	}
}
