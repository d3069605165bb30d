package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/linkpath"
	"github.com/soundprediction/linkpath/pkg/search"
	"github.com/soundprediction/linkpath/pkg/server/dto"
	"github.com/soundprediction/linkpath/pkg/types"
)

// NoPathMessage is reported when a search ends without a path.
const NoPathMessage = "No path found within maxDepth"

// ConnectionFinder is the part of linkpath.Client the handlers need.
type ConnectionFinder interface {
	FindConnection(ctx context.Context, req linkpath.Request) (*linkpath.Connection, error)
	DefaultMaxDepth() int
}

// usable returns finder, or nil when it is absent or a typed nil pointer
// such as a nil *linkpath.Client.
func usable(finder ConnectionFinder) ConnectionFinder {
	if finder == nil {
		return nil
	}
	if v := reflect.ValueOf(finder); v.Kind() == reflect.Pointer && v.IsNil() {
		return nil
	}
	return finder
}

// ConnectionHandler handles connection search requests
type ConnectionHandler struct {
	finder ConnectionFinder
	logger *slog.Logger
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(finder ConnectionFinder, logger *slog.Logger) *ConnectionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionHandler{
		finder: usable(finder),
		logger: logger,
	}
}

// FindConnection handles POST /find-connection
func (h *ConnectionHandler) FindConnection(c *gin.Context) {
	var req dto.ConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}
	if h.finder == nil {
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "not_ready", Message: "finder not initialized"})
		return
	}

	maxDepth := h.finder.DefaultMaxDepth()
	if req.MaxDepth != nil {
		maxDepth = *req.MaxDepth
	}

	conn, err := h.finder.FindConnection(c.Request.Context(), linkpath.Request{
		From:       req.From,
		To:         req.To,
		MaxDepth:   maxDepth,
		PeopleOnly: req.PeopleOnly,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	res := conn.Result
	elapsed := conn.Elapsed.Milliseconds()
	if res.Found {
		c.JSON(http.StatusOK, dto.ConnectionFound{
			Path:      res.Path,
			Steps:     res.Steps(),
			ElapsedMs: elapsed,
			Stats:     toStats(res.Stats),
		})
		return
	}
	c.JSON(http.StatusOK, dto.ConnectionMissing{
		Message:   NoPathMessage,
		Reason:    string(res.Reason),
		ElapsedMs: elapsed,
		Stats:     toStats(res.Stats),
	})
}

func (h *ConnectionHandler) writeError(c *gin.Context, err error) {
	var notFound *types.NotFoundError
	switch {
	case errors.Is(err, types.ErrConfiguration):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: fmt.Sprintf("Page not found: %s", notFound.Node)})
	case errors.Is(err, types.ErrRemoteFetch):
		h.logger.Warn("connection search failed upstream", "error", err)
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{Error: "upstream_error", Message: err.Error()})
	default:
		h.logger.Error("connection search failed", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error", Message: err.Error()})
	}
}

func toStats(s search.Stats) dto.Stats {
	return dto.Stats{
		NodesExplored: s.NodesExplored,
		RemoteCalls:   s.RemoteCalls,
		DepthReached:  s.DepthReached,
		FailedFetches: s.FailedFetches,
		FailedChunks:  s.FailedChunks,
		CacheHits:     s.CacheHits,
	}
}
