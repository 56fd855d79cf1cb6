// Package api exposes the activity log over HTTP with gin.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/celerix-dev/celerix-activity/internal/engine"
	"github.com/celerix-dev/celerix-activity/pkg/schema"
	"github.com/gin-gonic/gin"
)

// maxBodyBytes caps request bodies; a full event is a few KiB.
const maxBodyBytes = 1 << 20

// statusClientClosedRequest reports a request abandoned by its client.
const statusClientClosedRequest = 499

type Handler struct {
	Store     *engine.Store
	Validator *schema.Validator
}

// NewRouter builds a gin engine with recovery, request logging and every route.
func NewRouter(h *Handler, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))
	h.Register(r)
	return r
}

// Register attaches the activity routes to r.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/event", h.AppendEvent)
	r.POST("/event/status", h.UpdateStatus)
	r.GET("/events", h.ListEvents)
	r.GET("/events/search", h.SearchEvents)
	r.GET("/event", h.GetEvent)
	r.GET("/healthz", h.Health)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "not_found"})
	})
}

// RequestLogger logs one line per request at info, or warn for 5xx.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
		)
	}
}

func statusFor(reason string) int {
	switch reason {
	case "event_exists":
		return http.StatusConflict
	case "not_found":
		return http.StatusNotFound
	case "actor_mismatch":
		return http.StatusUnprocessableEntity
	case "invalid_filter", "invalid_request":
		return http.StatusBadRequest
	case "canceled":
		return statusClientClosedRequest
	case "timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": verr.Problems})
		return
	}
	reason := engine.Reason(err)
	status := statusFor(reason)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", c.Request.URL.Path, "err", err)
	}
	c.JSON(status, gin.H{"ok": false, "error": reason})
}

// respond writes an engine.Response with the status matching its outcome.
func respond(c *gin.Context, resp engine.Response) {
	if resp.OK {
		c.JSON(http.StatusOK, resp)
		return
	}
	status := statusFor(resp.Error)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", c.Request.URL.Path, "err", resp.Err())
	}
	c.JSON(status, resp)
}

// query runs q and writes its result as the response body.
func (h *Handler) query(c *gin.Context, q engine.Query) {
	res, err := h.Store.Query(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func badParam(c *gin.Context, name string) {
	c.JSON(http.StatusBadRequest, gin.H{"ok": false, "errors": []string{name}})
}

func readBody(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"ok": false, "error": "body_too_large"})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "unreadable_body"})
		}
		return nil, false
	}
	return body, true
}

func (h *Handler) AppendEvent(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	ev, err := h.Validator.DecodeEvent(body)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, h.Store.Execute(c.Request.Context(), engine.AppendEvent{Actor: ev.Actor, Event: ev}))
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	u, err := h.Validator.DecodeStatusUpdate(body)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, h.Store.Execute(c.Request.Context(), engine.UpdateEventStatus{
		Actor:  u.Actor,
		ID:     u.ID,
		Status: u.Status,
		Tx:     u.Tx,
	}))
}

func (h *Handler) ListEvents(c *gin.Context) {
	actor := c.Query("actor")
	if actor == "" {
		badParam(c, "actor")
		return
	}
	q := engine.GetEvents{Actor: actor}
	if raw, ok := c.GetQuery("limit"); ok && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badParam(c, "limit")
			return
		}
		q.Limit = &n
	}
	if raw := c.Query("cursor"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			badParam(c, "cursor")
			return
		}
		q.Cursor = &n
	}
	h.query(c, q)
}

func (h *Handler) GetEvent(c *gin.Context) {
	actor, id := c.Query("actor"), c.Query("id")
	if actor == "" {
		badParam(c, "actor")
		return
	}
	if id == "" {
		badParam(c, "id")
		return
	}
	h.query(c, engine.GetEvent{Actor: actor, ID: id})
}

// SearchEvents filters an actor's log with a CEL expression. Without a limit
// every match is returned.
func (h *Handler) SearchEvents(c *gin.Context) {
	actor := c.Query("actor")
	if actor == "" {
		badParam(c, "actor")
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badParam(c, "limit")
			return
		}
		limit = n
	}
	items, err := h.Store.FilterEvents(c.Request.Context(), actor, c.Query("filter"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) Health(c *gin.Context) {
	n, err := h.Store.Retention(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "retention": n})
}
