// Package server serves the activity log over a line-oriented TCP protocol.
//
// Each request is one line; each reply is one line: "OK", "OK <json>",
// "PONG" or "ERR <reason>".
package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-activity/internal/engine"
	"github.com/celerix-dev/celerix-activity/pkg/schema"
)

// maxLineBytes bounds a single request line.
const maxLineBytes = 1 << 20

type Router struct {
	store     *engine.Store
	validator *schema.Validator
	cert      *tls.Certificate
	log       *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

func NewRouter(s *engine.Store, v *schema.Validator) *Router {
	return &Router{store: s, validator: v, log: slog.Default().With("component", "tcp")}
}

// SetCertificate sets the TLS certificate for the router
func (r *Router) SetCertificate(cert tls.Certificate) {
	r.cert = &cert
}

// Addr returns the bound listener address, or nil before Listen has bound.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Listen starts the TCP server and blocks until Stop is called.
func (r *Router) Listen(port string) error {
	var listener net.Listener
	var err error

	if r.cert != nil {
		config := &tls.Config{Certificates: []tls.Certificate{*r.cert}}
		listener, err = tls.Listen("tcp", ":"+port, config)
	} else {
		listener, err = net.Listen("tcp", ":"+port)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		listener.Close()
		return nil
	}
	r.listener = listener
	r.mu.Unlock()

	semaphore := make(chan struct{}, 100) // Max 100 concurrent connections

	for {
		conn, err := listener.Accept()
		if err != nil {
			if r.isClosed() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			r.log.Warn("accept failed", "err", err)
			continue
		}

		// Set aggressive timeouts for light traffic to prevent resource exhaustion
		conn.SetDeadline(time.Now().Add(5 * time.Minute))

		go func(c net.Conn) {
			semaphore <- struct{}{}
			defer func() {
				<-semaphore
				c.Close()
			}()
			r.handleConnection(c)
		}(conn)
	}
}

// Stop closes the listener; Listen then returns nil.
func (r *Router) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.listener == nil {
		return nil
	}
	return r.listener.Close()
}

func (r *Router) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Router) handleConnection(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for {
		// Set a deadline for the next command
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		if !scanner.Scan() {
			if err := scanner.Err(); errors.Is(err, bufio.ErrTooLong) {
				fmt.Fprintln(conn, "ERR line_too_long")
			}
			return // Connection closed or timeout
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !r.dispatch(context.Background(), conn, line) {
			return
		}
	}
}

// dispatch runs one command line and writes its reply. It returns false when
// the connection should close.
func (r *Router) dispatch(ctx context.Context, w io.Writer, line string) bool {
	command, rest := cut(line)
	command = strings.ToUpper(command)

	switch command {
	case "APPEND":
		// APPEND <actor> <event json>
		actor, raw := cut(rest)
		if actor == "" || raw == "" {
			usage(w, command)
			return true
		}
		ev, err := r.validator.DecodeEvent([]byte(raw))
		if err != nil {
			r.replyErr(w, err)
			return true
		}
		r.reply(w, r.store.Execute(ctx, engine.AppendEvent{Actor: actor, Event: ev}))

	case "STATUS":
		// STATUS <actor> <id> <status> [<tx json>]
		actor, rest := cut(rest)
		id, rest := cut(rest)
		status, txRaw := cut(rest)
		if actor == "" || id == "" || status == "" {
			usage(w, command)
			return true
		}
		body := map[string]any{"actor": actor, "id": id, "status": status}
		if txRaw != "" {
			body["tx"] = json.RawMessage(txRaw)
		}
		raw, err := json.Marshal(body)
		if err != nil {
			fmt.Fprintln(w, "ERR invalid_json")
			return true
		}
		u, err := r.validator.DecodeStatusUpdate(raw)
		if err != nil {
			r.replyErr(w, err)
			return true
		}
		r.reply(w, r.store.Execute(ctx, engine.UpdateEventStatus{
			Actor:  u.Actor,
			ID:     u.ID,
			Status: u.Status,
			Tx:     u.Tx,
		}))

	case "EVENTS":
		// EVENTS <actor> [limit|-] [cursor]
		parts := strings.Fields(rest)
		if len(parts) < 1 || len(parts) > 3 {
			usage(w, command)
			return true
		}
		q := engine.GetEvents{Actor: parts[0]}
		if len(parts) > 1 && parts[1] != "-" {
			n, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Fprintln(w, "ERR invalid_limit")
				return true
			}
			q.Limit = &n
		}
		if len(parts) > 2 {
			n, err := strconv.ParseUint(parts[2], 10, 64)
			if err != nil {
				fmt.Fprintln(w, "ERR invalid_cursor")
				return true
			}
			q.Cursor = &n
		}
		r.query(ctx, w, q)

	case "EVENT":
		// EVENT <actor> <id>
		parts := strings.Fields(rest)
		if len(parts) != 2 {
			usage(w, command)
			return true
		}
		r.query(ctx, w, engine.GetEvent{Actor: parts[0], ID: parts[1]})

	case "SEARCH":
		// SEARCH <actor> <limit> <expr...>
		actor, rest := cut(rest)
		limitRaw, expr := cut(rest)
		if actor == "" || limitRaw == "" {
			usage(w, command)
			return true
		}
		limit, err := strconv.Atoi(limitRaw)
		if err != nil {
			fmt.Fprintln(w, "ERR invalid_limit")
			return true
		}
		items, err := r.store.FilterEvents(ctx, actor, expr, limit)
		if err != nil {
			r.replyErr(w, err)
			return true
		}
		replyJSON(w, items)

	case "RETENTION":
		n, err := r.store.Retention(ctx)
		if err != nil {
			r.replyErr(w, err)
			return true
		}
		fmt.Fprintln(w, "OK", n)

	case "PING":
		fmt.Fprintln(w, "PONG")

	case "QUIT":
		return false

	default:
		fmt.Fprintln(w, "ERR unknown_command")
	}
	return true
}

// cut splits s at the first run of spaces.
func cut(s string) (head, tail string) {
	head, tail, _ = strings.Cut(strings.TrimSpace(s), " ")
	return head, strings.TrimSpace(tail)
}

func usage(w io.Writer, command string) {
	fmt.Fprintln(w, "ERR usage", strings.ToLower(command))
}

func (r *Router) replyErr(w io.Writer, err error) {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintln(w, "ERR invalid_payload", strings.Join(verr.Problems, ","))
		return
	}
	if engine.Reason(err) == "storage_error" {
		r.log.Error("command failed", "err", err)
	}
	fmt.Fprintln(w, "ERR", engine.Reason(err))
}

// reply writes an operation outcome: OK, OK <event> for a status update, or
// ERR <reason>.
func (r *Router) reply(w io.Writer, resp engine.Response) {
	switch {
	case !resp.OK:
		if resp.Error == "storage_error" {
			r.log.Error("command failed", "err", resp.Err())
		}
		fmt.Fprintln(w, "ERR", resp.Error)
	case resp.Event != nil:
		replyJSON(w, resp.Event)
	default:
		fmt.Fprintln(w, "OK")
	}
}

func (r *Router) query(ctx context.Context, w io.Writer, q engine.Query) {
	res, err := r.store.Query(ctx, q)
	if err != nil {
		r.replyErr(w, err)
		return
	}
	replyJSON(w, res)
}

func replyJSON(w io.Writer, v any) {
	res, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintln(w, "ERR internal error")
		return
	}
	fmt.Fprintln(w, "OK", string(res))
}
