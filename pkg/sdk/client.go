// Package sdk provides the client-side library for the activity store.
// It supports both remote connections via TCP/TLS and local embedded mode.
package sdk

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-activity/pkg/schema"
)

// Client is a remote client for the activity daemon.
// It implements the ActivityLog interface.
type Client struct {
	addr   string
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex // Protects concurrent access to the connection
}

// Connect establishes a TLS-encrypted connection to a remote activity daemon.
// If ACTIVITY_DISABLE_TLS is set to "true", it falls back to plain TCP.
func Connect(addr string) (*Client, error) {
	c := &Client{addr: addr}
	if err := c.reconnect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) reconnect() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	var conn net.Conn
	var err error

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 60 * time.Second,
	}

	if os.Getenv("ACTIVITY_DISABLE_TLS") == "true" {
		conn, err = dialer.Dial("tcp", c.addr)
	} else {
		config := &tls.Config{
			InsecureSkipVerify: true, // We use self-signed certs for internal traffic
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", c.addr, config)
	}

	if err != nil {
		return err
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// remoteError maps an "ERR <reason>" payload back to the matching sentinel.
func remoteError(reason string) error {
	tag, detail, _ := strings.Cut(reason, " ")
	switch tag {
	case "actor_mismatch":
		return ErrActorMismatch
	case "event_exists":
		return ErrEventExists
	case "not_found":
		return ErrNotFound
	case "storage_error":
		return ErrStorage
	case "invalid_filter":
		return ErrInvalidFilter
	case "invalid_request":
		return ErrInvalidRequest
	case "canceled":
		return context.Canceled
	case "timeout":
		return context.DeadlineExceeded
	case "invalid_payload":
		return &schema.ValidationError{Problems: strings.Split(detail, ",")}
	}
	return fmt.Errorf("%w: %s", ErrProtocol, reason)
}

// Internal helper for TCP communication. Connection failures are retried;
// replies starting with ERR are returned without retrying.
func (c *Client) sendAndReceive(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	var resp string

	// Try up to 3 times with exponential backoff
	for i := 0; i < 3; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		// Ensure we have a connection
		if c.conn == nil {
			if reconnectErr := c.reconnect(); reconnectErr != nil {
				err = fmt.Errorf("reconnect failed: %w", reconnectErr)
				time.Sleep(time.Duration(i*100) * time.Millisecond)
				continue
			}
		}

		deadline := time.Now().Add(30 * time.Second)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		c.conn.SetDeadline(deadline)

		_, err = fmt.Fprint(c.conn, cmd+"\n")
		if err == nil {
			resp, err = c.reader.ReadString('\n')
			if err == nil {
				resp = strings.TrimSpace(resp)
				if rest, ok := strings.CutPrefix(resp, "ERR "); ok {
					return "", remoteError(rest)
				}
				return resp, nil
			}
		}

		slog.Warn("activity sdk: request failed, reconnecting", "attempt", i+1, "err", err)

		// Force a reconnect on the next iteration
		if closeErr := c.reconnect(); closeErr != nil {
			slog.Warn("activity sdk: reconnect failed", "err", closeErr)
		}

		// Wait before retrying (exponential backoff)
		time.Sleep(time.Duration((i+1)*200) * time.Millisecond)
	}

	return "", fmt.Errorf("failed after 3 attempts. last error: %v", err)
}

// word rejects arguments that would break the line protocol.
func word(name, v string) error {
	if v == "" || strings.ContainsAny(v, " \t\r\n") {
		return fmt.Errorf("%s %q must be a non-empty single word", name, v)
	}
	return nil
}

func decodeOK(resp string, target any) error {
	payload, ok := strings.CutPrefix(resp, "OK ")
	if !ok {
		return fmt.Errorf("%w: unexpected reply %q", ErrProtocol, resp)
	}
	return json.Unmarshal([]byte(payload), target)
}

func (c *Client) Append(ctx context.Context, actor string, ev schema.EventRecord) error {
	if err := word("actor", actor); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = c.sendAndReceive(ctx, fmt.Sprintf("APPEND %s %s", actor, data))
	return err
}

func (c *Client) UpdateStatus(ctx context.Context, actor, id string, status schema.Status, tx *schema.TxUpdate) (schema.EventRecord, error) {
	var ev schema.EventRecord
	if err := errors.Join(word("actor", actor), word("id", id), word("status", string(status))); err != nil {
		return ev, err
	}
	cmd := fmt.Sprintf("STATUS %s %s %s", actor, id, status)
	if tx != nil {
		data, err := json.Marshal(tx)
		if err != nil {
			return ev, err
		}
		cmd += " " + string(data)
	}
	resp, err := c.sendAndReceive(ctx, cmd)
	if err != nil {
		return ev, err
	}
	err = decodeOK(resp, &ev)
	return ev, err
}

func (c *Client) List(ctx context.Context, actor string, opts ListOptions) (Page, error) {
	var page Page
	if err := word("actor", actor); err != nil {
		return page, err
	}
	limit := "-"
	if opts.Limit != nil {
		limit = strconv.Itoa(*opts.Limit)
	}
	resp, err := c.sendAndReceive(ctx, fmt.Sprintf("EVENTS %s %s %d", actor, limit, opts.Cursor))
	if err != nil {
		return page, err
	}
	err = decodeOK(resp, &page)
	return page, err
}

func (c *Client) Get(ctx context.Context, actor, id string) (*schema.EventRecord, error) {
	if err := errors.Join(word("actor", actor), word("id", id)); err != nil {
		return nil, err
	}
	resp, err := c.sendAndReceive(ctx, fmt.Sprintf("EVENT %s %s", actor, id))
	if err != nil {
		return nil, err
	}
	var out struct {
		Event *schema.EventRecord `json:"event"`
	}
	err = decodeOK(resp, &out)
	return out.Event, err
}

func (c *Client) Filter(ctx context.Context, actor, expr string, limit int) ([]schema.EventRecord, error) {
	if err := word("actor", actor); err != nil {
		return nil, err
	}
	if strings.ContainsAny(expr, "\r\n") {
		return nil, fmt.Errorf("filter expression must be a single line")
	}
	resp, err := c.sendAndReceive(ctx, fmt.Sprintf("SEARCH %s %d %s", actor, limit, expr))
	if err != nil {
		return nil, err
	}
	var items []schema.EventRecord
	err = decodeOK(resp, &items)
	return items, err
}

func (c *Client) Retention(ctx context.Context) (int, error) {
	resp, err := c.sendAndReceive(ctx, "RETENTION")
	if err != nil {
		return 0, err
	}
	payload, ok := strings.CutPrefix(resp, "OK ")
	if !ok {
		return 0, fmt.Errorf("%w: unexpected reply %q", ErrProtocol, resp)
	}
	return strconv.Atoi(payload)
}

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.sendAndReceive(ctx, "PING")
	if err != nil {
		return err
	}
	if resp != "PONG" {
		return fmt.Errorf("%w: unexpected reply %q", ErrProtocol, resp)
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	fmt.Fprintln(c.conn, "QUIT")
	err := c.conn.Close()
	c.conn = nil
	return err
}
