// Package ws carries binary sync frames over websockets and fans them out to
// the peers of a project.
package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
)

// ErrClosed is returned by an in-memory Conn after either side closed it.
var ErrClosed = errors.New("connection closed")

// Conn is one duplex stream of binary messages. Write and Close may be called
// concurrently with Read; Read must only be called from one goroutine.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(reason string) error
}

type socket struct {
	c *websocket.Conn
}

// Wrap adapts a websocket connection.
func Wrap(c *websocket.Conn) Conn {
	return socket{c: c}
}

func (s socket) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := s.c.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ == websocket.MessageBinary {
			return data, nil
		}
	}
}

func (s socket) Write(ctx context.Context, data []byte) error {
	return s.c.Write(ctx, websocket.MessageBinary, data)
}

func (s socket) Close(reason string) error {
	return s.c.Close(websocket.StatusNormalClosure, reason)
}

// Accept upgrades an HTTP request. origins lists allowed Origin host patterns;
// "*" disables the check.
func Accept(w http.ResponseWriter, r *http.Request, origins []string, readLimit int64) (Conn, error) {
	opts := &websocket.AcceptOptions{}
	for _, o := range origins {
		if o == "*" {
			opts.InsecureSkipVerify = true
			break
		}
	}
	if !opts.InsecureSkipVerify {
		opts.OriginPatterns = origins
	}
	c, err := websocket.Accept(w, r, opts)
	if err != nil {
		return nil, err
	}
	if readLimit > 0 {
		c.SetReadLimit(readLimit)
	}
	return Wrap(c), nil
}

// Dial connects to a websocket URL.
func Dial(ctx context.Context, url string, readLimit int64) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if readLimit > 0 {
		c.SetReadLimit(readLimit)
	}
	return Wrap(c), nil
}
