// Package transport implements the command-stream half of the client:
// dial the server, write one newline-framed command, and read back the
// one (or multiline) response the server promises per request.
package transport

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// Client is a single persistent connection to the command stream.
// Commands are synchronous: Send blocks until the matching response
// line(s) arrive.
type Client struct {
	conn net.Conn
	r    *bufio.Reader

	mu sync.Mutex
}

// Dial connects to addr. When tlsEnabled is true the connection is
// upgraded with a TLS client handshake.
func Dial(addr string, tlsEnabled bool) (*Client, error) {
	var conn net.Conn
	var err error
	if tlsEnabled {
		conn, err = tls.Dial("tcp", addr, &tls.Config{})
	} else {
		conn, err = net.DialTimeout("tcp", addr, 10*time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Send writes one command line and returns the response with the
// "OK: "/"ERR: " prefix intact. Multiline responses are joined with
// "\n" and have their trailing "." sentinel removed.
func (c *Client) Send(command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintln(c.conn, command); err != nil {
		return "", fmt.Errorf("transport: write: %w", err)
	}

	first, err := c.readLine()
	if err != nil {
		return "", fmt.Errorf("transport: read: %w", err)
	}

	if !isMultilineHeader(first) {
		return first, nil
	}

	var lines []string
	lines = append(lines, first)
	for {
		line, err := c.readLine()
		if err != nil {
			return "", fmt.Errorf("transport: read: %w", err)
		}
		if line == "." {
			break
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

// readLine reads one line, skipping any out-of-band "EVENT: " push
// frames delivered asynchronously by the presence registry — Send's
// synchronous request/response model has no slot for them, so a
// caller that wants live events should use a separate Client dedicated
// to listening, or the real-time transport instead.
func (c *Client) readLine() (string, error) {
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(line, "EVENT: ") {
			continue
		}
		return line, nil
	}
}

func isMultilineHeader(line string) bool {
	return strings.HasPrefix(line, "OK: Messages:") || strings.HasPrefix(line, "OK: Private messages:")
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
