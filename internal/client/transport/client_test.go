package transport

import (
	"bufio"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// startFakeServer accepts one connection and replies to each line it
// reads with the response scripted for that line, then closes.
func startFakeServer(t *testing.T, script map[string]string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = line[:len(line)-1]
			resp, ok := script[line]
			if !ok {
				resp = "ERR: unscripted"
			}
			if _, err := conn.Write([]byte(resp + "\n")); err != nil {
				return
			}
		}
	}()
	return ln.Addr().String()
}

func TestSend_SingleLineResponse(t *testing.T) {
	addr := startFakeServer(t, map[string]string{
		"/login alice secret": "OK: logged in SESSION: abc123",
	})
	c, err := Dial(addr, false)
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Send("/login alice secret")
	require.NoError(t, err)
	require.Equal(t, "OK: logged in SESSION: abc123", resp)
}

func TestSend_MultilineResponseJoinedAndSentinelStripped(t *testing.T) {
	addr := startFakeServer(t, map[string]string{
		"/get_group_messages xyz token abc": "OK: Messages:\n[10:00:00] a: hi\n[10:01:00] b: yo\n.",
	})
	c, err := Dial(addr, false)
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Send("/get_group_messages xyz token abc")
	require.NoError(t, err)
	require.Equal(t, "OK: Messages:\n[10:00:00] a: hi\n[10:01:00] b: yo", resp)
}

func TestSend_SkipsAsyncEventFrames(t *testing.T) {
	addr := startFakeServer(t, map[string]string{
		"/users": "EVENT: {\"message_type\":\"incoming_message\"}\nOK: alice,bob",
	})
	c, err := Dial(addr, false)
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Send("/users")
	require.NoError(t, err)
	require.Equal(t, "OK: alice,bob", resp)
}

func TestIsMultilineHeader(t *testing.T) {
	require.True(t, isMultilineHeader("OK: Messages:"))
	require.True(t, isMultilineHeader("OK: Private messages:"))
	require.False(t, isMultilineHeader("OK: registered"))
	require.False(t, isMultilineHeader("ERR: not found"))
}
