package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relativeprotocol/peerbridge/boundary"
)

func runConsole(t *testing.T, script string) []string {
	t.Helper()
	var out bytes.Buffer
	c := &console{api: boundary.New(memNetwork), out: &out}
	require.NoError(t, c.run(strings.NewReader(script)))

	var lines []string
	for _, line := range strings.Split(out.String(), "\n") {
		for strings.HasPrefix(line, "> ") {
			line = strings.TrimPrefix(line, "> ")
		}
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestConsoleSession(t *testing.T) {
	lines := runConsole(t, strings.Join([]string{
		"initialize",
		"create_server 7100 4",
		"create_client",
		"host_connect 2 127.0.0.1 7100",
		"host_service 1",
		"get_event_type 1",
		`event_peer_send 1 "hello there" reliable`,
		"host_service 2",
		"host_service 2",
		"get_event_data 3",
		"quit",
		"create_client",
	}, "\n"))

	assert.Equal(t, []string{
		"0",           // initialize
		"1",           // server host
		"2",           // client host
		"1",           // client peer
		"1",           // server connect event
		"connect",     // its type
		"2",           // client connect event
		"3",           // client receive event
		"hello there", // payload
	}, lines)
}

func TestConsoleErrors(t *testing.T) {
	lines := runConsole(t, "launch\ncreate_server 7100\ncreate_server x 4\nget_event_type 1\n\"unterminated\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], `unknown call "launch"`)
	assert.Contains(t, lines[1], "want 2 arguments, got 1")
	assert.Contains(t, lines[2], `"x" is not an integer`)
	assert.Equal(t, "undefined", lines[3], "calls before initialize return sentinels")
	assert.Contains(t, lines[4], "error:")
}

func TestConsoleHelp(t *testing.T) {
	lines := runConsole(t, "help\n")
	assert.Contains(t, lines, "create_server <int> <int>")
	assert.Contains(t, lines, "peer_send_channel <int> <int> <string> <string>")
	assert.Len(t, lines, len(commands))
}
