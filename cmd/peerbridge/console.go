package main

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"github.com/relativeprotocol/peerbridge/boundary"
	"github.com/relativeprotocol/peerbridge/bridge"
	"github.com/relativeprotocol/peerbridge/log"
	"github.com/relativeprotocol/peerbridge/transport"
	"github.com/relativeprotocol/peerbridge/transport/quicnet"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Drive the boundary API interactively",
	Long: `Reads one call per line, e.g.

  create_server 9000 4
  host_service 1
  get_event_type 1
  event_peer_send 1 "hello there" reliable

Results print as returned by the call: IDs, strings or sentinels.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgFile)
		if err != nil {
			return err
		}
		logger, err := log.New(cfg.LogLevel)
		if err != nil {
			return err
		}
		log.SetLogger(logger)
		defer func() { _ = logger.Sync() }()

		api := boundary.New(func(cfg *bridge.Config) (transport.Network, error) {
			return quicnet.New(quicnet.WithHandshakeTimeout(cfg.ConnectTimeout))
		})
		if err := api.Configure(cfg); err != nil {
			return err
		}
		c := &console{api: api, out: cmd.OutOrStdout()}
		return c.run(cmd.InOrStdin())
	},
}

func loadConfig(path string) (*bridge.Config, error) {
	if path == "" {
		return bridge.DefaultConfig(), nil
	}
	return bridge.Load(path)
}

// params holds the arguments of one call, already converted per signature.
type params []any

func (p params) i(n int) int    { return p[n].(int) }
func (p params) s(n int) string { return p[n].(string) }

type command struct {
	// sig has one letter per argument: i for int, s for string.
	sig string
	run func(a *boundary.API, p params) any
}

var commands = map[string]command{
	"initialize":   {"", func(a *boundary.API, p params) any { return a.Initialize() }},
	"deinitialize": {"", func(a *boundary.API, p params) any { a.Deinitialize(); return nil }},

	"create_server": {"ii", func(a *boundary.API, p params) any { return a.CreateServer(p.i(0), p.i(1)) }},
	"create_server_with_channels": {"iii", func(a *boundary.API, p params) any {
		return a.CreateServerWithChannels(p.i(0), p.i(1), p.i(2))
	}},
	"create_client":               {"", func(a *boundary.API, p params) any { return a.CreateClient() }},
	"create_client_with_channels": {"i", func(a *boundary.API, p params) any { return a.CreateClientWithChannels(p.i(0)) }},
	"destroy_host":                {"i", func(a *boundary.API, p params) any { a.DestroyHost(p.i(0)); return nil }},
	"host_service":                {"i", func(a *boundary.API, p params) any { return a.HostService(p.i(0)) }},
	"host_flush":                  {"i", func(a *boundary.API, p params) any { a.HostFlush(p.i(0)); return nil }},
	"host_broadcast": {"iss", func(a *boundary.API, p params) any {
		a.HostBroadcast(p.i(0), p.s(1), p.s(2))
		return nil
	}},
	"get_host_address": {"i", func(a *boundary.API, p params) any { return a.GetHostAddress(p.i(0)) }},
	"get_host_port":    {"i", func(a *boundary.API, p params) any { return a.GetHostPort(p.i(0)) }},
	"set_host_compress_with_range_coder": {"i", func(a *boundary.API, p params) any {
		return a.SetHostCompressWithRangeCoder(p.i(0))
	}},

	"host_connect": {"isi", func(a *boundary.API, p params) any { return a.HostConnect(p.i(0), p.s(1), p.i(2)) }},
	"host_connect_async": {"isi", func(a *boundary.API, p params) any {
		return a.HostConnectAsync(p.i(0), p.s(1), p.i(2))
	}},
	"host_connect_async_poll":    {"", func(a *boundary.API, p params) any { return a.HostConnectAsyncPoll() }},
	"host_connect_async_peer_id": {"", func(a *boundary.API, p params) any { return a.HostConnectAsyncPeerID() }},
	"poll_connect":               {"i", func(a *boundary.API, p params) any { return a.PollConnect(p.i(0)) }},
	"take_connect_peer":          {"i", func(a *boundary.API, p params) any { return a.TakeConnectPeer(p.i(0)) }},

	"get_event_type":              {"i", func(a *boundary.API, p params) any { return a.GetEventType(p.i(0)) }},
	"get_event_data":              {"i", func(a *boundary.API, p params) any { return a.GetEventData(p.i(0)) }},
	"get_event_peer_address_host": {"i", func(a *boundary.API, p params) any { return a.GetEventPeerAddressHost(p.i(0)) }},
	"get_event_peer_address_port": {"i", func(a *boundary.API, p params) any { return a.GetEventPeerAddressPort(p.i(0)) }},
	"get_event_peer_id":           {"i", func(a *boundary.API, p params) any { return a.GetEventPeerID(p.i(0)) }},
	"get_event_channel":           {"i", func(a *boundary.API, p params) any { return a.GetEventChannel(p.i(0)) }},
	"get_event_sequence":          {"i", func(a *boundary.API, p params) any { return a.GetEventSequence(p.i(0)) }},
	"event_peer_send": {"iss", func(a *boundary.API, p params) any {
		a.EventPeerSend(p.i(0), p.s(1), p.s(2))
		return nil
	}},

	"peer_send": {"iss", func(a *boundary.API, p params) any { a.PeerSend(p.i(0), p.s(1), p.s(2)); return nil }},
	"peer_send_channel": {"iiss", func(a *boundary.API, p params) any {
		a.PeerSendChannel(p.i(0), p.i(1), p.s(2), p.s(3))
		return nil
	}},
	"peer_disconnect":       {"i", func(a *boundary.API, p params) any { a.PeerDisconnect(p.i(0)); return nil }},
	"peer_reset":            {"i", func(a *boundary.API, p params) any { a.PeerReset(p.i(0)); return nil }},
	"get_peer_address_host": {"i", func(a *boundary.API, p params) any { return a.GetPeerAddressHost(p.i(0)) }},
	"get_peer_address_port": {"i", func(a *boundary.API, p params) any { return a.GetPeerAddressPort(p.i(0)) }},
}

type console struct {
	api *boundary.API
	out io.Writer
}

// run executes lines from in until EOF or "quit". The API is deinitialized
// on the way out.
func (c *console) run(in io.Reader) error {
	defer c.api.Deinitialize()

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}
		if !c.exec(scanner.Text()) {
			return nil
		}
	}
}

// exec runs one line and reports whether the console should keep going.
func (c *console) exec(line string) bool {
	words, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintln(c.out, "error:", err)
		return true
	}
	if len(words) == 0 {
		return true
	}

	name, argv := strings.ToLower(words[0]), words[1:]
	switch name {
	case "quit", "exit":
		return false
	case "help":
		c.help()
		return true
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(c.out, "error: unknown call %q, try help\n", name)
		return true
	}
	p, err := convert(cmd.sig, argv)
	if err != nil {
		fmt.Fprintf(c.out, "error: %s: %v\n", name, err)
		return true
	}
	if result := cmd.run(c.api, p); result != nil {
		fmt.Fprintln(c.out, result)
	}
	return true
}

func (c *console) help() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(c.out, "  %s%s\n", name, usage(commands[name].sig))
	}
}

func usage(sig string) string {
	var sb strings.Builder
	for _, kind := range sig {
		if kind == 'i' {
			sb.WriteString(" <int>")
		} else {
			sb.WriteString(" <string>")
		}
	}
	return sb.String()
}

func convert(sig string, argv []string) (params, error) {
	if len(argv) != len(sig) {
		return nil, fmt.Errorf("want %d arguments, got %d", len(sig), len(argv))
	}
	p := make(params, len(sig))
	for i, kind := range sig {
		if kind == 's' {
			p[i] = argv[i]
			continue
		}
		n, err := strconv.Atoi(argv[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %q is not an integer", i+1, argv[i])
		}
		p[i] = n
	}
	return p, nil
}
