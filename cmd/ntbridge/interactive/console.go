// Package interactive provides the interactive command-line interface
// for ntbridge.
package interactive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"

	"github.com/ntbridge/ntbridge-go/pkg/bridge"
	"github.com/ntbridge/ntbridge-go/pkg/discovery"
	"github.com/ntbridge/ntbridge-go/pkg/protocol"
	"github.com/ntbridge/ntbridge-go/pkg/session"
	"github.com/ntbridge/ntbridge-go/pkg/transport"
	"github.com/ntbridge/ntbridge-go/pkg/version"
)

// Console runs console commands through the same command surface as the
// WebSocket bridge.
type Console struct {
	commands *bridge.Commands
	status   func() session.Status
	browser  discovery.Browser
	rl       *readline.Instance
	out      io.Writer

	// watch prints topic updates as they arrive.
	watch atomic.Bool
}

// New creates a console reading from the terminal. browser may be nil to
// disable the discover command. Bind must be called before Run.
func New(browser discovery.Browser) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ntbridge> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	c := newConsole(nil, nil, browser, rl.Stdout())
	c.rl = rl
	return c, nil
}

// Bind attaches the session the console drives. The console is created
// first so that logging and the session's event sink can use it.
func (c *Console) Bind(commands *bridge.Commands, status func() session.Status) {
	c.commands = commands
	c.status = status
}

func newConsole(commands *bridge.Commands, status func() session.Status, browser discovery.Browser, out io.Writer) *Console {
	c := &Console{
		commands: commands,
		status:   status,
		browser:  browser,
		out:      out,
	}
	c.watch.Store(true)
	return c
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// Emit prints session events. It implements session.EventSink.
func (c *Console) Emit(event string, payload any) error {
	switch p := payload.(type) {
	case bool:
		if event == session.EventConnected {
			if p {
				fmt.Fprintln(c.out, "[EVENT] Connected")
			} else {
				fmt.Fprintln(c.out, "[EVENT] Connection lost")
			}
			return nil
		}
	case protocol.Message:
		if !c.watch.Load() {
			return nil
		}
		if p.Timestamp == 0 {
			fmt.Fprintf(c.out, "[WRITE] %s = %s (%s)\n", p.TopicName, p.Value, p.Type)
		} else {
			fmt.Fprintf(c.out, "[VALUE] %s = %s (%s)\n", p.TopicName, p.Value, p.Type)
		}
		return nil
	}
	fmt.Fprintf(c.out, "[EVENT] %s: %v\n", event, payload)
	return nil
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if !c.Exec(ctx, line) {
			cancel()
			return
		}
	}
}

// Exec runs one command line. It returns false when the console should exit.
func (c *Console) Exec(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "connect", "c":
		c.cmdConnect(ctx, args)

	case "sub", "subscribe":
		c.cmdSubscribe(ctx, args)

	case "unsub", "unsubscribe":
		c.cmdUnsubscribe(ctx, args)

	case "write", "w":
		c.cmdWrite(ctx, args)

	case "status":
		c.cmdStatus()

	case "discover", "d":
		c.cmdDiscover(ctx, args)

	case "watch":
		c.cmdWatch(args)

	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return false

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
ntbridge Commands:
  Connection:
    connect <host[:port]>  - Connect to a server (default port `+strconv.Itoa(transport.DefaultPort)+`)
    discover [seconds]     - Browse for servers on the local network
    status                 - Show session status

  Topics:
    sub <topic>            - Subscribe to a topic
    unsub <topic>          - Drop one subscription to a topic
    write <topic> <value>  - Write a value (number, true/false, or text)
    watch on|off           - Print topic updates as they arrive

  General:
    help                   - Show this help
    quit                   - Exit ntbridge`)
}

func (c *Console) execute(ctx context.Context, req bridge.Request) bool {
	resp := c.commands.Execute(ctx, req)
	if resp.Error != nil {
		fmt.Fprintf(c.out, "Error: %s\n", *resp.Error)
		return false
	}
	return true
}

func (c *Console) cmdConnect(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: connect <host[:port]>")
		return
	}
	addr := transport.WithDefaultPort(args[0])
	fmt.Fprintf(c.out, "Connecting to %s...\n", addr)
	if c.execute(ctx, bridge.Request{Command: bridge.CommandStartClient, IP: addr}) {
		fmt.Fprintf(c.out, "Connected to %s\n", addr)
	}
}

func (c *Console) cmdSubscribe(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: sub <topic>")
		return
	}
	if c.execute(ctx, bridge.Request{Command: bridge.CommandSubscribe, Topic: args[0]}) {
		fmt.Fprintf(c.out, "Subscribed to %s\n", args[0])
	}
}

func (c *Console) cmdUnsubscribe(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: unsub <topic>")
		return
	}
	if c.execute(ctx, bridge.Request{Command: bridge.CommandUnsubscribe, Topic: args[0]}) {
		fmt.Fprintf(c.out, "Unsubscribed from %s\n", args[0])
	}
}

func (c *Console) cmdWrite(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: write <topic> <value>")
		return
	}
	raw := parseValue(strings.Join(args[1:], " "))
	if c.execute(ctx, bridge.Request{Command: bridge.CommandWrite, Topic: args[0], Value: raw}) {
		fmt.Fprintf(c.out, "Wrote %s = %s\n", args[0], raw)
	}
}

// parseValue renders console input as JSON. Finite numbers are re-encoded
// in canonical JSON form and booleans keep their type; anything else,
// including NaN and Inf, is sent as a string.
func parseValue(s string) json.RawMessage {
	if s == "true" || s == "false" {
		return json.RawMessage(s)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		data, _ := json.Marshal(f)
		return data
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	data, _ := json.Marshal(s)
	return data
}

func (c *Console) cmdStatus() {
	st := c.status()

	fmt.Fprintln(c.out, "Session Status:")
	fmt.Fprintf(c.out, "  State:          %s\n", st.State)
	if st.Address != "" {
		fmt.Fprintf(c.out, "  Server:         %s\n", st.Address)
		fmt.Fprintf(c.out, "  Connection:     %s\n", st.ConnectionID)
		fmt.Fprintf(c.out, "  Connected for:  %s\n", time.Since(st.Since).Round(time.Second))
		fmt.Fprintf(c.out, "  Router:         %s\n", st.Router)
	}
	fmt.Fprintf(c.out, "  Publishers:     %d\n", st.Publishers)
	fmt.Fprintf(c.out, "  Pending writes: %d\n", st.PendingWrites)
	if len(st.Subscriptions) == 0 {
		fmt.Fprintln(c.out, "  Subscriptions:  (none)")
		return
	}
	fmt.Fprintln(c.out, "  Subscriptions:")
	for _, topic := range st.Subscriptions {
		fmt.Fprintf(c.out, "    %s\n", topic)
	}
}

func (c *Console) cmdDiscover(ctx context.Context, args []string) {
	if c.browser == nil {
		fmt.Fprintln(c.out, "Discovery is not available")
		return
	}

	timeout := discovery.BrowseTimeout
	if len(args) > 0 {
		secs, err := strconv.Atoi(args[0])
		if err != nil || secs <= 0 {
			fmt.Fprintln(c.out, "Usage: discover [seconds]")
			return
		}
		timeout = time.Duration(secs) * time.Second
	}

	fmt.Fprintf(c.out, "Browsing for %s...\n", timeout)
	services, err := discovery.Lookup(ctx, c.browser, timeout)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if len(services) == 0 {
		fmt.Fprintln(c.out, "No servers found")
		return
	}

	fmt.Fprintf(c.out, "Found %d server(s):\n", len(services))
	for _, svc := range services {
		addr, err := svc.Address()
		if err != nil {
			addr = net.JoinHostPort(svc.Host, strconv.Itoa(int(svc.Port)))
		}
		fmt.Fprintf(c.out, "  %-24s %s", svc.Name, addr)
		if svc.Version != "" {
			fmt.Fprintf(c.out, " (version %s)", svc.Version)
		}
		if !version.Supports(svc.Protocol) {
			fmt.Fprintf(c.out, " [incompatible protocol %s]", svc.Protocol)
		}
		fmt.Fprintln(c.out)
	}
}

func (c *Console) cmdWatch(args []string) {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		fmt.Fprintln(c.out, "Usage: watch on|off")
		return
	}
	c.watch.Store(args[0] == "on")
}
