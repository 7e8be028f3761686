// Package console reads chunk requests from a line based input, such as
// os.Stdin, and issues them on a client.Client.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/dm-vev/chunky/client"
	"github.com/dm-vev/chunky/client/chunk"
	"github.com/dm-vev/chunky/client/journal"
)

// ErrUnknownCommand is returned by Console.Exec for lines that do not start
// with a known command.
var ErrUnknownCommand = errors.New("unknown command")

// Console executes commands read from an io.Reader (defaulting to os.Stdin)
// on the provided client. Results are written to the logger.
type Console struct {
	c       *client.Client
	log     *slog.Logger
	reader  io.Reader
	journal *journal.Journal

	wg sync.WaitGroup
}

// New returns a Console bound to the provided client.
func New(c *client.Client, log *slog.Logger) *Console {
	if log == nil {
		log = slog.Default()
	}
	return &Console{c: c, log: log, reader: os.Stdin}
}

// WithReader sets a custom reader for the console input.
func (c *Console) WithReader(r io.Reader) *Console {
	if r != nil {
		c.reader = r
	}
	return c
}

// WithJournal records every chunk received in j.
func (c *Console) WithJournal(j *journal.Journal) *Console {
	c.journal = j
	return c
}

// Run starts consuming commands from the console. It blocks until the context
// is cancelled or the underlying reader reaches EOF. Requests issued are not
// waited for; use Wait for that.
func (c *Console) Run(ctx context.Context) {
	scanner := bufio.NewScanner(c.reader)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				c.log.Error("console input error", "err", err)
			}
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := c.Exec(ctx, line); err != nil {
			c.log.Error(err.Error())
		}
	}
}

// Wait blocks until every request issued through the console finished.
func (c *Console) Wait() {
	c.wg.Wait()
}

type command struct {
	usage string
	args  int
	check func(args []int32) error
	run   func(c *Console, ctx context.Context, args []int32)
}

// maxRadius is the largest radius the radius command requests at once.
const maxRadius = 64

func checkRadius(args []int32) error {
	if r := args[2]; r < 0 || r > maxRadius {
		return fmt.Errorf("radius %v out of range 0-%v", r, maxRadius)
	}
	return nil
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"request": {usage: "request <x> <z>", args: 2, run: (*Console).request},
		"radius":  {usage: "radius <x> <z> <radius>", args: 3, check: checkRadius, run: (*Console).radius},
		"status":  {usage: "status", run: (*Console).status},
		"peers":   {usage: "peers", run: (*Console).peers},
		"help":    {usage: "help", run: (*Console).help},
	}
}

// Exec executes a single command line.
func (c *Console) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return nil
	}
	cmd, ok := commands[strings.ToLower(fields[0])]
	if !ok {
		return fmt.Errorf("%w %q, try help", ErrUnknownCommand, fields[0])
	}
	if len(fields)-1 != cmd.args {
		return fmt.Errorf("usage: %v", cmd.usage)
	}
	args := make([]int32, cmd.args)
	for i, f := range fields[1:] {
		v, err := strconv.ParseInt(f, 10, 32)
		if err != nil {
			return fmt.Errorf("usage: %v: %q is not a number", cmd.usage, f)
		}
		args[i] = int32(v)
	}
	if cmd.check != nil {
		if err := cmd.check(args); err != nil {
			return fmt.Errorf("usage: %v: %w", cmd.usage, err)
		}
	}
	cmd.run(c, ctx, args)
	return nil
}

func (c *Console) request(ctx context.Context, args []int32) {
	c.await(ctx, c.c.RequestChunk(args[0], args[1]))
}

func (c *Console) radius(ctx context.Context, args []int32) {
	n := 0
	chunk.Radius(chunk.Pos{X: args[0], Z: args[1]}, args[2], func(pos chunk.Pos) {
		c.await(ctx, c.c.RequestChunk(pos.X, pos.Z))
		n++
	})
	c.log.Info("requested chunks", "center", chunk.Pos{X: args[0], Z: args[1]}, "count", n)
}

func (c *Console) await(ctx context.Context, req *client.Request) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		h, err := req.Wait(ctx)
		if err != nil {
			c.log.Warn("chunk request failed", "pos", req.Pos(), "err", err)
			return
		}
		c.log.Info("chunk received", "pos", h.Pos, "dimension", h.Dimension, "checksum", fmt.Sprintf("%016x", h.Checksum()))
		if c.journal != nil {
			if err := c.journal.Record(h); err != nil {
				c.log.Error("record chunk", "pos", h.Pos, "err", err)
			}
		}
	}()
}

func (c *Console) status(context.Context, []int32) {
	c.log.Info("status", "connected", c.c.Connected(), "pending", c.c.PendingCount(), "peers", len(c.c.Peers()))
}

func (c *Console) peers(context.Context, []int32) {
	for _, p := range c.c.Peers() {
		s := p.Snapshot()
		c.log.Info("peer", "name", s.Name, "state", s.State, "dimension", s.Dimension,
			"radius", s.ChunkRadius, "queued", len(s.Queued), "pending", len(s.Pending), "partial", len(s.Partial))
	}
}

func (c *Console) help(context.Context, []int32) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		c.log.Info(commands[name].usage)
	}
}
