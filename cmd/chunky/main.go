package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dm-vev/chunky/client"
	"github.com/dm-vev/chunky/client/chunk"
	"github.com/dm-vev/chunky/client/console"
	"github.com/dm-vev/chunky/client/journal"
	"github.com/dm-vev/chunky/client/transport"
	"github.com/dm-vev/chunky/client/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sandertv/gophertunnel/query"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "chunky",
		Usage: "mirrors chunks from a Bedrock server using a pool of client connections",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.toml", Usage: "config file, TOML or YAML"},
			&cli.BoolFlag{Name: "debug", Usage: "log debug messages"},
		},
		Commands: []*cli.Command{
			{
				Name:      "fetch",
				Usage:     "fetches all chunks within a radius and exits",
				ArgsUsage: "<x> <z> <radius>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "refetch", Usage: "fetch chunks already recorded in the journal"},
				},
				Action: fetch,
			},
			{
				Name:   "console",
				Usage:  "reads chunk requests from stdin",
				Action: runConsole,
			},
			{
				Name:      "ping",
				Usage:     "prints the status a server advertises",
				ArgsUsage: "[address]",
				Action:    ping,
			},
			{
				Name:      "query",
				Usage:     "prints the information a server returns to a query",
				ArgsUsage: "[address]",
				Action:    queryServer,
			},
			{
				Name:   "config",
				Usage:  "writes the default config if missing and prints it",
				Action: printConfig,
			},
			{
				Name:   "versions",
				Usage:  "lists the supported game versions",
				Action: versions,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		slog.Error("chunky", "err", err)
		os.Exit(1)
	}
}

func newLogger(c *cli.Context) *slog.Logger {
	level := slog.LevelInfo
	if c.Bool("debug") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// session is a connected client with the optional parts set up by the user
// config.
type session struct {
	log     *slog.Logger
	client  *client.Client
	journal *journal.Journal
	metrics *http.Server
}

func openSession(ctx context.Context, c *cli.Context) (*session, error) {
	log := newLogger(c)
	uc, err := client.LoadUserConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(uc.Network.Version, "auto") {
		st, err := transport.Ping(ctx, uc.Network.Address, log)
		if err != nil {
			return nil, fmt.Errorf("detect version: %w", err)
		}
		log.Info("detected server version", "version", st.Version, "protocol", st.Protocol)
		uc.Network.Version = strconv.Itoa(int(st.Protocol))
	}
	conf, err := uc.Config(log)
	if err != nil {
		return nil, err
	}
	s := &session{log: log}
	if uc.Metrics.Address != "" {
		reg := prometheus.NewRegistry()
		conf.Registerer = reg
		s.metrics = &http.Server{Addr: uc.Metrics.Address, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("serve metrics", "err", err)
			}
		}()
	}
	if uc.Journal.Folder != "" {
		if s.journal, err = journal.Open(uc.Journal.Folder); err != nil {
			s.close()
			return nil, err
		}
	}
	if s.client, err = conf.New(); err != nil {
		s.close()
		return nil, err
	}
	if err := s.client.Connect(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) close() {
	if s.client != nil {
		s.client.Disconnect()
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.log.Error("close journal", "err", err)
		}
	}
	if s.metrics != nil {
		_ = s.metrics.Close()
	}
}

func fetch(c *cli.Context) error {
	if c.NArg() != 3 {
		return errors.New("usage: fetch <x> <z> <radius>")
	}
	var args [3]int32
	for i := range args {
		v, err := strconv.ParseInt(c.Args().Get(i), 10, 32)
		if err != nil {
			return fmt.Errorf("argument %v: %w", i+1, err)
		}
		args[i] = int32(v)
	}
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, c)
	if err != nil {
		return err
	}
	defer s.close()

	var reqs []*client.Request
	skipped := 0
	chunk.Radius(chunk.Pos{X: args[0], Z: args[1]}, args[2], func(pos chunk.Pos) {
		if s.journal != nil && !c.Bool("refetch") {
			if ok, _ := s.journal.Has(chunk.Overworld, pos); ok {
				skipped++
				return
			}
		}
		reqs = append(reqs, s.client.RequestChunk(pos.X, pos.Z))
	})
	s.log.Info("fetching chunks", "count", len(reqs), "skipped", skipped)

	failed := 0
	for _, req := range reqs {
		h, err := req.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			s.log.Warn("fetch chunk", "pos", req.Pos(), "err", err)
			continue
		}
		if s.journal != nil {
			if err := s.journal.Record(h); err != nil {
				return err
			}
		}
	}
	s.log.Info("fetched chunks", "ok", len(reqs)-failed, "failed", failed)
	return nil
}

func runConsole(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, c)
	if err != nil {
		return err
	}
	defer s.close()

	con := console.New(s.client, s.log).WithJournal(s.journal)
	con.Run(ctx)
	con.Wait()
	return nil
}

func address(c *cli.Context) (string, error) {
	if c.NArg() > 0 {
		return c.Args().Get(0), nil
	}
	uc, err := client.LoadUserConfig(c.String("config"))
	if err != nil {
		return "", err
	}
	return uc.Network.Address, nil
}

func ping(c *cli.Context) error {
	addr, err := address(c)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, 5*time.Second)
	defer cancelTimeout()

	st, err := transport.Ping(ctx, addr, newLogger(c))
	if err != nil {
		return err
	}
	supported := "no"
	if _, ok := version.ByProtocol(st.Protocol); ok {
		supported = "yes"
	}
	fmt.Printf("%v (%v)\n%v/%v players\nversion %v, protocol %v (supported: %v)\n",
		st.MOTD, st.SubMOTD, st.Players, st.MaxPlayers, st.Version, st.Protocol, supported)
	return nil
}

func queryServer(c *cli.Context) error {
	addr, err := address(c)
	if err != nil {
		return err
	}
	info, err := query.Do(addr)
	if err != nil {
		return fmt.Errorf("query %v: %w", addr, err)
	}
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Printf("%v: %v\n", k, info[k])
	}
	return nil
}

func versions(*cli.Context) error {
	for _, v := range version.All() {
		fmt.Printf("%-10v protocol %v\n", v.Name(), v.Protocol())
	}
	return nil
}

func printConfig(c *cli.Context) error {
	path := c.String("config")
	if _, err := client.LoadUserConfig(path); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
