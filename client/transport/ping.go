package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sandertv/go-raknet"
)

// Status is the server list information of a server.
type Status struct {
	Edition    string
	MOTD       string
	Protocol   int32
	Version    string
	Players    int
	MaxPlayers int
	ServerID   string
	SubMOTD    string
	GameMode   string
}

// Ping sends a RakNet unconnected ping to address and parses the pong.
func Ping(ctx context.Context, address string, log *slog.Logger) (Status, error) {
	if log == nil {
		log = slog.Default()
	}
	data, err := raknet.Dialer{ErrorLog: log.With("net origin", "raknet")}.PingContext(ctx, address)
	if err != nil {
		return Status{}, fmt.Errorf("ping %v: %w", address, err)
	}
	return ParsePong(data)
}

// ParsePong parses the semicolon separated pong data of a Bedrock server.
func ParsePong(data []byte) (Status, error) {
	fields := strings.Split(string(data), ";")
	if len(fields) < 6 {
		return Status{}, fmt.Errorf("transport: pong has %v fields, expected at least 6", len(fields))
	}
	s := Status{Edition: fields[0], MOTD: fields[1], Version: fields[3]}
	protocol, err := strconv.ParseInt(fields[2], 10, 32)
	if err != nil {
		return Status{}, fmt.Errorf("transport: pong protocol: %w", err)
	}
	s.Protocol = int32(protocol)
	if s.Players, err = strconv.Atoi(fields[4]); err != nil {
		return Status{}, fmt.Errorf("transport: pong player count: %w", err)
	}
	if s.MaxPlayers, err = strconv.Atoi(fields[5]); err != nil {
		return Status{}, fmt.Errorf("transport: pong max players: %w", err)
	}
	rest := fields[6:]
	for i, dst := range []*string{&s.ServerID, &s.SubMOTD, &s.GameMode} {
		if i < len(rest) {
			*dst = rest[i]
		}
	}
	return s, nil
}
