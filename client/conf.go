package client

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dm-vev/chunky/client/palette"
	"github.com/dm-vev/chunky/client/transport"
	"github.com/dm-vev/chunky/client/version"
	"github.com/pelletier/go-toml"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

// Config contains options for creating a Client.
type Config struct {
	// Log is the Logger to use for logging information. If nil, Log is set to
	// slog.Default().
	Log *slog.Logger
	// Address is the address of the server to connect to, such as
	// "127.0.0.1:19132".
	Address string
	// Version is the protocol revision peers log in with. It must be one of
	// the revisions in the version package.
	Version version.Version
	// PeerCount is the amount of connections opened to the server. Requests
	// are spread over all peers.
	PeerCount int
	// MaxPendingRequests is the maximum amount of queued requests a single
	// peer accepts. Requests close to one already queued do not count
	// towards it. If 0, the amount is unbounded.
	MaxPendingRequests int
	// ChunkRadius is the chunk radius peers ask the server for. The server
	// may answer with a smaller radius. If 0, a radius of 8 is used.
	ChunkRadius int
	// TickInterval is the interval at which peers solicit queued chunks and
	// check for timeouts. If 0, peers tick every 200 milliseconds.
	TickInterval time.Duration
	// RequestTimeout is the time after which chunks that were solicited but
	// not received are reported as timed out. If 0, a timeout of 10 seconds
	// is used.
	RequestTimeout time.Duration
	// AutoReconnect specifies if peers that are closed while the client is
	// connected should be reconnected after ReconnectInterval.
	AutoReconnect bool
	// ReconnectInterval is the delay before reconnecting a closed peer. If 0,
	// an interval of 5 seconds is used.
	ReconnectInterval time.Duration
	// Transport opens the connection of each peer. If nil, peers dial
	// through a transport.Dialer.
	Transport Transport
	// Palettes provides the block palettes needed to decode persistent and
	// legacy sub-chunks. If nil, only runtime sub-chunks can be decoded.
	Palettes *palette.Registry
	// Listener is notified of unsolicited chunks, timeouts and other events.
	// If nil, a NopListener is used.
	Listener Listener
	// Registerer is used to register the metrics of the Client. If nil,
	// metrics are tracked but not registered.
	Registerer prometheus.Registerer
	// Identities returns the login identity of the peer with the index
	// passed. If nil, every peer logs in with a random identity.
	Identities func(i int) transport.Identity
}

// New validates conf and creates a Client with it. The Client must be
// connected with Client.Connect before chunks can be requested.
func (conf Config) New() (*Client, error) {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.PeerCount <= 0 {
		return nil, fmt.Errorf("client: peer count must be positive, got %v", conf.PeerCount)
	}
	if strings.TrimSpace(conf.Address) == "" {
		return nil, errors.New("client: address must not be empty")
	}
	if !conf.Version.Valid() {
		return nil, errors.New("client: version must be set")
	}
	if conf.MaxPendingRequests < 0 {
		return nil, fmt.Errorf("client: max pending requests must not be negative, got %v", conf.MaxPendingRequests)
	}
	if conf.ChunkRadius < 0 {
		return nil, fmt.Errorf("client: chunk radius must not be negative, got %v", conf.ChunkRadius)
	}
	if conf.ChunkRadius == 0 {
		conf.ChunkRadius = 8
	}
	if conf.TickInterval <= 0 {
		conf.TickInterval = time.Second / 5
	}
	if conf.RequestTimeout <= 0 {
		conf.RequestTimeout = time.Second * 10
	}
	if conf.ReconnectInterval <= 0 {
		conf.ReconnectInterval = time.Second * 5
	}
	if conf.Transport == nil {
		conf.Transport = DialerTransport{Dialer: transport.Dialer{Log: conf.Log}}
	}
	if conf.Palettes == nil {
		conf.Palettes = palette.NewRegistry(nil)
	}
	if conf.Listener == nil {
		conf.Listener = NopListener{}
	}
	if conf.Identities == nil {
		conf.Identities = func(int) transport.Identity { return transport.NewIdentity() }
	}
	metrics, err := newMetrics(conf.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	return newClient(conf, metrics), nil
}

// UserConfig is the user configuration of a Client. It may be serialised and
// can be converted to a Config by calling UserConfig.Config().
type UserConfig struct {
	Network struct {
		// Address is the address of the server to mirror chunks from.
		Address string
		// Version is the game version or protocol number to log in with,
		// or "latest".
		Version string
	}
	Peers struct {
		// Count is the amount of connections opened to the server.
		Count int
		// MaxPendingRequests is the maximum amount of queued requests per
		// peer. Set to 0 to disable the limit.
		MaxPendingRequests int
		// ChunkRadius is the chunk radius peers ask the server for.
		ChunkRadius int
		// AutoReconnect controls if peers are reconnected after they are
		// closed.
		AutoReconnect bool
		// ReconnectInterval is the delay before reconnecting, such as "5s".
		ReconnectInterval string
		// IdentityFile is the file in which the login identities of peers are
		// stored, so that peers join with the same name every time. Leave
		// empty to use new identities on every run.
		IdentityFile string
	}
	Requests struct {
		// TickInterval is the interval at which peers solicit chunks.
		TickInterval string
		// Timeout is the time after which a requested chunk is given up on.
		Timeout string
	}
	Palette struct {
		// Folder holds block_palette_<protocol>.nbt files, needed for servers
		// sending persistent or legacy sub-chunks.
		Folder string
	}
	Metrics struct {
		// Address is the address on which metrics are served over HTTP.
		// Leave empty to disable.
		Address string
	}
	Journal struct {
		// Folder is the LevelDB folder in which fetched chunks are recorded.
		// Leave empty to disable.
		Folder string
	}
}

// Config converts a UserConfig to a Config, so that it may be used for
// creating a Client.
func (uc UserConfig) Config(log *slog.Logger) (Config, error) {
	conf := Config{
		Log:                log,
		Address:            uc.Network.Address,
		PeerCount:          uc.Peers.Count,
		MaxPendingRequests: uc.Peers.MaxPendingRequests,
		ChunkRadius:        uc.Peers.ChunkRadius,
		AutoReconnect:      uc.Peers.AutoReconnect,
	}
	var err error
	if conf.Version, err = version.Parse(uc.Network.Version); err != nil {
		return conf, err
	}
	if conf.ReconnectInterval, err = parseDuration(uc.Peers.ReconnectInterval); err != nil {
		return conf, fmt.Errorf("parse reconnect interval: %w", err)
	}
	if conf.TickInterval, err = parseDuration(uc.Requests.TickInterval); err != nil {
		return conf, fmt.Errorf("parse tick interval: %w", err)
	}
	if conf.RequestTimeout, err = parseDuration(uc.Requests.Timeout); err != nil {
		return conf, fmt.Errorf("parse request timeout: %w", err)
	}
	if uc.Palette.Folder != "" {
		conf.Palettes = palette.NewRegistry(palette.DirSource(uc.Palette.Folder))
	}
	if uc.Peers.IdentityFile != "" {
		store, err := LoadIdentities(uc.Peers.IdentityFile)
		if err != nil {
			return conf, fmt.Errorf("load identities: %w", err)
		}
		conf.Identities = store.Identity
	}
	return conf, nil
}

func parseDuration(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// DefaultConfig returns a configuration with the default values filled out.
func DefaultConfig() UserConfig {
	c := UserConfig{}
	c.Network.Address = "127.0.0.1:19132"
	c.Network.Version = "latest"
	c.Peers.Count = 2
	c.Peers.MaxPendingRequests = 20
	c.Peers.ChunkRadius = 8
	c.Peers.ReconnectInterval = "5s"
	c.Peers.IdentityFile = "identities.toml"
	c.Requests.TickInterval = "200ms"
	c.Requests.Timeout = "10s"
	c.Palette.Folder = "palettes"
	c.Journal.Folder = "journal"
	return c
}

// LoadUserConfig reads the UserConfig at path. Files ending in .yaml or .yml
// are read as YAML, all others as TOML. If the file does not exist, it is
// created with DefaultConfig.
func LoadUserConfig(path string) (UserConfig, error) {
	c := DefaultConfig()
	yml := isYAML(path)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if data, err = marshalConfig(c, yml); err != nil {
			return c, fmt.Errorf("encode default config: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return c, fmt.Errorf("create config directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return c, fmt.Errorf("create default config: %w", err)
		}
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("read config: %w", err)
	}
	if yml {
		err = yaml.Unmarshal(data, &c)
	} else {
		err = toml.Unmarshal(data, &c)
	}
	if err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

func marshalConfig(c UserConfig, yml bool) ([]byte, error) {
	if yml {
		return yaml.Marshal(c)
	}
	return toml.Marshal(c)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
