package h2

import (
	"time"

	"go.uber.org/zap"
)

// Config collects everything a Session needs that isn't part of the wire
// protocol itself: timeouts, buffer sizing, the locally-advertised
// SETTINGS, and logging. Build one with NewConfig and Option funcs,
// following teacher's ClientOpts/ConnOpts and ConfigureClient.
type Config struct {
	// RequestTimeout bounds how long a single Send waits for a complete
	// response before Send returns ErrTimeout and the stream's completion
	// handler is resolved with an error wrapping ErrTimeout. No RST_STREAM
	// is sent to the peer when it elapses. Zero disables the per-request
	// timer.
	RequestTimeout time.Duration

	// SettingsTimeout bounds the initial settings handshake. Matches
	// original_source/lib/settings_manager.cpp's fixed 5s window.
	SettingsTimeout time.Duration

	// PingInterval is how often the session pings an idle connection to
	// detect a dead peer. Zero uses DefaultPingInterval.
	PingInterval time.Duration

	// MaxMissedPings is how many un-acked pings are tolerated before the
	// session declares the connection dead.
	MaxMissedPings int

	// HeaderTableSize is the locally-advertised SETTINGS_HEADER_TABLE_SIZE,
	// i.e. the cap this session places on its own HPACK decoder's dynamic
	// table.
	HeaderTableSize uint32

	// InitialWindowSize is the locally-advertised SETTINGS_INITIAL_WINDOW_SIZE
	// and the starting capacity of every stream's local flow-control window.
	InitialWindowSize uint32

	// MaxFrameSize is the locally-advertised SETTINGS_MAX_FRAME_SIZE.
	MaxFrameSize uint32

	// MaxConcurrentStreams is the locally-advertised
	// SETTINGS_MAX_CONCURRENT_STREAMS.
	MaxConcurrentStreams uint32

	// EnableCompression, when set, advertises Accept-Encoding and
	// transparently decompresses gzip/deflate/br response bodies,
	// mirroring the legacy Client's enableCompression option.
	EnableCompression bool

	Logger *zap.Logger
}

// Option mutates a Config being built by NewConfig.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		SettingsTimeout:      5 * time.Second,
		PingInterval:         DefaultPingInterval,
		MaxMissedPings:       3,
		HeaderTableSize:      defaultHeaderTableSize,
		InitialWindowSize:    1 << 20,
		MaxFrameSize:         defaultMaxFrameSize,
		MaxConcurrentStreams: defaultMaxConcurrency,
	}
}

// NewConfig builds a Config from its defaults plus opts, in order.
func NewConfig(opts ...Option) *Config {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = nopLogger()
	}
	return c
}

func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) { c.RequestTimeout = d }
}

func WithSettingsTimeout(d time.Duration) Option {
	return func(c *Config) { c.SettingsTimeout = d }
}

func WithPingInterval(d time.Duration) Option {
	return func(c *Config) { c.PingInterval = d }
}

func WithInitialWindowSize(n uint32) Option {
	return func(c *Config) { c.InitialWindowSize = n }
}

func WithMaxConcurrentStreams(n uint32) Option {
	return func(c *Config) { c.MaxConcurrentStreams = n }
}

func WithCompression(enable bool) Option {
	return func(c *Config) { c.EnableCompression = enable }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultPingInterval is how often an idle Session pings its peer absent
// an explicit WithPingInterval.
const DefaultPingInterval = 30 * time.Second
