package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arbor-protocol/arbor-go/pkg/codec"
	"github.com/arbor-protocol/arbor-go/pkg/log"
	"github.com/arbor-protocol/arbor-go/pkg/node"
	"github.com/arbor-protocol/arbor-go/pkg/rpc"
	"github.com/arbor-protocol/arbor-go/pkg/transport"
	"github.com/arbor-protocol/arbor-go/pkg/version"
)

// Config collects everything needed to reach one device.
type Config struct {
	// Addr is the device address as host:port.
	Addr string

	// ClientName identifies this client to the device in the hello
	// exchange. Default: "arbor-go/<library version>".
	ClientName string

	// TLS settings. Nil selects plain TCP.
	TLS *transport.TLSConfig

	// MaxMessageSize for received messages. Zero selects the
	// transport default.
	MaxMessageSize uint32

	// ConnectTimeout bounds the dial (default: transport's 10s).
	ConnectTimeout time.Duration

	// RequestTimeout is the per-request timeout (default: rpc's 30s).
	RequestTimeout time.Duration

	// KeepAlive configures liveness pings. Zero values select the
	// transport defaults.
	KeepAlive transport.KeepAliveConfig

	// DisableKeepAlive turns off liveness pings.
	DisableKeepAlive bool

	// ResolvePolicy for empty wildcard resolutions. Default strict.
	ResolvePolicy node.ResolvePolicy

	// Codec is a caller-owned parser registry to share across
	// connections (optional).
	Codec *codec.Registry

	// Logger for protocol logging (optional).
	Logger log.Logger

	// OnDisconnect is called once when the connection ends, with nil
	// on clean close (optional).
	OnDisconnect func(err error)
}

// Options returns the Conn options the config implies. Useful with
// RedialConfig.ConnOptions when pairing NewDialer with a Redialer.
func (c Config) Options() []Option {
	opts := []Option{WithResolvePolicy(c.ResolvePolicy)}
	if c.Logger != nil {
		opts = append(opts, WithLogger(c.Logger))
	}
	if c.Codec != nil {
		opts = append(opts, WithCodec(c.Codec))
	}
	return opts
}

// Connect dials a device, completes the hello exchange and returns
// the ready Conn. On any failure the connection is torn down.
//
// For connections that should survive outages, pair a Redialer with
// NewDialer instead.
func Connect(ctx context.Context, config Config) (*Conn, error) {
	client, err := dial(ctx, config)
	if err != nil {
		return nil, err
	}
	return NewConn(client, config.Options()...), nil
}

// NewDialer adapts a Config into the DialFunc a Redialer needs. Tree
// options do not travel with it; pass config.Options via
// RedialConfig.ConnOptions.
func NewDialer(config Config) DialFunc {
	return func(ctx context.Context) (Client, error) {
		return dial(ctx, config)
	}
}

// dial connects the transport, starts the rpc client and completes
// the hello exchange.
func dial(ctx context.Context, config Config) (*rpc.Client, error) {
	if config.Addr == "" {
		return nil, errors.New("device address required")
	}
	tc, err := transport.NewClient(transport.ClientConfig{
		TLSConfig:      config.TLS,
		MaxMessageSize: config.MaxMessageSize,
		ConnectTimeout: config.ConnectTimeout,
		KeepAlive:      config.KeepAlive,
		Logger:         config.Logger,
	})
	if err != nil {
		return nil, err
	}
	conn, err := tc.Connect(ctx, config.Addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", config.Addr, err)
	}
	client := rpc.NewClient(conn, rpc.Config{
		Timeout:          config.RequestTimeout,
		KeepAlive:        config.KeepAlive,
		DisableKeepAlive: config.DisableKeepAlive,
		Logger:           config.Logger,
		OnDisconnect:     config.OnDisconnect,
	})
	name := config.ClientName
	if name == "" {
		name = "arbor-go/" + version.Library
	}
	if _, err := client.Hello(ctx, name); err != nil {
		client.Close()
		return nil, fmt.Errorf("hello with %s: %w", config.Addr, err)
	}
	return client, nil
}
