package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/credentials"

	"github.com/mobiledgex/matchingengine/pkg/codec"
	"github.com/mobiledgex/matchingengine/pkg/dme"
	"github.com/mobiledgex/matchingengine/pkg/dmeuri"
)

// defaultTimeout bounds every call that has no deadline of its own.
const defaultTimeout = 10 * time.Second

// Client talks to a matching engine on behalf of one application
// instance. It owns the session established by RegisterClient; every other
// call reads that session and may run concurrently with the others.
type Client struct {
	transport  Transport
	tokens     *TokenResolver
	session    sessionStore
	httpClient *http.Client
	tlsConfig  *tls.Config

	rpcSubtype    string // non-empty selects the RPC transport
	host          string
	port          uint32
	baseDomain    string
	defaultRegion string
	timeout       time.Duration

	logger     *zap.Logger
	limiter    *rate.Limiter
	metrics    *metrics
	authTokens oauth2.TokenSource
	locations  LocationProvider
	regions    RegionProvider
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets the http.Client used by the REST transport and the
// token resolver, overriding any TLS options.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithTransport replaces the built-in transport, e.g. with a test double.
func WithTransport(t Transport) Option {
	return func(c *Client) error {
		c.transport = t
		return nil
	}
}

// WithRPC selects the RPC transport with the given codec content subtype
// (codec.JSONName or codec.CBORName). It uses the TLS material configured
// by WithMTLS, WithCertDir or WithPKCS12.
func WithRPC(contentSubtype string) Option {
	return func(c *Client) error {
		if contentSubtype == "" {
			contentSubtype = codec.JSONName
		}
		if _, err := codec.ByName(contentSubtype); err != nil {
			return err
		}
		c.rpcSubtype = contentSubtype
		return nil
	}
}

// WithHost sends every call to host instead of deriving it from the region.
func WithHost(host string) Option {
	return func(c *Client) error {
		c.host = host
		return nil
	}
}

// WithPort overrides the transport's default port.
func WithPort(port uint32) Option {
	return func(c *Client) error {
		if port == 0 || port > 65535 {
			return fmt.Errorf("invalid port %d", port)
		}
		c.port = port
		return nil
	}
}

// WithBaseDomain sets the domain region hosts are derived under.
func WithBaseDomain(domain string) Option {
	return func(c *Client) error {
		c.baseDomain = domain
		return nil
	}
}

// WithDefaultRegion sets the region used when neither the call nor a
// RegionProvider names one.
func WithDefaultRegion(region string) Option {
	return func(c *Client) error {
		c.defaultRegion = region
		return nil
	}
}

// WithTimeout sets the deadline applied to calls that do not set their own
// with WithCallTimeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.timeout = d
		return nil
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) error {
		c.logger = l
		return nil
	}
}

// WithRateLimit makes calls wait for a token bucket before dispatch.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) error {
		c.limiter = rate.NewLimiter(r, burst)
		return nil
	}
}

// WithMetrics registers request counters and latency histograms on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Client) error {
		c.metrics = newMetrics(reg)
		return nil
	}
}

// WithAuthTokenSource supplies the RegisterClient auth token when the
// caller passes none.
func WithAuthTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) error {
		c.authTokens = ts
		return nil
	}
}

// WithLocationProvider supplies the GPS fix for calls that pass none.
func WithLocationProvider(p LocationProvider) Option {
	return func(c *Client) error {
		c.locations = p
		return nil
	}
}

// WithRegionProvider supplies the carrier for calls that pass none.
func WithRegionProvider(p RegionProvider) Option {
	return func(c *Client) error {
		c.regions = p
		return nil
	}
}

// New creates a Client. Without options it speaks REST to
// https://tdg.dme.mobiledgex.net:38001 using the system trust store.
//
//	c, err := client.New(
//	    client.WithCertDir(os.ExpandEnv("$HOME/.dmectl/certs")),
//	    client.WithLogger(logger),
//	)
func New(opts ...Option) (*Client, error) {
	c := &Client{
		httpClient:    &http.Client{},
		baseDomain:    dmeuri.DefaultBaseDomain,
		defaultRegion: dmeuri.DefaultRegion,
		timeout:       defaultTimeout,
		logger:        zap.NewNop(),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}

	if c.transport == nil {
		if c.rpcSubtype != "" {
			tlsCfg := c.tlsConfig
			if tlsCfg == nil {
				tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
			}
			rt, err := NewRPCTransport(credentials.NewTLS(tlsCfg), c.rpcSubtype)
			if err != nil {
				return nil, err
			}
			c.transport = rt
		} else {
			c.transport = NewRESTTransport(c.httpClient)
		}
	}
	c.tokens = NewTokenResolver(c.httpClient, c.logger)
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(opts ...Option) *Client {
	c, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Session returns the current session and whether one exists.
func (c *Client) Session() (Session, bool) {
	return c.session.load()
}

// Close releases transport resources such as RPC connections.
func (c *Client) Close() error {
	if closer, ok := c.transport.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// CallOption adjusts a single call.
type CallOption func(*callConfig)

type callConfig struct {
	host    string
	port    uint32
	timeout time.Duration
}

// WithEndpoint sends this call to host:port. A zero port keeps the
// client's port.
func WithEndpoint(host string, port uint32) CallOption {
	return func(cc *callConfig) {
		cc.host = host
		cc.port = port
	}
}

// WithCallTimeout sets this call's deadline, replacing the client default.
func WithCallTimeout(d time.Duration) CallOption {
	return func(cc *callConfig) {
		cc.timeout = d
	}
}

func (c *Client) callConfig(opts []CallOption) callConfig {
	cc := callConfig{timeout: c.timeout}
	for _, o := range opts {
		o(&cc)
	}
	return cc
}

// callContext derives the context a single call runs under. Cancelling it
// affects that call only.
func (c *Client) callContext(ctx context.Context, cc callConfig) (context.Context, context.CancelFunc) {
	if cc.timeout > 0 {
		return context.WithTimeout(ctx, cc.timeout)
	}
	return context.WithCancel(ctx)
}

// target picks the endpoint of a call: an explicit host wins, otherwise the
// host is derived from the carrier.
func (c *Client) target(carrier string, cc callConfig) Target {
	t := Target{Host: cc.host, Port: cc.port}
	if t.Host == "" {
		t.Host = c.host
	}
	if t.Host == "" {
		if carrier == "" {
			carrier = c.defaultRegion
		}
		t.Host = dmeuri.Host(carrier, c.baseDomain)
	}
	if t.Port == 0 {
		t.Port = c.port
	}
	if t.Port == 0 {
		t.Port = c.transport.DefaultPort()
	}
	return t
}

// activeSession returns a snapshot of the session or a PreconditionError.
func (c *Client) activeSession(api dme.API) (Session, error) {
	sess, ok := c.session.load()
	if !ok {
		return Session{}, &PreconditionError{API: api.Name, Err: ErrNotRegistered}
	}
	return sess, nil
}

// carrier resolves the carrier of a call: explicit, then the region
// provider, then the session's carrier, then the default region.
func (c *Client) carrier(ctx context.Context, api dme.API, explicit string, sess *Session) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if c.regions != nil {
		region, err := c.regions.CurrentRegion(ctx)
		if err != nil {
			return "", &PreconditionError{API: api.Name, Err: fmt.Errorf("region provider: %w", err)}
		}
		if region != "" {
			return region, nil
		}
	}
	if sess != nil && sess.CarrierName != "" {
		return sess.CarrierName, nil
	}
	return c.defaultRegion, nil
}

// location resolves and validates the GPS fix of a call. The result is a
// private copy.
func (c *Client) location(ctx context.Context, api dme.API, explicit *dme.Loc) (*dme.Loc, error) {
	var loc dme.Loc
	switch {
	case explicit != nil:
		loc = *explicit
	case c.locations != nil:
		l, err := c.locations.CurrentLocation(ctx)
		if err != nil {
			return nil, &PreconditionError{API: api.Name, Err: fmt.Errorf("location provider: %w", err)}
		}
		loc = l
	default:
		return nil, &PreconditionError{API: api.Name, Err: errors.New("no location given and no location provider configured")}
	}
	if err := loc.Validate(); err != nil {
		return nil, &PreconditionError{API: api.Name, Err: err}
	}
	return &loc, nil
}

// invoke dispatches one request through the transport.
func (c *Client) invoke(ctx context.Context, api dme.API, target Target, req, reply any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return transportFailure(ctx, api.Name, target.String(), err)
		}
	}

	start := time.Now()
	c.logger.Debug("dispatching", zap.String("api", api.Name), zap.Stringer("target", target))
	err := c.transport.Call(ctx, target, api, req, reply)
	c.metrics.observe(api.Name, start, err)
	if err != nil {
		c.logger.Warn("call failed",
			zap.String("api", api.Name),
			zap.Stringer("target", target),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return err
	}
	return nil
}
