package dmesim

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/mobiledgex/matchingengine/pkg/dme"
	"github.com/mobiledgex/matchingengine/pkg/dmeuri"
)

// Config holds the simulator configuration. It is normally loaded from
// dme-sim.yaml and DMESIM_* environment variables by LoadConfig.
type Config struct {
	Server struct {
		RESTAddr string `mapstructure:"rest_addr"`
		RPCAddr  string `mapstructure:"rpc_addr"`
		CertFile string `mapstructure:"cert_file"`
		KeyFile  string `mapstructure:"key_file"`

		// PKIDir holds a development CA. When set and no cert_file is
		// given, dme-sim issues its own serving certificate and a client
		// bundle under PKIDir/client.
		PKIDir            string `mapstructure:"pki_dir"`
		RequireClientCert bool   `mapstructure:"require_client_cert"`
	} `mapstructure:"server"`

	Carrier string `mapstructure:"carrier"`

	Cookie struct {
		Secret string        `mapstructure:"secret"`
		TTL    time.Duration `mapstructure:"ttl"`
	} `mapstructure:"cookie"`

	TokenServer struct {
		// URL is the token server address handed out in RegisterClient
		// replies. Empty means the simulator's own /its endpoint.
		URL       string        `mapstructure:"url"`
		FollowURL string        `mapstructure:"follow_url"`
		TTL       time.Duration `mapstructure:"ttl"`
	} `mapstructure:"token_server"`

	RateLimit struct {
		RPS   int `mapstructure:"rps"`
		Burst int `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`

	// DeviceLocation is where the network believes every device is.
	DeviceLocation Location `mapstructure:"device_location"`

	Apps      []App      `mapstructure:"apps"`
	Cloudlets []Cloudlet `mapstructure:"cloudlets"`
}

// App is one application known to the simulator.
type App struct {
	DevName            string        `mapstructure:"dev_name"`
	AppName            string        `mapstructure:"app_name"`
	AppVers            string        `mapstructure:"app_vers"`
	AuthToken          string `mapstructure:"auth_token"` // required on register when set
	AndroidPackageName string `mapstructure:"android_package_name"`
	Ports              []Port `mapstructure:"ports"`
}

func (a App) key() string { return a.DevName + "/" + a.AppName + "/" + a.AppVers }

func (a App) appPorts() []dme.AppPort {
	out := make([]dme.AppPort, len(a.Ports))
	for i, p := range a.Ports {
		out[i] = dme.AppPort{
			Proto:        p.Proto,
			InternalPort: p.InternalPort,
			PublicPort:   p.PublicPort,
			PublicPath:   p.PublicPath,
			FQDNPrefix:   p.FQDNPrefix,
		}
	}
	return out
}

// Port is one published port of an App.
type Port struct {
	Proto        dme.LProto `mapstructure:"proto"`
	InternalPort int32      `mapstructure:"internal_port"`
	PublicPort   int32      `mapstructure:"public_port"`
	PublicPath   string     `mapstructure:"public_path"`
	FQDNPrefix   string     `mapstructure:"fqdn_prefix"`
}

// Location is a configured position in degrees.
type Location struct {
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
}

// Loc converts to the wire form.
func (l Location) Loc() dme.Loc { return dme.Loc{Latitude: l.Latitude, Longitude: l.Longitude} }

// Cloudlet is one edge site and the apps it runs.
type Cloudlet struct {
	Name        string   `mapstructure:"name"`
	CarrierName string   `mapstructure:"carrier_name"`
	Location    Location `mapstructure:"location"`
	Apps        []string `mapstructure:"apps"` // app names
}

// DefaultConfig returns a configuration with a small Berlin inventory
// serving the "MobiledgeX/MobiledgeX SDK Demo/2.0" app.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.RESTAddr = fmt.Sprintf(":%d", dmeuri.DefaultRESTPort)
	cfg.Server.RPCAddr = fmt.Sprintf(":%d", dmeuri.DefaultRPCPort)
	cfg.Carrier = dmeuri.DefaultRegion
	cfg.Cookie.Secret = "dme-sim-development-secret"
	cfg.Cookie.TTL = 24 * time.Hour
	cfg.TokenServer.FollowURL = "https://dme.mobiledgex.net/verifyLoc"
	cfg.TokenServer.TTL = 10 * time.Minute
	cfg.RateLimit.RPS = 50
	cfg.RateLimit.Burst = 100
	cfg.DeviceLocation = Location{Latitude: 52.5200, Longitude: 13.4050}
	cfg.Apps = []App{{
		DevName: "MobiledgeX",
		AppName: "MobiledgeX SDK Demo",
		AppVers: "2.0",
		Ports: []Port{
			{Proto: dme.LProtoTCP, InternalPort: 7777, PublicPort: 7777},
			{Proto: dme.LProtoHTTP, InternalPort: 8080, PublicPort: 8080, FQDNPrefix: "web-", PublicPath: "app"},
		},
	}}
	cfg.Cloudlets = []Cloudlet{
		{
			Name:        "berlin-main",
			CarrierName: dmeuri.DefaultRegion,
			Location:    Location{Latitude: 52.5167, Longitude: 13.3833},
			Apps:        []string{"MobiledgeX SDK Demo"},
		},
		{
			Name:        "hamburg-main",
			CarrierName: dmeuri.DefaultRegion,
			Location:    Location{Latitude: 53.5511, Longitude: 9.9937},
			Apps:        []string{"MobiledgeX SDK Demo"},
		},
		{
			Name:        "munich-main",
			CarrierName: dmeuri.DefaultRegion,
			Location:    Location{Latitude: 48.1351, Longitude: 11.5820},
			Apps:        []string{"MobiledgeX SDK Demo"},
		},
	}
	return cfg
}

// LoadConfig reads path (optional) and DMESIM_* environment variables over
// DefaultConfig. A missing config file is not an error when path is empty.
// A file that lists apps or cloudlets replaces the default inventory.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dme-sim")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("DMESIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultConfig()
	v.SetDefault("server.rest_addr", def.Server.RESTAddr)
	v.SetDefault("server.rpc_addr", def.Server.RPCAddr)
	v.SetDefault("server.cert_file", "")
	v.SetDefault("server.key_file", "")
	v.SetDefault("server.pki_dir", "")
	v.SetDefault("server.require_client_cert", false)
	v.SetDefault("carrier", def.Carrier)
	v.SetDefault("cookie.secret", def.Cookie.Secret)
	v.SetDefault("cookie.ttl", def.Cookie.TTL)
	v.SetDefault("token_server.url", "")
	v.SetDefault("token_server.follow_url", def.TokenServer.FollowURL)
	v.SetDefault("token_server.ttl", def.TokenServer.TTL)
	v.SetDefault("rate_limit.rps", def.RateLimit.RPS)
	v.SetDefault("rate_limit.burst", def.RateLimit.Burst)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// mapstructure merges into existing slices element by element; the
	// inventory defaults are applied after decoding.
	cfg := &Config{}
	hooks := mapstructure.ComposeDecodeHookFunc(
		enumDecodeHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(cfg, viper.DecodeHook(hooks)); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if !v.IsSet("device_location") {
		cfg.DeviceLocation = def.DeviceLocation
	}
	if !v.IsSet("apps") && !v.IsSet("cloudlets") {
		cfg.Apps, cfg.Cloudlets = def.Apps, def.Cloudlets
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the inventory for dangling references and bad locations.
func (c *Config) Validate() error {
	if c.Cookie.Secret == "" {
		return errors.New("config: cookie.secret is required")
	}
	if err := c.DeviceLocation.Loc().Validate(); err != nil {
		return fmt.Errorf("config: device_location: %w", err)
	}
	names := make(map[string]bool, len(c.Apps))
	for _, a := range c.Apps {
		if a.DevName == "" || a.AppName == "" {
			return fmt.Errorf("config: app %q: dev_name and app_name are required", a.AppName)
		}
		for _, p := range a.Ports {
			if p.Proto == dme.LProtoUnrecognized {
				return fmt.Errorf("config: app %q: unrecognized port protocol", a.AppName)
			}
		}
		names[a.AppName] = true
	}
	for _, cl := range c.Cloudlets {
		if err := cl.Location.Loc().Validate(); err != nil {
			return fmt.Errorf("config: cloudlet %q: %w", cl.Name, err)
		}
		for _, app := range cl.Apps {
			if !names[app] {
				return fmt.Errorf("config: cloudlet %q runs unknown app %q", cl.Name, app)
			}
		}
	}
	return nil
}

// enumDecodeHook lets YAML name enum values ("L_PROTO_TCP") the same way
// the wire does.
func enumDecodeHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Int32 {
		return data, nil
	}
	ptr := reflect.New(to)
	u, ok := ptr.Interface().(json.Unmarshaler)
	if !ok {
		return data, nil
	}
	quoted, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	if err := u.UnmarshalJSON(quoted); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}
