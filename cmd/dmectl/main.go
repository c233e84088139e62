package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/mobiledgex/matchingengine/pkg/client"
	"github.com/mobiledgex/matchingengine/pkg/codec"
	"github.com/mobiledgex/matchingengine/pkg/dme"
	"github.com/mobiledgex/matchingengine/pkg/dmeuri"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var cfgFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dmectl",
		Short: "Matching engine client",
		Long: `dmectl talks to a distributed matching engine on behalf of one app.

Every command first registers the app (--dev, --app, --vers) and then
issues its request with the resulting session. Settings are read from
~/.dmectl/config.yaml and DMECTL_* environment variables; flags win.

  dmectl discover --dev MobiledgeX --app "MobiledgeX SDK Demo" --vers 2.0 --lat 52.52 --lon 13.405`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ~/.dmectl/config.yaml)")
	pf.String("host", "", "matching engine host (default <region>.<base-domain>)")
	pf.Uint32("port", 0, "matching engine port (default 38001 for REST, 50051 for RPC)")
	pf.String("region", dmeuri.DefaultRegion, "carrier region used to derive the host")
	pf.String("base-domain", dmeuri.DefaultBaseDomain, "base domain used to derive the host")
	pf.String("transport", "rest", "transport: rest, json (gRPC+JSON) or cbor (gRPC+CBOR)")
	pf.Bool("plaintext", false, "gRPC without TLS (local simulator only)")
	pf.String("cert-dir", "", "directory with cert.pem, key.pem and ca.pem for mutual TLS")
	pf.Bool("insecure", false, "skip TLS certificate verification (development only)")
	pf.Duration("timeout", 10*time.Second, "per-call timeout")
	pf.String("dev", "", "developer name")
	pf.String("app", "", "app name")
	pf.String("vers", "", "app version")
	pf.String("auth-token", "", "app auth token, if the app requires one")
	pf.Float64("lat", 0, "device latitude")
	pf.Float64("lon", 0, "device longitude")
	pf.String("format", "text", "output format: text or json")
	pf.Bool("debug", false, "log client activity to stderr")

	for _, name := range []string{
		"host", "port", "region", "base-domain", "transport", "plaintext", "cert-dir", "insecure",
		"timeout", "dev", "app", "vers", "auth-token", "lat", "lon", "format", "debug",
	} {
		_ = viper.BindPFlag(strings.ReplaceAll(name, "-", "_"), pf.Lookup(name))
	}

	root.AddCommand(
		newRegisterCmd(),
		newFindCloudletCmd(),
		newVerifyLocationCmd(),
		newGetLocationCmd(),
		newAppInstListCmd(),
		newFqdnListCmd(),
		newDynamicLocGroupCmd(),
		newQosKpiCmd(),
		newDiscoverCmd(),
		newVersionCmd(),
	)
	return root
}

func loadConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, _ := os.UserHomeDir()
		viper.AddConfigPath(home + "/.dmectl")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("DMECTL")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// ── Client construction ──────────────────────────────────────────────────────

func newLogger() *zap.Logger {
	if !viper.GetBool("debug") {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func newClient() (*client.Client, error) {
	opts := []client.Option{
		client.WithLogger(newLogger()),
		client.WithDefaultRegion(viper.GetString("region")),
		client.WithBaseDomain(viper.GetString("base_domain")),
		client.WithTimeout(viper.GetDuration("timeout")),
	}
	if host := viper.GetString("host"); host != "" {
		opts = append(opts, client.WithHost(host))
	}
	if port := viper.GetUint32("port"); port != 0 {
		opts = append(opts, client.WithPort(port))
	}
	if dir := viper.GetString("cert_dir"); dir != "" {
		opts = append(opts, client.WithCertDir(dir))
	} else if viper.GetBool("insecure") {
		opts = append(opts, client.WithInsecureSkipVerify())
	}

	switch transport := viper.GetString("transport"); transport {
	case "", "rest":
	case codec.JSONName, codec.CBORName:
		if viper.GetBool("plaintext") {
			rt, err := client.NewRPCTransport(insecure.NewCredentials(), transport)
			if err != nil {
				return nil, err
			}
			opts = append(opts, client.WithTransport(rt))
		} else {
			opts = append(opts, client.WithRPC(transport))
		}
	default:
		return nil, fmt.Errorf("unknown transport %q (want rest, json or cbor)", transport)
	}
	return client.New(opts...)
}

// registered builds a client and opens a session with it.
func registered(ctx context.Context) (*client.Client, *dme.RegisterClientReply, error) {
	c, err := newClient()
	if err != nil {
		return nil, nil, err
	}
	reply, err := c.RegisterClient(ctx, client.RegisterParams{
		DevName:   viper.GetString("dev"),
		AppName:   viper.GetString("app"),
		AppVers:   viper.GetString("vers"),
		AuthToken: viper.GetString("auth_token"),
	})
	if err == nil {
		err = client.CheckStatus(reply)
	}
	if err != nil {
		_ = c.Close()
		return nil, nil, fmt.Errorf("register: %w", err)
	}
	return c, reply, nil
}

// deviceLocation returns the --lat/--lon fix, or nil when neither is set.
func deviceLocation() *dme.Loc {
	if !viper.IsSet("lat") && !viper.IsSet("lon") {
		return nil
	}
	return &dme.Loc{Latitude: viper.GetFloat64("lat"), Longitude: viper.GetFloat64("lon")}
}

// ── Output ───────────────────────────────────────────────────────────────────

func jsonOutput() bool { return viper.GetString("format") == "json" }

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── version ──────────────────────────────────────────────────────────────────

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the dmectl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dmectl %s\n", version)
		},
	}
}
