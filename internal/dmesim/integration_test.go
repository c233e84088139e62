package dmesim_test

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/mobiledgex/matchingengine/internal/dmesim"
	"github.com/mobiledgex/matchingengine/pkg/client"
	"github.com/mobiledgex/matchingengine/pkg/codec"
	"github.com/mobiledgex/matchingengine/pkg/dme"
	"github.com/mobiledgex/matchingengine/pkg/dmeuri"
)

// sim is a running simulator with a TLS REST listener and, optionally, a
// plaintext gRPC listener sharing one Engine.
type sim struct {
	engine *dmesim.Engine
	rest   *httptest.Server
	rpc    client.Target
}

func startSim(t *testing.T, cfg *dmesim.Config) *sim {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e, err := dmesim.NewEngine(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	rest := httptest.NewTLSServer(dmesim.NewRouter(ctx, e, dmesim.RouterOptions{}))
	t.Cleanup(rest.Close)
	e.SetTokenServerURL(rest.URL + dmesim.TokenServerPath)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := dmesim.NewGRPCServer(e)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	host, port, err := dmeuri.SplitAuthority(lis.Addr().String())
	if err != nil {
		t.Fatalf("SplitAuthority: %v", err)
	}
	return &sim{engine: e, rest: rest, rpc: client.Target{Host: host, Port: port}}
}

func (s *sim) restTarget(t *testing.T) client.Target {
	t.Helper()
	host, port, err := dmeuri.SplitAuthority(s.rest.Listener.Addr().String())
	if err != nil {
		t.Fatalf("SplitAuthority: %v", err)
	}
	return client.Target{Host: host, Port: port}
}

func (s *sim) restClient(t *testing.T) *client.Client {
	t.Helper()
	target := s.restTarget(t)
	c, err := client.New(
		client.WithHTTPClient(s.rest.Client()),
		client.WithHost(target.Host),
		client.WithPort(target.Port),
	)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return c
}

func (s *sim) rpcClient(t *testing.T, subtype string) *client.Client {
	t.Helper()
	rt, err := client.NewRPCTransport(insecure.NewCredentials(), subtype)
	if err != nil {
		t.Fatalf("NewRPCTransport: %v", err)
	}
	c, err := client.New(
		client.WithTransport(rt),
		client.WithHTTPClient(s.rest.Client()), // token server
		client.WithHost(s.rpc.Host),
		client.WithPort(s.rpc.Port),
	)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func registerDemo(t *testing.T, c *client.Client) {
	t.Helper()
	reply, err := c.RegisterClient(context.Background(), client.RegisterParams{
		DevName: demoApp.DevName,
		AppName: demoApp.AppName,
		AppVers: demoApp.AppVers,
	})
	if err != nil {
		t.Fatalf("RegisterClient: %v", err)
	}
	if err := client.CheckStatus(reply); err != nil {
		t.Fatalf("RegisterClient: %v", err)
	}
}

// runSession drives every operation through c against the default inventory.
func runSession(t *testing.T, c *client.Client) {
	t.Helper()
	ctx := context.Background()
	registerDemo(t, c)
	loc := berlin

	found, err := c.FindCloudlet(ctx, client.FindCloudletParams{Location: &loc})
	if err != nil {
		t.Fatalf("FindCloudlet: %v", err)
	}
	if found.Status != dme.FindFound || found.FQDN != "mobiledgexsdkdemo.berlin-main.tdg.mobiledgex.net" {
		t.Errorf("FindCloudlet: got %+v", found)
	}

	for i := 0; i < 2; i++ {
		verified, err := c.VerifyLocation(ctx, client.VerifyLocationParams{Location: &loc})
		if err != nil {
			t.Fatalf("VerifyLocation #%d: %v", i, err)
		}
		if err := client.CheckStatus(verified); err != nil {
			t.Errorf("VerifyLocation #%d: %v", i, err)
		}
	}

	netLoc, err := c.GetLocation(ctx, client.GetLocationParams{})
	if err != nil || netLoc.Status != dme.LocFound {
		t.Errorf("GetLocation: got %+v, %v", netLoc, err)
	}

	list, err := c.GetAppInstList(ctx, client.AppInstListParams{Location: &loc})
	if err != nil || len(list.Cloudlets) != 3 || list.Cloudlets[0].CloudletName != "berlin-main" {
		t.Errorf("GetAppInstList: got %+v, %v", list, err)
	}

	fqdns, err := c.GetFqdnList(ctx)
	if err != nil || fqdns.Status != dme.FLSuccess {
		t.Errorf("GetFqdnList: got %+v, %v", fqdns, err)
	}

	group, err := c.AddToLocationGroup(ctx, client.LocationGroupParams{GroupID: 42, CommType: dme.DlgSecure})
	if err != nil || group.Status != dme.RSSuccess || group.GroupCookie == "" {
		t.Errorf("AddToLocationGroup: got %+v, %v", group, err)
	}

	positions := make([]dme.QosPosition, 5)
	for i := range positions {
		p := dme.Loc{Latitude: 52.5 + float64(i)*0.2, Longitude: 13.4}
		positions[i] = dme.QosPosition{PositionID: uint64(100 + i), GPSLocation: &p}
	}
	qos, err := c.GetQosPositionKpi(ctx, positions)
	if err != nil {
		t.Fatalf("GetQosPositionKpi: %v", err)
	}
	if qos.Result == nil || len(qos.Result.PositionResults) != 5 || qos.Result.PositionResults[4].PositionID != 104 {
		t.Errorf("GetQosPositionKpi: got %+v", qos)
	}
}

// ── REST ─────────────────────────────────────────────────────────────────

func TestIntegration_REST(t *testing.T) {
	s := startSim(t, dmesim.DefaultConfig())
	runSession(t, s.restClient(t))
}

func TestIntegration_REST_unknownAppKeepsNoSession(t *testing.T) {
	s := startSim(t, dmesim.DefaultConfig())
	c := s.restClient(t)

	reply, err := c.RegisterClient(context.Background(), client.RegisterParams{DevName: "Nobody", AppName: "Nothing"})
	if err != nil {
		t.Fatalf("RegisterClient: %v", err)
	}
	if reply.Status != dme.RSFail {
		t.Errorf("status: got %v", reply.Status)
	}
	_, err = c.GetLocation(context.Background(), client.GetLocationParams{})
	if client.Classify(err) != client.KindPrecondition {
		t.Errorf("GetLocation without session: got %v", err)
	}
}

func TestIntegration_REST_foreignCookie(t *testing.T) {
	home := startSim(t, dmesim.DefaultConfig())
	otherCfg := dmesim.DefaultConfig()
	otherCfg.Cookie.Secret = "someone-else"
	other := startSim(t, otherCfg)

	c := home.restClient(t)
	registerDemo(t, c)

	target := other.restTarget(t)
	_, err := c.GetLocation(context.Background(), client.GetLocationParams{}, client.WithEndpoint(target.Host, target.Port))
	var te *client.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("want *TransportError, got %T: %v", err, err)
	}
	if te.StatusCode != 401 || te.Code != 16 || te.Message != "invalid session cookie" {
		t.Errorf("transport error: got status %d code %d message %q", te.StatusCode, te.Code, te.Message)
	}
}

func TestIntegration_REST_concurrent(t *testing.T) {
	s := startSim(t, dmesim.DefaultConfig())
	c := s.restClient(t)
	registerDemo(t, c)

	const n = 12
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			loc := berlin
			ctx := context.Background()
			switch i % 3 {
			case 0:
				var r *dme.FindCloudletReply
				if r, errs[i] = c.FindCloudlet(ctx, client.FindCloudletParams{Location: &loc}); errs[i] == nil {
					errs[i] = client.CheckStatus(r)
				}
			case 1:
				var r *dme.VerifyLocationReply
				if r, errs[i] = c.VerifyLocation(ctx, client.VerifyLocationParams{Location: &loc}); errs[i] == nil {
					errs[i] = client.CheckStatus(r)
				}
			case 2:
				var r *dme.GetLocationReply
				if r, errs[i] = c.GetLocation(ctx, client.GetLocationParams{}); errs[i] == nil {
					errs[i] = client.CheckStatus(r)
				}
			}
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("call %d: %v", i, err)
		}
	}
}

// ── RPC ──────────────────────────────────────────────────────────────────

func TestIntegration_RPC(t *testing.T) {
	for _, subtype := range []string{codec.JSONName, codec.CBORName} {
		t.Run(subtype, func(t *testing.T) {
			s := startSim(t, dmesim.DefaultConfig())
			runSession(t, s.rpcClient(t, subtype))
		})
	}
}

func TestIntegration_RPC_statusMapping(t *testing.T) {
	s := startSim(t, dmesim.DefaultConfig())
	c := s.rpcClient(t, codec.JSONName)
	registerDemo(t, c)

	_, err := c.FindCloudlet(context.Background(), client.FindCloudletParams{Location: &dme.Loc{Latitude: 1, Longitude: 2}},
		client.WithEndpoint(s.rpc.Host, s.rpc.Port))
	if err != nil {
		t.Fatalf("FindCloudlet: %v", err)
	}

	otherCfg := dmesim.DefaultConfig()
	otherCfg.Cookie.Secret = "someone-else"
	other := startSim(t, otherCfg)
	_, err = c.GetFqdnList(context.Background(), client.WithEndpoint(other.rpc.Host, other.rpc.Port))
	var te *client.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("want *TransportError, got %T: %v", err, err)
	}
	if te.StatusCode != 401 || te.Message != "invalid session cookie" {
		t.Errorf("transport error: got status %d message %q", te.StatusCode, te.Message)
	}
}
