package dmesim_test

import (
	"context"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mobiledgex/matchingengine/internal/dmesim"
	"github.com/mobiledgex/matchingengine/pkg/client"
	"github.com/mobiledgex/matchingengine/pkg/dme"
)

var (
	demoApp = dme.RegisterClientRequest{
		Ver:     dme.APIVersion,
		DevName: "MobiledgeX",
		AppName: "MobiledgeX SDK Demo",
		AppVers: "2.0",
	}
	berlin  = dme.Loc{Latitude: 52.5200, Longitude: 13.4050}
	pankow  = dme.Loc{Latitude: 52.6000, Longitude: 13.4050}
	munich  = dme.Loc{Latitude: 48.1351, Longitude: 11.5820}
	hamburg = dme.Loc{Latitude: 53.5500, Longitude: 10.0000}
)

func newEngine(t *testing.T) *dmesim.Engine {
	t.Helper()
	e, err := dmesim.NewEngine(dmesim.DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	e.SetTokenServerURL("https://sim.example/its")
	return e
}

func cookieFor(t *testing.T, e *dmesim.Engine) string {
	t.Helper()
	req := demoApp
	reply, err := e.RegisterClient(context.Background(), &req)
	if err != nil {
		t.Fatalf("RegisterClient: %v", err)
	}
	if reply.Status != dme.RSSuccess {
		t.Fatalf("RegisterClient status: got %v", reply.Status)
	}
	return reply.SessionCookie
}

func verifyToken(t *testing.T, e *dmesim.Engine) string {
	t.Helper()
	tok, err := client.ParseToken(e.IssueVerifyToken(""))
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	return tok
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if status.Code(err) != code {
		t.Errorf("error code: got %v (%v), want %v", status.Code(err), err, code)
	}
}

// ── RegisterClient ───────────────────────────────────────────────────────

func TestRegisterClient(t *testing.T) {
	e := newEngine(t)
	req := demoApp
	reply, err := e.RegisterClient(context.Background(), &req)
	if err != nil {
		t.Fatalf("RegisterClient: %v", err)
	}
	if reply.Status != dme.RSSuccess || reply.SessionCookie == "" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	want := "https://sim.example/its?followURL=https%3A%2F%2Fdme.mobiledgex.net%2FverifyLoc"
	if reply.TokenServerURI != want {
		t.Errorf("token server URI: got %q, want %q", reply.TokenServerURI, want)
	}
}

func TestRegisterClient_unknownApp(t *testing.T) {
	e := newEngine(t)
	req := demoApp
	req.AppVers = "9.9"
	reply, err := e.RegisterClient(context.Background(), &req)
	if err != nil {
		t.Fatalf("RegisterClient: %v", err)
	}
	if reply.Status != dme.RSFail || reply.SessionCookie != "" {
		t.Errorf("unexpected reply: %+v", reply)
	}
}

func TestRegisterClient_authToken(t *testing.T) {
	cfg := dmesim.DefaultConfig()
	cfg.Apps[0].AuthToken = "s3cret"
	e, err := dmesim.NewEngine(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	req := demoApp
	reply, err := e.RegisterClient(context.Background(), &req)
	if err != nil || reply.Status != dme.RSFail {
		t.Errorf("without token: got %+v, %v; want RS_FAIL", reply, err)
	}
	req.AuthToken = "s3cret"
	reply, err = e.RegisterClient(context.Background(), &req)
	if err != nil || reply.Status != dme.RSSuccess {
		t.Errorf("with token: got %+v, %v; want RS_SUCCESS", reply, err)
	}
}

func TestRegisterClient_missingIdentity(t *testing.T) {
	e := newEngine(t)
	_, err := e.RegisterClient(context.Background(), &dme.RegisterClientRequest{AppName: "x"})
	wantCode(t, err, codes.InvalidArgument)
}

func TestSessionCookie_required(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.GetLocation(ctx, &dme.GetLocationRequest{})
	wantCode(t, err, codes.Unauthenticated)
	_, err = e.GetFqdnList(ctx, &dme.FqdnListRequest{SessionCookie: "not-a-jwt"})
	wantCode(t, err, codes.Unauthenticated)
}

// ── FindCloudlet ─────────────────────────────────────────────────────────

func TestFindCloudlet_nearest(t *testing.T) {
	e := newEngine(t)
	cookie := cookieFor(t, e)

	cases := []struct {
		name string
		loc  dme.Loc
		want string
	}{
		{"berlin", berlin, "berlin-main"},
		{"munich", munich, "munich-main"},
		{"hamburg", hamburg, "hamburg-main"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			loc := tc.loc
			reply, err := e.FindCloudlet(context.Background(), &dme.FindCloudletRequest{SessionCookie: cookie, GPSLocation: &loc})
			if err != nil {
				t.Fatalf("FindCloudlet: %v", err)
			}
			if reply.Status != dme.FindFound {
				t.Fatalf("status: got %v", reply.Status)
			}
			want := "mobiledgexsdkdemo." + tc.want + ".tdg.mobiledgex.net"
			if reply.FQDN != want {
				t.Errorf("FQDN: got %q, want %q", reply.FQDN, want)
			}
			if len(reply.Ports) != 2 || reply.CloudletLocation == nil {
				t.Errorf("ports/location missing: %+v", reply)
			}
		})
	}
}

func TestFindCloudlet_otherCarrier(t *testing.T) {
	e := newEngine(t)
	loc := berlin
	reply, err := e.FindCloudlet(context.Background(), &dme.FindCloudletRequest{
		SessionCookie: cookieFor(t, e),
		CarrierName:   "att",
		GPSLocation:   &loc,
	})
	if err != nil {
		t.Fatalf("FindCloudlet: %v", err)
	}
	if reply.Status != dme.FindNotFound || reply.FQDN != "" {
		t.Errorf("unexpected reply: %+v", reply)
	}
}

func TestFindCloudlet_badLocation(t *testing.T) {
	e := newEngine(t)
	cookie := cookieFor(t, e)
	_, err := e.FindCloudlet(context.Background(), &dme.FindCloudletRequest{SessionCookie: cookie})
	wantCode(t, err, codes.InvalidArgument)
	_, err = e.FindCloudlet(context.Background(), &dme.FindCloudletRequest{
		SessionCookie: cookie,
		GPSLocation:   &dme.Loc{Latitude: 95},
	})
	wantCode(t, err, codes.InvalidArgument)
}

// ── VerifyLocation ───────────────────────────────────────────────────────

func TestVerifyLocation_ranges(t *testing.T) {
	e := newEngine(t)
	cookie := cookieFor(t, e)

	cases := []struct {
		name     string
		loc      dme.Loc
		status   dme.GPSLocationStatus
		tower    dme.TowerStatus // TowerUnknown skips the check
		accuracy float64
	}{
		{"on device", berlin, dme.LocVerified, dme.ConnectedToSpecifiedTower, 2},
		{"nine km", pankow, dme.LocVerified, dme.TowerUnknown, 10},
		{"munich", munich, dme.LocMismatchSameCountry, dme.NotConnectedToSpecifiedTower, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			loc := tc.loc
			reply, err := e.VerifyLocation(context.Background(), &dme.VerifyLocationRequest{
				SessionCookie:  cookie,
				GPSLocation:    &loc,
				VerifyLocToken: verifyToken(t, e),
			})
			if err != nil {
				t.Fatalf("VerifyLocation: %v", err)
			}
			if reply.GPSLocationStatus != tc.status {
				t.Errorf("gps status: got %v, want %v", reply.GPSLocationStatus, tc.status)
			}
			if reply.GPSLocationAccuracyKm != tc.accuracy {
				t.Errorf("accuracy: got %v, want %v", reply.GPSLocationAccuracyKm, tc.accuracy)
			}
			if tc.tower != dme.TowerUnknown && reply.TowerStatus != tc.tower {
				t.Errorf("tower: got %v, want %v", reply.TowerStatus, tc.tower)
			}
		})
	}
}

func TestVerifyLocation_tokenSingleUse(t *testing.T) {
	e := newEngine(t)
	cookie := cookieFor(t, e)
	tok := verifyToken(t, e)

	verify := func() dme.GPSLocationStatus {
		loc := berlin
		reply, err := e.VerifyLocation(context.Background(), &dme.VerifyLocationRequest{
			SessionCookie: cookie, GPSLocation: &loc, VerifyLocToken: tok,
		})
		if err != nil {
			t.Fatalf("VerifyLocation: %v", err)
		}
		return reply.GPSLocationStatus
	}
	if got := verify(); got != dme.LocVerified {
		t.Errorf("first use: got %v", got)
	}
	if got := verify(); got != dme.LocErrorUnauthorized {
		t.Errorf("second use: got %v, want LOC_ERROR_UNAUTHORIZED", got)
	}
}

func TestVerifyLocation_missingToken(t *testing.T) {
	e := newEngine(t)
	loc := berlin
	_, err := e.VerifyLocation(context.Background(), &dme.VerifyLocationRequest{
		SessionCookie: cookieFor(t, e), GPSLocation: &loc,
	})
	wantCode(t, err, codes.InvalidArgument)
}

func TestIssueVerifyToken_followURL(t *testing.T) {
	e := newEngine(t)
	loc := e.IssueVerifyToken("https://ts.example/cb?x=1")
	tok, err := client.ParseToken(loc)
	if err != nil {
		t.Fatalf("ParseToken(%q): %v", loc, err)
	}
	if want := "https://ts.example/cb?x=1&dt-id=" + tok; loc != want {
		t.Errorf("location: got %q, want %q", loc, want)
	}
	if tok == verifyToken(t, e) {
		t.Error("tokens must differ")
	}
}

// ── Other operations ─────────────────────────────────────────────────────

func TestGetLocation(t *testing.T) {
	e := newEngine(t)
	reply, err := e.GetLocation(context.Background(), &dme.GetLocationRequest{SessionCookie: cookieFor(t, e)})
	if err != nil {
		t.Fatalf("GetLocation: %v", err)
	}
	if reply.Status != dme.LocFound || reply.CarrierName != "tdg" || reply.Tower == 0 {
		t.Errorf("unexpected reply: %+v", reply)
	}
	if reply.NetworkLocation == nil || *reply.NetworkLocation != berlin {
		t.Errorf("network location: got %+v", reply.NetworkLocation)
	}
}

func TestGetAppInstList_ordered(t *testing.T) {
	e := newEngine(t)
	loc := munich
	reply, err := e.GetAppInstList(context.Background(), &dme.AppInstListRequest{SessionCookie: cookieFor(t, e), GPSLocation: &loc})
	if err != nil {
		t.Fatalf("GetAppInstList: %v", err)
	}
	if reply.Status != dme.AISuccess || len(reply.Cloudlets) != 3 {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if reply.Cloudlets[0].CloudletName != "munich-main" {
		t.Errorf("nearest: got %q", reply.Cloudlets[0].CloudletName)
	}
	for i := 1; i < len(reply.Cloudlets); i++ {
		if reply.Cloudlets[i-1].Distance > reply.Cloudlets[i].Distance {
			t.Errorf("cloudlets not ordered by distance: %v", reply.Cloudlets)
		}
	}
}

func TestGetFqdnList(t *testing.T) {
	e := newEngine(t)
	reply, err := e.GetFqdnList(context.Background(), &dme.FqdnListRequest{SessionCookie: cookieFor(t, e)})
	if err != nil {
		t.Fatalf("GetFqdnList: %v", err)
	}
	if reply.Status != dme.FLSuccess || len(reply.AppFqdns) != 1 || len(reply.AppFqdns[0].FQDNs) != 3 {
		t.Errorf("unexpected reply: %+v", reply)
	}
}

func TestAddUserToGroup(t *testing.T) {
	e := newEngine(t)
	cookie := cookieFor(t, e)
	ctx := context.Background()

	first, err := e.AddUserToGroup(ctx, &dme.DynamicLocGroupRequest{SessionCookie: cookie, LgID: 7, CommType: dme.DlgOpen})
	if err != nil {
		t.Fatalf("AddUserToGroup: %v", err)
	}
	if first.Status != dme.RSSuccess || first.GroupCookie == "" {
		t.Fatalf("unexpected reply: %+v", first)
	}
	again, _ := e.AddUserToGroup(ctx, &dme.DynamicLocGroupRequest{SessionCookie: cookie, LgID: 7})
	if again.GroupCookie != first.GroupCookie {
		t.Errorf("rejoin: got cookie %q, want %q", again.GroupCookie, first.GroupCookie)
	}
	other, _ := e.AddUserToGroup(ctx, &dme.DynamicLocGroupRequest{SessionCookie: cookieFor(t, e), LgID: 7})
	if other.GroupCookie == first.GroupCookie {
		t.Error("different sessions must get different group cookies")
	}

	zero, err := e.AddUserToGroup(ctx, &dme.DynamicLocGroupRequest{SessionCookie: cookie})
	if err != nil || zero.Status != dme.RSFail {
		t.Errorf("group 0: got %+v, %v; want RS_FAIL", zero, err)
	}
	_, err = e.AddUserToGroup(ctx, &dme.DynamicLocGroupRequest{SessionCookie: cookie, LgID: 1, CommType: 9})
	wantCode(t, err, codes.InvalidArgument)
}

func TestGetQosPositionKpi(t *testing.T) {
	e := newEngine(t)
	cookie := cookieFor(t, e)
	locs := []dme.Loc{berlin, pankow, hamburg, munich, {Latitude: 50.1109, Longitude: 8.6821}}
	positions := make([]dme.QosPosition, len(locs))
	for i := range locs {
		positions[i] = dme.QosPosition{PositionID: uint64(i + 1), GPSLocation: &locs[i]}
	}

	reply, err := e.GetQosPositionKpi(context.Background(), &dme.QosPositionKpiRequest{SessionCookie: cookie, Positions: positions})
	if err != nil {
		t.Fatalf("GetQosPositionKpi: %v", err)
	}
	if !reply.WellFormed() || reply.Result == nil {
		t.Fatalf("want result envelope, got %+v", reply)
	}
	results := reply.Result.PositionResults
	if len(results) != len(positions) {
		t.Fatalf("results: got %d, want %d", len(results), len(positions))
	}
	for i, r := range results {
		if r.PositionID != uint64(i+1) {
			t.Errorf("result %d: position id %d", i, r.PositionID)
		}
		if !(r.LatencyMin <= r.LatencyAvg && r.LatencyAvg <= r.LatencyMax) {
			t.Errorf("result %d: latency bounds out of order: %+v", i, r)
		}
	}
	// Frankfurt is farther from every cloudlet than central Berlin.
	if results[4].LatencyAvg <= results[0].LatencyAvg {
		t.Errorf("latency should grow with distance: berlin %v, frankfurt %v", results[0].LatencyAvg, results[4].LatencyAvg)
	}
}

func TestGetQosPositionKpi_errorEnvelope(t *testing.T) {
	e := newEngine(t)
	loc := berlin
	reply, err := e.GetQosPositionKpi(context.Background(), &dme.QosPositionKpiRequest{
		SessionCookie: cookieFor(t, e),
		Positions:     []dme.QosPosition{{PositionID: 1, GPSLocation: &loc}, {PositionID: 2}},
	})
	if err != nil {
		t.Fatalf("GetQosPositionKpi: %v", err)
	}
	if !reply.WellFormed() || reply.Error == nil || reply.Error.Code != int32(codes.InvalidArgument) {
		t.Errorf("want error envelope, got %+v", reply)
	}

	_, err = e.GetQosPositionKpi(context.Background(), &dme.QosPositionKpiRequest{SessionCookie: cookieFor(t, e)})
	wantCode(t, err, codes.InvalidArgument)
}
