package dmesim

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mobiledgex/matchingengine/pkg/dme"
)

// verifyRangesKm are the accuracy bands VerifyLocation reports, tightest first.
var verifyRangesKm = []float64{2, 10, 100}

// Engine answers matching engine requests against the configured
// inventory. It is safe for concurrent use; the REST and RPC front ends
// share one Engine.
type Engine struct {
	cfg     *Config
	inv     *inventory
	cookies *CookieIssuer
	tokens  *tokenStore
	metrics *Metrics
	logger  *zap.Logger

	mu             sync.RWMutex
	tokenServerURL string
	groups         map[uint64]map[string]string // lg_id -> cookie jti -> group cookie
}

// NewEngine validates cfg and builds an Engine. logger and m may be nil.
func NewEngine(cfg *Config, logger *zap.Logger, m *Metrics) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Engine{
		cfg:            cfg,
		inv:            newInventory(cfg.Apps, cfg.Cloudlets),
		cookies:        NewCookieIssuer(cfg.Cookie.Secret, cfg.Cookie.TTL),
		tokens:         newTokenStore(cfg.TokenServer.TTL),
		metrics:        m,
		logger:         logger,
		tokenServerURL: cfg.TokenServer.URL,
		groups:         make(map[uint64]map[string]string),
	}, nil
}

// Metrics returns the engine's collectors.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// SetTokenServerURL sets the token server address handed out by
// RegisterClient, typically the REST listener's /its endpoint once its
// address is known.
func (e *Engine) SetTokenServerURL(u string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tokenServerURL = u
}

// TokenServerURI is the token_server_uri of a RegisterClient reply.
func (e *Engine) TokenServerURI() string {
	e.mu.RLock()
	base := e.tokenServerURL
	e.mu.RUnlock()
	if base == "" {
		return ""
	}
	return base + "?followURL=" + url.QueryEscape(e.cfg.TokenServer.FollowURL)
}

// IssueVerifyToken mints a verification token and returns the redirect
// target carrying it. followURL overrides the configured follow URL when set.
func (e *Engine) IssueVerifyToken(followURL string) string {
	if followURL == "" {
		followURL = e.cfg.TokenServer.FollowURL
	}
	tok := e.tokens.issue()
	e.metrics.tokensIssued.Inc()
	e.logger.Debug("verify token issued", zap.Int("outstanding", e.tokens.len()))

	sep := "?"
	if strings.Contains(followURL, "?") {
		sep = "&"
	}
	return followURL + sep + "dt-id=" + tok
}

// StartTokenEviction periodically drops expired verification tokens until
// ctx is done.
func (e *Engine) StartTokenEviction(ctx context.Context, interval time.Duration) {
	if interval == 0 {
		interval = time.Minute
	}
	e.tokens.startEviction(ctx, interval, func(n int) {
		e.metrics.tokensEvicted.Add(float64(n))
		e.logger.Debug("token eviction", zap.Int("evicted", n))
	})
}

// ── Peer address ─────────────────────────────────────────────────────────

type peerKey struct{}

// WithPeer records the caller's address for session cookies.
func WithPeer(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, peerKey{}, ip)
}

func peerFrom(ctx context.Context) string {
	ip, _ := ctx.Value(peerKey{}).(string)
	return ip
}

// ── Helpers ──────────────────────────────────────────────────────────────

func (e *Engine) session(cookie string) (*CookieClaims, error) {
	if cookie == "" {
		return nil, status.Error(codes.Unauthenticated, "missing session cookie")
	}
	claims, err := e.cookies.Verify(cookie)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid session cookie")
	}
	return claims, nil
}

func (e *Engine) carrier(name string) string {
	if name != "" {
		return name
	}
	return e.cfg.Carrier
}

func requireLoc(loc *dme.Loc) (dme.Loc, error) {
	if loc == nil {
		return dme.Loc{}, status.Error(codes.InvalidArgument, "missing GPS location")
	}
	if err := loc.Validate(); err != nil {
		return dme.Loc{}, status.Error(codes.InvalidArgument, err.Error())
	}
	return *loc, nil
}

// ── Operations ───────────────────────────────────────────────────────────

// RegisterClient opens a session. Unknown apps and bad auth tokens get an
// RS_FAIL reply rather than an error.
func (e *Engine) RegisterClient(ctx context.Context, req *dme.RegisterClientRequest) (*dme.RegisterClientReply, error) {
	if req.DevName == "" || req.AppName == "" {
		return nil, status.Error(codes.InvalidArgument, "dev name and app name are required")
	}
	reply := &dme.RegisterClientReply{Ver: dme.APIVersion, Status: dme.RSFail}

	app, ok := e.inv.app(req.DevName, req.AppName, req.AppVers)
	if !ok {
		e.logger.Info("register: unknown app",
			zap.String("dev", req.DevName), zap.String("app", req.AppName), zap.String("vers", req.AppVers))
		e.metrics.sessionsTotal.WithLabelValues(reply.Status.String()).Inc()
		return reply, nil
	}
	if app.AuthToken != "" && req.AuthToken != app.AuthToken {
		e.logger.Info("register: auth token mismatch", zap.String("app", req.AppName))
		e.metrics.sessionsTotal.WithLabelValues(reply.Status.String()).Inc()
		return reply, nil
	}

	cookie, err := e.cookies.Issue(app, peerFrom(ctx))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	reply.Status = dme.RSSuccess
	reply.SessionCookie = cookie
	reply.TokenServerURI = e.TokenServerURI()
	e.metrics.sessionsTotal.WithLabelValues(reply.Status.String()).Inc()
	e.logger.Info("client registered",
		zap.String("app", app.key()), zap.String("peer", peerFrom(ctx)))
	return reply, nil
}

// FindCloudlet picks the nearest cloudlet running the session's app.
func (e *Engine) FindCloudlet(_ context.Context, req *dme.FindCloudletRequest) (*dme.FindCloudletReply, error) {
	claims, err := e.session(req.SessionCookie)
	if err != nil {
		return nil, err
	}
	loc, err := requireLoc(req.GPSLocation)
	if err != nil {
		return nil, err
	}
	appName, appVers := claims.AppName, claims.AppVers
	if req.AppName != "" {
		appName, appVers = req.AppName, req.AppVers
	}

	reply := &dme.FindCloudletReply{Ver: dme.APIVersion, Status: dme.FindNotFound}
	found := e.inv.hosting(appName, e.carrier(req.CarrierName), loc)
	if len(found) == 0 {
		return reply, nil
	}
	nearest := found[0]
	inst := nearest.Appinstances[0]
	for _, ai := range nearest.Appinstances {
		if ai.AppVers == appVers {
			inst = ai
			break
		}
	}
	reply.Status = dme.FindFound
	reply.FQDN = inst.FQDN
	reply.Ports = inst.Ports
	reply.CloudletLocation = nearest.GPSLocation
	return reply, nil
}

// VerifyLocation compares the device's reported fix with the network's
// view. The verification token is consumed whether or not it verifies.
func (e *Engine) VerifyLocation(_ context.Context, req *dme.VerifyLocationRequest) (*dme.VerifyLocationReply, error) {
	if _, err := e.session(req.SessionCookie); err != nil {
		return nil, err
	}
	if req.VerifyLocToken == "" {
		return nil, status.Error(codes.InvalidArgument, "missing verify location token")
	}
	loc, err := requireLoc(req.GPSLocation)
	if err != nil {
		return nil, err
	}

	reply := &dme.VerifyLocationReply{Ver: dme.APIVersion}
	defer func() { e.metrics.verifications.WithLabelValues(reply.GPSLocationStatus.String()).Inc() }()

	if !e.tokens.consume(req.VerifyLocToken) {
		reply.GPSLocationStatus = dme.LocErrorUnauthorized
		return reply, nil
	}

	device := e.cfg.DeviceLocation.Loc()
	if loc.CellID(towerLevel) == device.CellID(towerLevel) {
		reply.TowerStatus = dme.ConnectedToSpecifiedTower
	} else {
		reply.TowerStatus = dme.NotConnectedToSpecifiedTower
	}

	d := dme.DistanceKm(loc, device)
	reply.GPSLocationStatus = dme.LocMismatchSameCountry
	for _, r := range verifyRangesKm {
		if d <= r {
			reply.GPSLocationStatus = dme.LocVerified
			reply.GPSLocationAccuracyKm = r
			break
		}
	}
	return reply, nil
}

// GetLocation returns the network's view of the device.
func (e *Engine) GetLocation(_ context.Context, req *dme.GetLocationRequest) (*dme.GetLocationReply, error) {
	if _, err := e.session(req.SessionCookie); err != nil {
		return nil, err
	}
	device := e.cfg.DeviceLocation.Loc()
	return &dme.GetLocationReply{
		Ver:             dme.APIVersion,
		Status:          dme.LocFound,
		CarrierName:     e.carrier(req.CarrierName),
		Tower:           uint64(device.CellID(towerLevel)),
		NetworkLocation: &device,
	}, nil
}

// GetAppInstList lists the session app's cloudlets nearest first.
func (e *Engine) GetAppInstList(_ context.Context, req *dme.AppInstListRequest) (*dme.AppInstListReply, error) {
	claims, err := e.session(req.SessionCookie)
	if err != nil {
		return nil, err
	}
	loc, err := requireLoc(req.GPSLocation)
	if err != nil {
		return nil, err
	}
	return &dme.AppInstListReply{
		Ver:       dme.APIVersion,
		Status:    dme.AISuccess,
		Cloudlets: e.inv.hosting(claims.AppName, e.carrier(req.CarrierName), loc),
	}, nil
}

// GetFqdnList lists the FQDNs of every known app.
func (e *Engine) GetFqdnList(_ context.Context, req *dme.FqdnListRequest) (*dme.FqdnListReply, error) {
	if _, err := e.session(req.SessionCookie); err != nil {
		return nil, err
	}
	return &dme.FqdnListReply{Ver: dme.APIVersion, Status: dme.FLSuccess, AppFqdns: e.inv.fqdns()}, nil
}

// AddUserToGroup joins the session to a dynamic location group. Joining
// the same group twice returns the same group cookie.
func (e *Engine) AddUserToGroup(_ context.Context, req *dme.DynamicLocGroupRequest) (*dme.DynamicLocGroupReply, error) {
	claims, err := e.session(req.SessionCookie)
	if err != nil {
		return nil, err
	}
	if req.CommType < dme.DlgUndefined || req.CommType > dme.DlgOpen {
		return nil, status.Error(codes.InvalidArgument, "unrecognized comm type")
	}
	if req.LgID == 0 {
		return &dme.DynamicLocGroupReply{Ver: dme.APIVersion, Status: dme.RSFail, ErrorCode: uint32(codes.InvalidArgument)}, nil
	}

	e.mu.Lock()
	members, ok := e.groups[req.LgID]
	if !ok {
		members = make(map[string]string)
		e.groups[req.LgID] = members
	}
	groupCookie, ok := members[claims.ID]
	if !ok {
		groupCookie = uuid.NewString()
		members[claims.ID] = groupCookie
	}
	e.mu.Unlock()

	return &dme.DynamicLocGroupReply{Ver: dme.APIVersion, Status: dme.RSSuccess, GroupCookie: groupCookie}, nil
}

// GetQosPositionKpi predicts throughput and latency for each position from
// its distance to the nearest cloudlet. A position without a usable
// location yields an error envelope instead of a result.
func (e *Engine) GetQosPositionKpi(_ context.Context, req *dme.QosPositionKpiRequest) (*dme.QosPositionKpiStreamReply, error) {
	claims, err := e.session(req.SessionCookie)
	if err != nil {
		return nil, err
	}
	if len(req.Positions) == 0 {
		return nil, status.Error(codes.InvalidArgument, "no positions")
	}

	result := &dme.QosPositionKpiReply{Ver: dme.APIVersion, Status: dme.RSSuccess}
	for _, p := range req.Positions {
		if p.GPSLocation == nil || p.GPSLocation.Validate() != nil {
			return &dme.QosPositionKpiStreamReply{Error: &dme.StreamError{
				Code:    int32(codes.InvalidArgument),
				Message: fmt.Sprintf("position %d: missing or invalid location", p.PositionID),
			}}, nil
		}
		d := 1000.0
		if found := e.inv.hosting(claims.AppName, "", *p.GPSLocation); len(found) > 0 {
			d = found[0].Distance
		}
		result.PositionResults = append(result.PositionResults, kpiAt(p, d))
	}
	return &dme.QosPositionKpiStreamReply{Result: result}, nil
}

// kpiAt models KPIs degrading linearly with distance to the cloudlet.
func kpiAt(p dme.QosPosition, distanceKm float64) dme.QosPositionResult {
	latency := float32(5 + distanceKm*0.05)
	dl := float32(max(10, 300-distanceKm*0.5))
	ul := dl / 4
	loc := *p.GPSLocation
	return dme.QosPositionResult{
		PositionID:          p.PositionID,
		GPSLocation:         &loc,
		DLUserThroughputMin: dl * 0.5,
		DLUserThroughputAvg: dl,
		DLUserThroughputMax: dl * 1.5,
		ULUserThroughputMin: ul * 0.5,
		ULUserThroughputAvg: ul,
		ULUserThroughputMax: ul * 1.5,
		LatencyMin:          latency * 0.8,
		LatencyAvg:          latency,
		LatencyMax:          latency * 1.5,
	}
}
