package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mobiledgex/matchingengine/pkg/dme"
)

// RegisterParams identifies the application instance opening a session.
type RegisterParams struct {
	CarrierName string // region to register with; see WithRegionProvider
	DevName     string
	AppName     string
	AppVers     string
	AuthToken   string // optional; see WithAuthTokenSource
}

// RegisterClient opens a session. On RS_SUCCESS the reply's session cookie
// and token server URI become the client's session, replacing any earlier
// one. Any other status is returned as data with a nil error and the
// previous session, if any, stays in place.
func (c *Client) RegisterClient(ctx context.Context, p RegisterParams, opts ...CallOption) (*dme.RegisterClientReply, error) {
	api := dme.RegisterClientAPI
	if p.DevName == "" || p.AppName == "" {
		return nil, &PreconditionError{API: api.Name, Err: errors.New("dev name and app name are required")}
	}
	carrier, err := c.carrier(ctx, api, p.CarrierName, nil)
	if err != nil {
		return nil, err
	}

	cc := c.callConfig(opts)
	ctx, cancel := c.callContext(ctx, cc)
	defer cancel()
	target := c.target(carrier, cc)

	authToken := p.AuthToken
	if authToken == "" && c.authTokens != nil {
		tok, err := c.authTokens.Token()
		if err != nil {
			return nil, transportFailure(ctx, api.Name, "auth token source", fmt.Errorf("fetch auth token: %w", err))
		}
		authToken = tok.AccessToken
	}

	req := &dme.RegisterClientRequest{
		Ver:         dme.APIVersion,
		CarrierName: carrier,
		DevName:     p.DevName,
		AppName:     p.AppName,
		AppVers:     p.AppVers,
		AuthToken:   authToken,
	}
	reply := new(dme.RegisterClientReply)
	if err := c.invoke(ctx, api, target, req, reply); err != nil {
		return nil, err
	}

	if reply.Status != dme.RSSuccess {
		c.logger.Info("registration refused",
			zap.String("status", reply.StatusName()),
			zap.String("app", p.AppName),
			zap.Stringer("target", target),
		)
		return reply, nil
	}
	if reply.SessionCookie == "" {
		return reply, &ProtocolError{API: api.Name, Status: reply.StatusName(), Reason: "success reply without session cookie"}
	}

	c.session.store(Session{
		SessionCookie:  reply.SessionCookie,
		TokenServerURI: reply.TokenServerURI,
		CarrierName:    carrier,
		EstablishedAt:  time.Now(),
	})
	c.logger.Info("registered",
		zap.String("dev", p.DevName),
		zap.String("app", p.AppName),
		zap.String("carrier", carrier),
		zap.Stringer("target", target),
	)
	return reply, nil
}

// FindCloudletParams selects the carrier and position for FindCloudlet.
// The app identity fields are optional; the session cookie already names
// the app.
type FindCloudletParams struct {
	CarrierName string
	Location    *dme.Loc // nil consults the LocationProvider
	DevName     string
	AppName     string
	AppVers     string
}

// FindCloudlet asks for the closest cloudlet running the session's app. A
// FIND_FOUND reply without an FQDN is returned together with a
// *ProtocolError.
func (c *Client) FindCloudlet(ctx context.Context, p FindCloudletParams, opts ...CallOption) (*dme.FindCloudletReply, error) {
	api := dme.FindCloudletAPI
	sess, err := c.activeSession(api)
	if err != nil {
		return nil, err
	}
	carrier, err := c.carrier(ctx, api, p.CarrierName, &sess)
	if err != nil {
		return nil, err
	}
	loc, err := c.location(ctx, api, p.Location)
	if err != nil {
		return nil, err
	}

	req := &dme.FindCloudletRequest{
		Ver:           dme.APIVersion,
		SessionCookie: sess.SessionCookie,
		CarrierName:   carrier,
		GPSLocation:   loc,
		DevName:       p.DevName,
		AppName:       p.AppName,
		AppVers:       p.AppVers,
	}
	reply := new(dme.FindCloudletReply)
	if err := c.send(ctx, api, carrier, opts, req, reply); err != nil {
		return nil, err
	}
	if reply.Status == dme.FindFound && reply.FQDN == "" {
		return reply, &ProtocolError{API: api.Name, Status: reply.StatusName(), Reason: "found reply without FQDN"}
	}
	return reply, nil
}

// VerifyLocationParams selects the carrier and the position to verify.
type VerifyLocationParams struct {
	CarrierName string
	Location    *dme.Loc // nil consults the LocationProvider
}

// VerifyLocation asks the carrier to confirm the device's GPS fix. A fresh
// verification token is fetched from the session's token server for every
// call and used exactly once; the fetch completes before the request is
// sent and shares the call's deadline.
func (c *Client) VerifyLocation(ctx context.Context, p VerifyLocationParams, opts ...CallOption) (*dme.VerifyLocationReply, error) {
	api := dme.VerifyLocationAPI
	sess, err := c.activeSession(api)
	if err != nil {
		return nil, err
	}
	if sess.TokenServerURI == "" {
		return nil, &PreconditionError{API: api.Name, Err: errors.New("session has no token server URI")}
	}
	carrier, err := c.carrier(ctx, api, p.CarrierName, &sess)
	if err != nil {
		return nil, err
	}
	loc, err := c.location(ctx, api, p.Location)
	if err != nil {
		return nil, err
	}

	cc := c.callConfig(opts)
	ctx, cancel := c.callContext(ctx, cc)
	defer cancel()

	token, err := c.tokens.Resolve(ctx, sess.TokenServerURI)
	c.metrics.observeToken(err)
	if err != nil {
		return nil, err
	}

	req := &dme.VerifyLocationRequest{
		Ver:            dme.APIVersion,
		SessionCookie:  sess.SessionCookie,
		CarrierName:    carrier,
		GPSLocation:    loc,
		VerifyLocToken: token,
	}
	reply := new(dme.VerifyLocationReply)
	if err := c.invoke(ctx, api, c.target(carrier, cc), req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// GetLocationParams selects the carrier for GetLocation.
type GetLocationParams struct {
	CarrierName string
}

// GetLocation asks the carrier where the network places the device.
func (c *Client) GetLocation(ctx context.Context, p GetLocationParams, opts ...CallOption) (*dme.GetLocationReply, error) {
	api := dme.GetLocationAPI
	sess, err := c.activeSession(api)
	if err != nil {
		return nil, err
	}
	carrier, err := c.carrier(ctx, api, p.CarrierName, &sess)
	if err != nil {
		return nil, err
	}

	req := &dme.GetLocationRequest{
		Ver:           dme.APIVersion,
		SessionCookie: sess.SessionCookie,
		CarrierName:   carrier,
	}
	reply := new(dme.GetLocationReply)
	if err := c.send(ctx, api, carrier, opts, req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// AppInstListParams selects the carrier and position for GetAppInstList.
type AppInstListParams struct {
	CarrierName string
	Location    *dme.Loc // nil consults the LocationProvider
}

// GetAppInstList lists the cloudlets running the session's app, nearest
// first.
func (c *Client) GetAppInstList(ctx context.Context, p AppInstListParams, opts ...CallOption) (*dme.AppInstListReply, error) {
	api := dme.GetAppInstListAPI
	sess, err := c.activeSession(api)
	if err != nil {
		return nil, err
	}
	carrier, err := c.carrier(ctx, api, p.CarrierName, &sess)
	if err != nil {
		return nil, err
	}
	loc, err := c.location(ctx, api, p.Location)
	if err != nil {
		return nil, err
	}

	req := &dme.AppInstListRequest{
		Ver:           dme.APIVersion,
		SessionCookie: sess.SessionCookie,
		CarrierName:   carrier,
		GPSLocation:   loc,
	}
	reply := new(dme.AppInstListReply)
	if err := c.send(ctx, api, carrier, opts, req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// GetFqdnList lists the FQDNs of the apps visible to the session.
func (c *Client) GetFqdnList(ctx context.Context, opts ...CallOption) (*dme.FqdnListReply, error) {
	api := dme.GetFqdnListAPI
	sess, err := c.activeSession(api)
	if err != nil {
		return nil, err
	}

	req := &dme.FqdnListRequest{
		Ver:           dme.APIVersion,
		SessionCookie: sess.SessionCookie,
	}
	reply := new(dme.FqdnListReply)
	if err := c.send(ctx, api, sess.CarrierName, opts, req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// LocationGroupParams names the dynamic location group to join.
type LocationGroupParams struct {
	GroupID  uint64
	CommType dme.DlgCommType
	UserData string
}

// AddToLocationGroup adds the session to a dynamic location group.
func (c *Client) AddToLocationGroup(ctx context.Context, p LocationGroupParams, opts ...CallOption) (*dme.DynamicLocGroupReply, error) {
	api := dme.DynamicLocGroupAPI
	sess, err := c.activeSession(api)
	if err != nil {
		return nil, err
	}
	if p.CommType < dme.DlgUndefined || p.CommType > dme.DlgOpen {
		return nil, &PreconditionError{API: api.Name, Err: fmt.Errorf("invalid comm type %v", p.CommType)}
	}

	req := &dme.DynamicLocGroupRequest{
		Ver:           dme.APIVersion,
		SessionCookie: sess.SessionCookie,
		LgID:          p.GroupID,
		CommType:      p.CommType,
		UserData:      p.UserData,
	}
	reply := new(dme.DynamicLocGroupReply)
	if err := c.send(ctx, api, sess.CarrierName, opts, req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// GetQosPositionKpi asks for predicted throughput and latency along an
// ordered list of positions. The reply carries either Result or Error; a
// reply with both or neither is returned with a *ProtocolError.
func (c *Client) GetQosPositionKpi(ctx context.Context, positions []dme.QosPosition, opts ...CallOption) (*dme.QosPositionKpiStreamReply, error) {
	api := dme.QosPositionKpiAPI
	sess, err := c.activeSession(api)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, &PreconditionError{API: api.Name, Err: errors.New("at least one position is required")}
	}
	probes := make([]dme.QosPosition, len(positions))
	for i, pos := range positions {
		if pos.GPSLocation == nil {
			return nil, &PreconditionError{API: api.Name, Err: fmt.Errorf("position %d has no location", pos.PositionID)}
		}
		if err := pos.GPSLocation.Validate(); err != nil {
			return nil, &PreconditionError{API: api.Name, Err: fmt.Errorf("position %d: %w", pos.PositionID, err)}
		}
		loc := *pos.GPSLocation
		probes[i] = dme.QosPosition{PositionID: pos.PositionID, GPSLocation: &loc}
	}

	req := &dme.QosPositionKpiRequest{
		Ver:           dme.APIVersion,
		SessionCookie: sess.SessionCookie,
		Positions:     probes,
	}
	reply := new(dme.QosPositionKpiStreamReply)
	if err := c.send(ctx, api, sess.CarrierName, opts, req, reply); err != nil {
		return nil, err
	}
	if !reply.WellFormed() {
		return reply, &ProtocolError{API: api.Name, Status: reply.StatusName(), Reason: "reply must carry exactly one of result and error"}
	}
	return reply, nil
}

// send runs one request under the call's options.
func (c *Client) send(ctx context.Context, api dme.API, carrier string, opts []CallOption, req, reply any) error {
	cc := c.callConfig(opts)
	ctx, cancel := c.callContext(ctx, cc)
	defer cancel()
	return c.invoke(ctx, api, c.target(carrier, cc), req, reply)
}
