package dme

import "strings"

// APIVersion is the value sent in every request's ver field.
const APIVersion uint32 = 1

// StatusReply is implemented by every reply message. The status is the only
// authority on whether the reply's payload fields are meaningful.
type StatusReply interface {
	StatusName() string
	Succeeded() bool
}

// RegisterClientRequest opens a session for one application instance.
type RegisterClientRequest struct {
	Ver         uint32 `json:"ver"`
	CarrierName string `json:"carrier_name,omitempty"`
	DevName     string `json:"dev_name"`
	AppName     string `json:"app_name"`
	AppVers     string `json:"app_vers"`
	AuthToken   string `json:"auth_token,omitempty"`
}

// RegisterClientReply carries the session cookie and the token server URI.
type RegisterClientReply struct {
	Ver            uint32      `json:"ver"`
	Status         ReplyStatus `json:"status"`
	SessionCookie  string      `json:"session_cookie,omitempty"`
	TokenServerURI string      `json:"token_server_uri,omitempty"`
}

func (r *RegisterClientReply) StatusName() string { return r.Status.String() }
func (r *RegisterClientReply) Succeeded() bool    { return r.Status == RSSuccess }

// FindCloudletRequest asks for the closest cloudlet running the app.
type FindCloudletRequest struct {
	Ver           uint32 `json:"ver"`
	SessionCookie string `json:"session_cookie"`
	CarrierName   string `json:"carrier_name,omitempty"`
	GPSLocation   *Loc   `json:"gps_location,omitempty"`
	DevName       string `json:"dev_name,omitempty"`
	AppName       string `json:"app_name,omitempty"`
	AppVers       string `json:"app_vers,omitempty"`
}

// AppPort is one published port or path of an application instance.
type AppPort struct {
	Proto        LProto `json:"proto"`
	InternalPort int32  `json:"internal_port,omitempty"`
	PublicPort   int32  `json:"public_port,omitempty"`
	PublicPath   string `json:"public_path,omitempty"`
	FQDNPrefix   string `json:"FQDN_prefix,omitempty"`
}

// Host joins the port's FQDN prefix with the instance's base FQDN.
func (p AppPort) Host(baseFQDN string) string {
	return p.FQDNPrefix + baseFQDN
}

// URL returns the address a client should dial for this port: an http URL
// for L_PROTO_HTTP ports and host:port otherwise.
func (p AppPort) URL(baseFQDN string) string {
	host := p.Host(baseFQDN)
	if p.Proto == LProtoHTTP {
		path := p.PublicPath
		if path != "" && !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return "http://" + host + ":" + itoa(p.PublicPort) + path
	}
	return host + ":" + itoa(p.PublicPort)
}

// FindCloudletReply names the chosen cloudlet. A FIND_FOUND reply always
// carries a non-empty FQDN.
type FindCloudletReply struct {
	Ver              uint32     `json:"ver"`
	Status           FindStatus `json:"status"`
	FQDN             string     `json:"FQDN,omitempty"`
	Ports            []AppPort  `json:"ports,omitempty"`
	CloudletLocation *Loc       `json:"cloudlet_location,omitempty"`
}

func (r *FindCloudletReply) StatusName() string { return r.Status.String() }
func (r *FindCloudletReply) Succeeded() bool    { return r.Status == FindFound }

// VerifyLocationRequest asks the carrier to confirm a GPS fix. The
// verification token comes from the session's token server and is good for
// one request.
type VerifyLocationRequest struct {
	Ver            uint32 `json:"ver"`
	SessionCookie  string `json:"session_cookie"`
	CarrierName    string `json:"carrier_name,omitempty"`
	GPSLocation    *Loc   `json:"gps_location,omitempty"`
	VerifyLocToken string `json:"verify_loc_token"`
}

// VerifyLocationReply reports how well the fix matched the network's view.
type VerifyLocationReply struct {
	Ver                   uint32            `json:"ver"`
	TowerStatus           TowerStatus       `json:"tower_status"`
	GPSLocationStatus     GPSLocationStatus `json:"gps_location_status"`
	GPSLocationAccuracyKm float64           `json:"GPS_Location_Accuracy_KM,omitempty"`
}

func (r *VerifyLocationReply) StatusName() string { return r.GPSLocationStatus.String() }
func (r *VerifyLocationReply) Succeeded() bool    { return r.GPSLocationStatus == LocVerified }

// GetLocationRequest asks the carrier where it thinks the device is.
type GetLocationRequest struct {
	Ver           uint32 `json:"ver"`
	SessionCookie string `json:"session_cookie"`
	CarrierName   string `json:"carrier_name,omitempty"`
}

// GetLocationReply carries the network derived location.
type GetLocationReply struct {
	Ver             uint32    `json:"ver"`
	Status          LocStatus `json:"status"`
	CarrierName     string    `json:"carrier_name,omitempty"`
	Tower           uint64    `json:"tower,omitempty"`
	NetworkLocation *Loc      `json:"network_location,omitempty"`
}

func (r *GetLocationReply) StatusName() string { return r.Status.String() }
func (r *GetLocationReply) Succeeded() bool    { return r.Status == LocFound }

// AppInstListRequest lists instances of the session's app near a location.
type AppInstListRequest struct {
	Ver           uint32 `json:"ver"`
	SessionCookie string `json:"session_cookie"`
	CarrierName   string `json:"carrier_name,omitempty"`
	GPSLocation   *Loc   `json:"gps_location,omitempty"`
}

// Appinstance is one running instance of an app on a cloudlet.
type Appinstance struct {
	AppName string    `json:"app_name"`
	AppVers string    `json:"app_vers"`
	FQDN    string    `json:"FQDN"`
	Ports   []AppPort `json:"ports,omitempty"`
}

// CloudletLocation groups the app instances of one cloudlet with its
// distance from the requested location in kilometers.
type CloudletLocation struct {
	CarrierName  string        `json:"carrier_name"`
	CloudletName string        `json:"cloudlet_name"`
	GPSLocation  *Loc          `json:"gps_location,omitempty"`
	Distance     float64       `json:"distance"`
	Appinstances []Appinstance `json:"appinstances,omitempty"`
}

// AppInstListReply lists cloudlets ordered by distance.
type AppInstListReply struct {
	Ver       uint32             `json:"ver"`
	Status    AIStatus           `json:"status"`
	Cloudlets []CloudletLocation `json:"cloudlets,omitempty"`
}

func (r *AppInstListReply) StatusName() string { return r.Status.String() }
func (r *AppInstListReply) Succeeded() bool    { return r.Status == AISuccess }

// FqdnListRequest lists the FQDNs of every app visible to the session.
type FqdnListRequest struct {
	Ver           uint32 `json:"ver"`
	SessionCookie string `json:"session_cookie"`
}

// AppFqdn maps one app to its published FQDNs.
type AppFqdn struct {
	AppName            string   `json:"app_name"`
	DevName            string   `json:"dev_name"`
	AppVers            string   `json:"app_vers"`
	FQDNs              []string `json:"FQDNs,omitempty"`
	AndroidPackageName string   `json:"android_package_name,omitempty"`
}

type FqdnListReply struct {
	Ver      uint32    `json:"ver"`
	AppFqdns []AppFqdn `json:"app_fqdns,omitempty"`
	Status   FLStatus  `json:"status"`
}

func (r *FqdnListReply) StatusName() string { return r.Status.String() }
func (r *FqdnListReply) Succeeded() bool    { return r.Status == FLSuccess }

// DynamicLocGroupRequest joins the session to a dynamic location group.
type DynamicLocGroupRequest struct {
	Ver           uint32      `json:"ver"`
	SessionCookie string      `json:"session_cookie"`
	LgID          uint64      `json:"lg_id"`
	CommType      DlgCommType `json:"comm_type"`
	UserData      string      `json:"user_data,omitempty"`
}

type DynamicLocGroupReply struct {
	Ver         uint32      `json:"ver"`
	Status      ReplyStatus `json:"status"`
	ErrorCode   uint32      `json:"error_code,omitempty"`
	GroupCookie string      `json:"group_cookie,omitempty"`
}

func (r *DynamicLocGroupReply) StatusName() string { return r.Status.String() }
func (r *DynamicLocGroupReply) Succeeded() bool    { return r.Status == RSSuccess }

// QosPosition is one named probe point of a QoS KPI query.
type QosPosition struct {
	PositionID  uint64 `json:"positionid"`
	GPSLocation *Loc   `json:"gps_location,omitempty"`
}

// QosPositionKpiRequest asks for expected throughput and latency along an
// ordered list of positions.
type QosPositionKpiRequest struct {
	Ver           uint32        `json:"ver"`
	SessionCookie string        `json:"session_cookie"`
	Positions     []QosPosition `json:"positions"`
}

// QosPositionResult holds the KPIs predicted for one position.
type QosPositionResult struct {
	PositionID          uint64  `json:"positionid"`
	GPSLocation         *Loc    `json:"gps_location,omitempty"`
	DLUserThroughputMin float32 `json:"dluserthroughput_min"`
	DLUserThroughputAvg float32 `json:"dluserthroughput_avg"`
	DLUserThroughputMax float32 `json:"dluserthroughput_max"`
	ULUserThroughputMin float32 `json:"uluserthroughput_min"`
	ULUserThroughputAvg float32 `json:"uluserthroughput_avg"`
	ULUserThroughputMax float32 `json:"uluserthroughput_max"`
	LatencyMin          float32 `json:"latency_min"`
	LatencyAvg          float32 `json:"latency_avg"`
	LatencyMax          float32 `json:"latency_max"`
}

// QosPositionKpiReply is the aggregated result for all requested positions.
type QosPositionKpiReply struct {
	Ver             uint32              `json:"ver"`
	Status          ReplyStatus         `json:"status"`
	PositionResults []QosPositionResult `json:"position_results,omitempty"`
}

func (r *QosPositionKpiReply) StatusName() string { return r.Status.String() }
func (r *QosPositionKpiReply) Succeeded() bool    { return r.Status == RSSuccess }

// StreamError is the structured error a QoS KPI query may return in place
// of a result.
type StreamError struct {
	Code    int32    `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// QosPositionKpiStreamReply is the envelope of a QoS KPI answer. Exactly one
// of Result and Error is set in a well-formed reply.
type QosPositionKpiStreamReply struct {
	Result *QosPositionKpiReply `json:"result,omitempty"`
	Error  *StreamError         `json:"error,omitempty"`
}

func (r *QosPositionKpiStreamReply) StatusName() string {
	switch {
	case r.Result != nil && r.Error == nil:
		return r.Result.StatusName()
	case r.Error != nil && r.Result == nil:
		return "ERROR"
	}
	return unrecognizedName
}

func (r *QosPositionKpiStreamReply) Succeeded() bool {
	return r.Error == nil && r.Result != nil && r.Result.Succeeded()
}

// WellFormed reports whether exactly one of Result and Error is present.
func (r *QosPositionKpiStreamReply) WellFormed() bool {
	return (r.Result == nil) != (r.Error == nil)
}
