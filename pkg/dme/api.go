package dme

import "strconv"

// ServiceName is the fully qualified RPC service of the matching engine.
const ServiceName = "distributed_match_engine.MatchEngineApi"

// API describes one matching engine operation on both transports.
type API struct {
	Name   string // RPC method name
	Path   string // REST path
	Method string // fully qualified RPC method
}

func newAPI(name, path string) API {
	return API{Name: name, Path: path, Method: "/" + ServiceName + "/" + name}
}

var (
	RegisterClientAPI  = newAPI("RegisterClient", "/v1/registerclient")
	VerifyLocationAPI  = newAPI("VerifyLocation", "/v1/verifylocation")
	FindCloudletAPI    = newAPI("FindCloudlet", "/v1/findcloudlet")
	GetLocationAPI     = newAPI("GetLocation", "/v1/getlocation")
	GetAppInstListAPI  = newAPI("GetAppInstList", "/v1/getappinstlist")
	DynamicLocGroupAPI = newAPI("AddUserToGroup", "/v1/dynamiclocgroup")
	GetFqdnListAPI     = newAPI("GetFqdnList", "/v1/getfqdnlist")
	QosPositionKpiAPI  = newAPI("GetQosPositionKpi", "/v1/getqospositionkpi")
)

// APIs lists every operation in registration order.
var APIs = []API{
	RegisterClientAPI,
	VerifyLocationAPI,
	FindCloudletAPI,
	GetLocationAPI,
	GetAppInstListAPI,
	DynamicLocGroupAPI,
	GetFqdnListAPI,
	QosPositionKpiAPI,
}

func itoa(n int32) string { return strconv.FormatInt(int64(n), 10) }
