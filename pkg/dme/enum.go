package dme

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// unrecognizedName is the wire name of every enum's Unrecognized value.
const unrecognizedName = "UNRECOGNIZED"

// enumName returns the wire name of v, or unrecognizedName when v is outside
// the table.
func enumName[E ~int32](names []string, v E) string {
	if v >= 0 && int(v) < len(names) {
		return names[v]
	}
	return unrecognizedName
}

func marshalEnum[E ~int32](names []string, v E) ([]byte, error) {
	return json.Marshal(enumName(names, v))
}

// unmarshalEnum decodes a JSON enum given as a name string or an ordinal.
// Unknown names and out-of-range ordinals yield unrecognized; null yields
// the zero value.
func unmarshalEnum[E ~int32](names []string, data []byte, unrecognized E) (E, error) {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return 0, nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return unrecognized, err
		}
		for i, n := range names {
			if n == s {
				return E(i), nil
			}
		}
		return unrecognized, nil
	}
	n, err := strconv.ParseInt(string(data), 10, 32)
	if err != nil {
		return unrecognized, fmt.Errorf("enum value %s is neither a name nor an ordinal", data)
	}
	if n < 0 || int(n) >= len(names) {
		return unrecognized, nil
	}
	return E(n), nil
}

// ReplyStatus is the generic outcome carried by most replies.
type ReplyStatus int32

const (
	ReplyStatusUnrecognized ReplyStatus = -1
	RSUndefined             ReplyStatus = 0
	RSSuccess               ReplyStatus = 1
	RSFail                  ReplyStatus = 2
)

var replyStatusNames = []string{"RS_UNDEFINED", "RS_SUCCESS", "RS_FAIL"}

func (s ReplyStatus) String() string               { return enumName(replyStatusNames, s) }
func (s ReplyStatus) MarshalJSON() ([]byte, error) { return marshalEnum(replyStatusNames, s) }
func (s *ReplyStatus) UnmarshalJSON(data []byte) (err error) {
	*s, err = unmarshalEnum(replyStatusNames, data, ReplyStatusUnrecognized)
	return err
}

// FindStatus is the outcome of FindCloudlet.
type FindStatus int32

const (
	FindStatusUnrecognized FindStatus = -1
	FindUnknown            FindStatus = 0
	FindFound              FindStatus = 1
	FindNotFound           FindStatus = 2
)

var findStatusNames = []string{"FIND_UNKNOWN", "FIND_FOUND", "FIND_NOTFOUND"}

func (s FindStatus) String() string               { return enumName(findStatusNames, s) }
func (s FindStatus) MarshalJSON() ([]byte, error) { return marshalEnum(findStatusNames, s) }
func (s *FindStatus) UnmarshalJSON(data []byte) (err error) {
	*s, err = unmarshalEnum(findStatusNames, data, FindStatusUnrecognized)
	return err
}

// TowerStatus reports whether the device is attached to the tower it claims.
type TowerStatus int32

const (
	TowerStatusUnrecognized      TowerStatus = -1
	TowerUnknown                 TowerStatus = 0
	ConnectedToSpecifiedTower    TowerStatus = 1
	NotConnectedToSpecifiedTower TowerStatus = 2
)

var towerStatusNames = []string{"TOWER_UNKNOWN", "CONNECTED_TO_SPECIFIED_TOWER", "NOT_CONNECTED_TO_SPECIFIED_TOWER"}

func (s TowerStatus) String() string               { return enumName(towerStatusNames, s) }
func (s TowerStatus) MarshalJSON() ([]byte, error) { return marshalEnum(towerStatusNames, s) }
func (s *TowerStatus) UnmarshalJSON(data []byte) (err error) {
	*s, err = unmarshalEnum(towerStatusNames, data, TowerStatusUnrecognized)
	return err
}

// GPSLocationStatus is the verdict of VerifyLocation on the reported GPS
// position.
type GPSLocationStatus int32

const (
	GPSLocationStatusUnrecognized GPSLocationStatus = -1
	LocUnknown                    GPSLocationStatus = 0
	LocVerified                   GPSLocationStatus = 1
	LocMismatchSameCountry        GPSLocationStatus = 2
	LocMismatchOtherCountry       GPSLocationStatus = 3
	LocRoamingCountryMatch        GPSLocationStatus = 4
	LocRoamingCountryMismatch     GPSLocationStatus = 5
	LocErrorUnauthorized          GPSLocationStatus = 6
	LocErrorOther                 GPSLocationStatus = 7
)

var gpsLocationStatusNames = []string{
	"LOC_UNKNOWN",
	"LOC_VERIFIED",
	"LOC_MISMATCH_SAME_COUNTRY",
	"LOC_MISMATCH_OTHER_COUNTRY",
	"LOC_ROAMING_COUNTRY_MATCH",
	"LOC_ROAMING_COUNTRY_MISMATCH",
	"LOC_ERROR_UNAUTHORIZED",
	"LOC_ERROR_OTHER",
}

func (s GPSLocationStatus) String() string { return enumName(gpsLocationStatusNames, s) }
func (s GPSLocationStatus) MarshalJSON() ([]byte, error) {
	return marshalEnum(gpsLocationStatusNames, s)
}
func (s *GPSLocationStatus) UnmarshalJSON(data []byte) (err error) {
	*s, err = unmarshalEnum(gpsLocationStatusNames, data, GPSLocationStatusUnrecognized)
	return err
}

// LocStatus is the outcome of GetLocation.
type LocStatus int32

const (
	LocStatusUnrecognized LocStatus = -1
	LocStatusUnknown      LocStatus = 0
	LocFound              LocStatus = 1
	LocDenied             LocStatus = 2
)

var locStatusNames = []string{"LOC_UNKNOWN", "LOC_FOUND", "LOC_DENIED"}

func (s LocStatus) String() string               { return enumName(locStatusNames, s) }
func (s LocStatus) MarshalJSON() ([]byte, error) { return marshalEnum(locStatusNames, s) }
func (s *LocStatus) UnmarshalJSON(data []byte) (err error) {
	*s, err = unmarshalEnum(locStatusNames, data, LocStatusUnrecognized)
	return err
}

// AIStatus is the outcome of GetAppInstList.
type AIStatus int32

const (
	AIStatusUnrecognized AIStatus = -1
	AIUndefined          AIStatus = 0
	AISuccess            AIStatus = 1
	AIFail               AIStatus = 2
)

var aiStatusNames = []string{"AI_UNDEFINED", "AI_SUCCESS", "AI_FAIL"}

func (s AIStatus) String() string               { return enumName(aiStatusNames, s) }
func (s AIStatus) MarshalJSON() ([]byte, error) { return marshalEnum(aiStatusNames, s) }
func (s *AIStatus) UnmarshalJSON(data []byte) (err error) {
	*s, err = unmarshalEnum(aiStatusNames, data, AIStatusUnrecognized)
	return err
}

// FLStatus is the outcome of GetFqdnList.
type FLStatus int32

const (
	FLStatusUnrecognized FLStatus = -1
	FLUndefined          FLStatus = 0
	FLSuccess            FLStatus = 1
	FLFail               FLStatus = 2
)

var flStatusNames = []string{"FL_UNDEFINED", "FL_SUCCESS", "FL_FAIL"}

func (s FLStatus) String() string               { return enumName(flStatusNames, s) }
func (s FLStatus) MarshalJSON() ([]byte, error) { return marshalEnum(flStatusNames, s) }
func (s *FLStatus) UnmarshalJSON(data []byte) (err error) {
	*s, err = unmarshalEnum(flStatusNames, data, FLStatusUnrecognized)
	return err
}

// LProto is the layer 4 protocol of a published application port.
type LProto int32

const (
	LProtoUnrecognized LProto = -1
	LProtoUnknown      LProto = 0
	LProtoTCP          LProto = 1
	LProtoUDP          LProto = 2
	LProtoHTTP         LProto = 3
)

var lProtoNames = []string{"L_PROTO_UNKNOWN", "L_PROTO_TCP", "L_PROTO_UDP", "L_PROTO_HTTP"}

func (p LProto) String() string               { return enumName(lProtoNames, p) }
func (p LProto) MarshalJSON() ([]byte, error) { return marshalEnum(lProtoNames, p) }
func (p *LProto) UnmarshalJSON(data []byte) (err error) {
	*p, err = unmarshalEnum(lProtoNames, data, LProtoUnrecognized)
	return err
}

// DlgCommType selects how members of a dynamic location group talk.
type DlgCommType int32

const (
	DlgCommTypeUnrecognized DlgCommType = -1
	DlgUndefined            DlgCommType = 0
	DlgSecure               DlgCommType = 1
	DlgOpen                 DlgCommType = 2
)

var dlgCommTypeNames = []string{"DLG_UNDEFINED", "DLG_SECURE", "DLG_OPEN"}

func (t DlgCommType) String() string               { return enumName(dlgCommTypeNames, t) }
func (t DlgCommType) MarshalJSON() ([]byte, error) { return marshalEnum(dlgCommTypeNames, t) }
func (t *DlgCommType) UnmarshalJSON(data []byte) (err error) {
	*t, err = unmarshalEnum(dlgCommTypeNames, data, DlgCommTypeUnrecognized)
	return err
}

// ParseDlgCommType maps a wire name such as "DLG_OPEN" to its value.
func ParseDlgCommType(name string) (DlgCommType, bool) {
	for i, n := range dlgCommTypeNames {
		if n == name {
			return DlgCommType(i), true
		}
	}
	return DlgCommTypeUnrecognized, false
}
