// Package codec provides the wire codecs used to carry matching engine
// messages over RPC. The messages are plain Go structs rather than
// generated protobuf types, so the RPC layer is told which codec to use by
// content subtype:
//
//	conn.Invoke(ctx, method, req, reply, grpc.CallContentSubtype(codec.JSONName))
//
// Both codecs register themselves with the gRPC encoding registry when the
// package is imported.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc/encoding"
)

const (
	// JSONName is the content subtype of the JSON codec.
	JSONName = "json"
	// CBORName is the content subtype of the CBOR codec.
	CBORName = "cbor"
)

// JSON encodes messages with their JSON field names and enum name strings,
// the same bytes the REST surface carries.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSON) Name() string { return JSONName }

// CBOR encodes messages with Core Deterministic Encoding. Field names come
// from the json struct tags; enums travel as ordinals.
type CBOR struct{}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func (CBOR) Marshal(v any) ([]byte, error) { return cborEnc.Marshal(v) }

func (CBOR) Unmarshal(data []byte, v any) error { return cborDec.Unmarshal(data, v) }

func (CBOR) Name() string { return CBORName }

// ByName returns the codec registered under a content subtype.
func ByName(name string) (encoding.Codec, error) {
	switch name {
	case JSONName:
		return JSON{}, nil
	case CBORName:
		return CBOR{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	// Unknown fields are ignored so older clients can read newer replies.
	cborDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}

	encoding.RegisterCodec(JSON{})
	encoding.RegisterCodec(CBOR{})
}
