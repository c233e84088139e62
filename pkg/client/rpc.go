package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"

	"github.com/mobiledgex/matchingengine/pkg/codec"
	"github.com/mobiledgex/matchingengine/pkg/dme"
	"github.com/mobiledgex/matchingengine/pkg/dmeuri"
)

// RPCTransport calls the matching engine RPC service on <host>:<port>.
// Messages are carried with a codec from package codec selected by content
// subtype. One connection is dialed lazily per authority and reused.
type RPCTransport struct {
	creds    credentials.TransportCredentials
	subtype  string
	dialOpts []grpc.DialOption

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewRPCTransport returns an RPC transport. contentSubtype is codec.JSONName
// or codec.CBORName; empty selects JSON.
func NewRPCTransport(creds credentials.TransportCredentials, contentSubtype string, opts ...grpc.DialOption) (*RPCTransport, error) {
	if contentSubtype == "" {
		contentSubtype = codec.JSONName
	}
	if _, err := codec.ByName(contentSubtype); err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, errors.New("rpc transport requires transport credentials")
	}
	return &RPCTransport{
		creds:    creds,
		subtype:  contentSubtype,
		dialOpts: opts,
		conns:    make(map[string]*grpc.ClientConn),
	}, nil
}

func (t *RPCTransport) DefaultPort() uint32 { return dmeuri.DefaultRPCPort }

func (t *RPCTransport) Call(ctx context.Context, target Target, api dme.API, req, reply any) error {
	authority := target.String()
	conn, err := t.conn(authority)
	if err != nil {
		return &TransportError{API: api.Name, URL: authority, Err: err}
	}
	if err := conn.Invoke(ctx, api.Method, req, reply, grpc.CallContentSubtype(t.subtype)); err != nil {
		return rpcFailure(ctx, api.Name, authority, err)
	}
	return nil
}

func (t *RPCTransport) conn(authority string) (*grpc.ClientConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cc, ok := t.conns[authority]; ok {
		return cc, nil
	}
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(t.creds)}, t.dialOpts...)
	cc, err := grpc.NewClient(authority, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", authority, err)
	}
	t.conns[authority] = cc
	return cc, nil
}

// Close closes every connection the transport has opened.
func (t *RPCTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	for authority, cc := range t.conns {
		if err := cc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", authority, err))
		}
		delete(t.conns, authority)
	}
	return errors.Join(errs...)
}

// rpcFailure converts an RPC status into a TransportError with the HTTP
// status the REST surface would have answered with.
func rpcFailure(ctx context.Context, api, authority string, err error) *TransportError {
	st, _ := status.FromError(err)
	te := &TransportError{
		API:        api,
		URL:        authority,
		StatusCode: runtime.HTTPStatusFromCode(st.Code()),
		Code:       int(st.Code()),
		Message:    st.Message(),
		Timeout:    st.Code() == codes.DeadlineExceeded,
		Err:        err,
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		te.Err = ctxErr
		te.Timeout = errors.Is(ctxErr, context.DeadlineExceeded)
	}
	return te
}
