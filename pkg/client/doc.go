// Package client is the Go SDK for the distributed matching engine (DME).
//
// An application registers once, then discovers and verifies its nearest
// cloudlet with calls that share the registration's session.
//
// # Registering
//
//	c, err := client.New(client.WithCertDir(certDir))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	reply, err := c.RegisterClient(ctx, client.RegisterParams{
//	    CarrierName: "tdg",
//	    DevName:     "Acme",
//	    AppName:     "Demo",
//	    AppVers:     "1.0",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !reply.Succeeded() {
//	    log.Fatalf("registration refused: %s", reply.StatusName())
//	}
//
// A refused registration is not an error: the reply is returned and any
// previous session is kept. Every other call fails with a PreconditionError
// until a registration has succeeded.
//
// # Addressing
//
// Calls go to <carrier>.dme.mobiledgex.net on port 38001 (REST) or 50051
// (RPC, see WithRPC). WithHost pins every call to one host; WithEndpoint
// pins a single call.
//
// # Concurrent calls
//
// FindCloudlet, VerifyLocation, GetLocation, GetAppInstList and GetFqdnList
// read the session and write nothing shared, so they can be issued from
// separate goroutines:
//
//	var wg sync.WaitGroup
//	wg.Add(2)
//	go func() { defer wg.Done(); found, findErr = c.FindCloudlet(ctx, client.FindCloudletParams{Location: &loc}) }()
//	go func() { defer wg.Done(); verified, verifyErr = c.VerifyLocation(ctx, client.VerifyLocationParams{Location: &loc}) }()
//	wg.Wait()
//
// VerifyLocation fetches a fresh token from the session's token server for
// each call. Cancelling one call's context never affects another call or
// the session.
//
// # Errors
//
// Failures are one of TransportError (network, HTTP status, timeout),
// TokenResolutionError (the token server did not redirect or gave no
// token), PreconditionError (no session, no location, bad argument) or
// ProtocolError (a reply that breaks its contract). Classify maps an error
// to its kind:
//
//	switch client.Classify(err) {
//	case client.KindTransport:
//	    // retry later
//	case client.KindTokenResolution:
//	    // register again
//	}
//
// Negative business outcomes such as FIND_NOTFOUND are replies, not errors.
// CheckStatus turns them into a ProtocolError when that is more convenient.
package client
