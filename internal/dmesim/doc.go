// Package dmesim is an in-process matching engine for development and
// integration tests.
//
// An Engine answers every matching engine API against a static inventory
// of apps and cloudlets. NewRouter exposes it over REST (including the
// token server at /its, which answers 303 See Other with a single-use
// dt-id token) and NewGRPCServer over gRPC with the json and cbor codecs.
// Session cookies are HS256 JWTs naming the registered app.
package dmesim
