// Package dme defines the wire data model of the distributed matching
// engine API: request and reply messages, their status enums, GPS locations
// and the table of API endpoints shared by the REST and RPC transports.
//
// Status enums are plain integers in memory. On the JSON wire they are
// encoded by name:
//
//	{"ver":1,"status":"RS_SUCCESS","session_cookie":"..."}
//
// Decoding accepts either the name or the ordinal. Anything the table does
// not know decodes to the type's Unrecognized value, so a reply from a newer
// server never masquerades as a known status.
package dme
