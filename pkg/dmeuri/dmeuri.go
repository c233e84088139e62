// Package dmeuri derives matching engine addresses.
//
// A matching engine deployment is addressed by region:
//
//	<region>.<base-domain>:<port>
//
// e.g. tdg.dme.mobiledgex.net:38001 for the REST surface and
// tdg.dme.mobiledgex.net:50051 for RPC. An empty region falls back to
// DefaultRegion. Region tokens are case-sensitive and used verbatim.
package dmeuri

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	// DefaultBaseDomain is the public matching engine domain.
	DefaultBaseDomain = "dme.mobiledgex.net"
	// DefaultRegion is used when no region or carrier is known.
	DefaultRegion = "tdg"
	// DefaultRESTPort is the matching engine REST port.
	DefaultRESTPort uint32 = 38001
	// DefaultRPCPort is the matching engine RPC port.
	DefaultRPCPort uint32 = 50051
)

// Host returns "<region>.<baseDomain>", substituting DefaultRegion for an
// empty region and DefaultBaseDomain for an empty base domain.
func Host(region, baseDomain string) string {
	if region == "" {
		region = DefaultRegion
	}
	if baseDomain == "" {
		baseDomain = DefaultBaseDomain
	}
	return region + "." + baseDomain
}

// Authority joins host and port as "host:port", bracketing IPv6 literals.
func Authority(host string, port uint32) string {
	return net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10))
}

// BaseURI returns the https base URI of a REST endpoint.
func BaseURI(host string, port uint32) string {
	return "https://" + Authority(host, port)
}

// SplitAuthority parses "host:port". It is the inverse of Authority.
func SplitAuthority(authority string) (string, uint32, error) {
	host, portStr, err := net.SplitHostPort(authority)
	if err != nil {
		return "", 0, fmt.Errorf("invalid authority %q: %w", authority, err)
	}
	if err := validateHost(host); err != nil {
		return "", 0, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return "", 0, fmt.Errorf("invalid port %q in %q", portStr, authority)
	}
	return host, uint32(port), nil
}

// validateHost checks that a host contains no characters that would change
// the meaning of a URI built from it.
func validateHost(host string) error {
	if host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if strings.ContainsAny(host, " /\\?#@") {
		return fmt.Errorf("host %q contains invalid characters", host)
	}
	return nil
}
