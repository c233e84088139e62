package dmeuri_test

import (
	"testing"

	"github.com/mobiledgex/matchingengine/pkg/dmeuri"
)

func TestHost(t *testing.T) {
	cases := []struct {
		region, base string
		want         string
	}{
		{"tdg", "", "tdg.dme.mobiledgex.net"},
		{"", "", "tdg.dme.mobiledgex.net"},
		{"sonic", "", "sonic.dme.mobiledgex.net"},
		{"TDG", "", "TDG.dme.mobiledgex.net"},
		{"eu", "dme.example.com", "eu.dme.example.com"},
	}
	for _, tc := range cases {
		if got := dmeuri.Host(tc.region, tc.base); got != tc.want {
			t.Errorf("Host(%q, %q): got %q, want %q", tc.region, tc.base, got, tc.want)
		}
	}
}

func TestBaseURI(t *testing.T) {
	got := dmeuri.BaseURI(dmeuri.Host("", ""), dmeuri.DefaultRESTPort)
	want := "https://tdg.dme.mobiledgex.net:38001"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := dmeuri.Authority("::1", 50051); got != "[::1]:50051" {
		t.Errorf("IPv6 authority: got %q", got)
	}
}

func TestSplitAuthority(t *testing.T) {
	host, port, err := dmeuri.SplitAuthority("127.0.0.1:38001")
	if err != nil {
		t.Fatalf("SplitAuthority: %v", err)
	}
	if host != "127.0.0.1" || port != 38001 {
		t.Errorf("got %q %d", host, port)
	}

	for _, bad := range []string{"nohost", ":38001", "host:0", "host:99999", "a/b:1"} {
		if _, _, err := dmeuri.SplitAuthority(bad); err == nil {
			t.Errorf("SplitAuthority(%q): expected error", bad)
		}
	}
}
