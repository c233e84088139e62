package dmesim_test

import (
	"strings"
	"testing"
	"time"

	"github.com/mobiledgex/matchingengine/internal/dmesim"
)

func TestCookieIssuer_roundTrip(t *testing.T) {
	issuer := dmesim.NewCookieIssuer("secret", time.Hour)
	app := dmesim.DefaultConfig().Apps[0]

	cookie, err := issuer.Issue(app, "10.0.0.7")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := issuer.Verify(cookie)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.DevName != app.DevName || claims.AppName != app.AppName || claims.AppVers != app.AppVers {
		t.Errorf("app claims: got %+v", claims)
	}
	if claims.PeerIP != "10.0.0.7" {
		t.Errorf("peer: got %q", claims.PeerIP)
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		t.Errorf("registered claims missing: %+v", claims.RegisteredClaims)
	}
	if issuer.TTL() != time.Hour {
		t.Errorf("TTL: got %v", issuer.TTL())
	}
}

func TestCookieIssuer_rejects(t *testing.T) {
	app := dmesim.DefaultConfig().Apps[0]
	issuer := dmesim.NewCookieIssuer("secret", time.Hour)
	cookie, err := issuer.Issue(app, "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := dmesim.NewCookieIssuer("other", time.Hour).Verify(cookie); err == nil {
		t.Error("cookie signed with another secret must not verify")
	}
	if _, err := issuer.Verify(cookie[:len(cookie)-2]); err == nil {
		t.Error("truncated cookie must not verify")
	}

	expired, err := dmesim.NewCookieIssuer("secret", -time.Minute).Issue(app, "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, err = issuer.Verify(expired)
	if err == nil || !strings.Contains(err.Error(), "expired") {
		t.Errorf("expired cookie: got %v", err)
	}
}
