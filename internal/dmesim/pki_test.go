package dmesim_test

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/mobiledgex/matchingengine/internal/dmesim"
	"github.com/mobiledgex/matchingengine/pkg/client"
)

func TestDevCA_createAndReload(t *testing.T) {
	dir := t.TempDir()
	ca := dmesim.NewDevCA(dir)
	if err := ca.LoadOrCreate(); err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if !ca.Cert().IsCA {
		t.Error("CA cert: IsCA = false")
	}
	for _, name := range []string{"ca.crt", "ca.key"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}

	again := dmesim.NewDevCA(dir)
	if err := again.LoadOrCreate(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Cert().SerialNumber.Cmp(ca.Cert().SerialNumber) != 0 {
		t.Error("reload generated a new CA instead of reusing the stored one")
	}
}

func TestDevCA_loadMissing(t *testing.T) {
	if err := dmesim.NewDevCA(t.TempDir()).Load(); err == nil {
		t.Error("expected error loading from empty dir")
	}
}

func TestDevCA_issueServer(t *testing.T) {
	ca := dmesim.NewDevCA(t.TempDir())
	if err := ca.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	cert, err := ca.IssueServer([]string{"localhost", "127.0.0.1"}, 0)
	if err != nil {
		t.Fatalf("IssueServer: %v", err)
	}
	leaf := cert.Leaf
	if leaf == nil {
		t.Fatal("IssueServer: no parsed leaf")
	}
	if err := leaf.VerifyHostname("127.0.0.1"); err != nil {
		t.Errorf("VerifyHostname(127.0.0.1): %v", err)
	}
	if err := leaf.VerifyHostname("localhost"); err != nil {
		t.Errorf("VerifyHostname(localhost): %v", err)
	}
}

func TestDevCA_issueWithoutCA(t *testing.T) {
	ca := dmesim.NewDevCA(t.TempDir())
	if _, err := ca.IssueServer([]string{"localhost"}, 0); err == nil {
		t.Error("expected error issuing before Create/Load")
	}
}

// ── Mutual TLS ───────────────────────────────────────────────────────────

func startMTLSSim(t *testing.T) (srv *httptest.Server, bundleDir string, ca *dmesim.DevCA) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	ca = dmesim.NewDevCA(dir)
	if err := ca.LoadOrCreate(); err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	serverCert, err := ca.IssueServer([]string{"localhost", "127.0.0.1"}, 0)
	if err != nil {
		t.Fatalf("IssueServer: %v", err)
	}
	bundleDir = filepath.Join(dir, "client")
	if err := ca.IssueClientBundle(bundleDir, "dmectl", 0); err != nil {
		t.Fatalf("IssueClientBundle: %v", err)
	}

	e, err := dmesim.NewEngine(dmesim.DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv = httptest.NewUnstartedServer(dmesim.NewRouter(ctx, e, dmesim.RouterOptions{}))
	srv.TLS = ca.ServerTLSConfig(serverCert, true)
	srv.StartTLS()
	t.Cleanup(srv.Close)
	e.SetTokenServerURL(srv.URL + dmesim.TokenServerPath)
	return srv, bundleDir, ca
}

func TestIntegration_REST_mutualTLS(t *testing.T) {
	srv, bundleDir, _ := startMTLSSim(t)
	s := &sim{rest: srv}
	target := s.restTarget(t)

	c, err := client.NewFromCertDir(bundleDir, client.WithHost(target.Host), client.WithPort(target.Port))
	if err != nil {
		t.Fatalf("NewFromCertDir: %v", err)
	}
	runSession(t, c)
}

func TestIntegration_REST_mutualTLS_noClientCert(t *testing.T) {
	srv, _, ca := startMTLSSim(t)
	s := &sim{rest: srv}
	target := s.restTarget(t)

	hc := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{RootCAs: ca.CertPool(), MinVersion: tls.VersionTLS12},
	}}
	c, err := client.New(client.WithHTTPClient(hc), client.WithHost(target.Host), client.WithPort(target.Port))
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	_, err = c.RegisterClient(context.Background(), client.RegisterParams{
		DevName: demoApp.DevName,
		AppName: demoApp.AppName,
		AppVers: demoApp.AppVers,
	})
	if client.Classify(err) != client.KindTransport {
		t.Errorf("RegisterClient without client cert: got %v", err)
	}
}
