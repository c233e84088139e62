package client_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/mobiledgex/matchingengine/pkg/client"
	"github.com/mobiledgex/matchingengine/pkg/dme"
)

func TestConcurrentCalls_independentFailures(t *testing.T) {
	s := newStubEngine(t)
	s.route(dme.FindCloudletAPI.Path, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"code": 13, "message": "boom"})
	})
	c := newTestClient(t, s)
	register(t, c)

	ctx := context.Background()
	var (
		wg       sync.WaitGroup
		findErr  error
		locReply *dme.GetLocationReply
		locErr   error
		verReply *dme.VerifyLocationReply
		verErr   error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		_, findErr = c.FindCloudlet(ctx, client.FindCloudletParams{Location: here})
	}()
	go func() {
		defer wg.Done()
		locReply, locErr = c.GetLocation(ctx, client.GetLocationParams{})
	}()
	go func() {
		defer wg.Done()
		verReply, verErr = c.VerifyLocation(ctx, client.VerifyLocationParams{Location: here})
	}()
	wg.Wait()

	if client.Classify(findErr) != client.KindTransport {
		t.Errorf("FindCloudlet: expected transport error, got %v", findErr)
	}
	if locErr != nil || locReply.Status != dme.LocFound {
		t.Errorf("GetLocation: %v %+v", locErr, locReply)
	}
	if verErr != nil || verReply.GPSLocationStatus != dme.LocVerified {
		t.Errorf("VerifyLocation: %v %+v", verErr, verReply)
	}
}

func TestConcurrentVerifyLocation_freshTokens(t *testing.T) {
	s := newStubEngine(t)
	c := newTestClient(t, s)
	register(t, c)

	const n = 8
	var wg sync.WaitGroup
	replies := make([]*dme.VerifyLocationReply, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			replies[i], errs[i] = c.VerifyLocation(context.Background(), client.VerifyLocationParams{Location: here})
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("call %d: %v", i, errs[i])
		}
		// The stub rejects a reused token with LOC_ERROR_UNAUTHORIZED.
		if replies[i].GPSLocationStatus != dme.LocVerified {
			t.Errorf("call %d: got %v", i, replies[i].GPSLocationStatus)
		}
	}
	if got := s.count("/tok"); got != n {
		t.Errorf("token server fetched %d times, want %d", got, n)
	}
}

func TestCancel_doesNotAffectSiblings(t *testing.T) {
	s := newStubEngine(t)
	release := make(chan struct{})
	s.route(dme.GetAppInstListAPI.Path, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	c := newTestClient(t, s)
	register(t, c)
	before, _ := c.Session()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.GetAppInstList(ctx, client.AppInstListParams{Location: here})
		done <- err
	}()

	// Give the request time to reach the server, then cancel it.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if client.Classify(err) != client.KindTransport {
			t.Errorf("cancelled call: expected transport error, got %v", err)
		}
		if client.IsTimeout(err) {
			t.Error("cancellation is not a timeout")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled call did not return")
	}
	close(release)

	reply, err := c.FindCloudlet(context.Background(), client.FindCloudletParams{Location: here})
	if err != nil || reply.Status != dme.FindFound {
		t.Errorf("sibling call after cancel: %v %+v", err, reply)
	}
	after, _ := c.Session()
	if after != before {
		t.Error("cancellation changed the session")
	}
}
