package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/haasonsaas/conduit/internal/providers"
	"github.com/haasonsaas/conduit/pkg/models"
)

type stubClient struct {
	name string
}

func (s *stubClient) Name() string                { return s.name }
func (s *stubClient) Tools() []providers.ToolSpec { return nil }
func (s *stubClient) Invoke(ctx context.Context, tool string, payload map[string]any) (map[string]any, error) {
	return map[string]any{"echo": tool}, nil
}

func TestTenantIsolation(t *testing.T) {
	r := New()
	acme := models.NormalizeTenantID("acme")
	globex := models.NormalizeTenantID("globex")

	r.Register(acme, &stubClient{name: "slack"})

	if _, err := r.Client(acme, "slack"); err != nil {
		t.Fatalf("acme slack: %v", err)
	}
	if _, err := r.Client(globex, "slack"); !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("globex must not see acme's client, got err=%v", err)
	}

	r.Register(globex, &stubClient{name: "telegram"})
	if _, err := r.Client(acme, "telegram"); !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("acme must not see globex's client, got err=%v", err)
	}
}

func TestUnknownTenantIsNotAnError(t *testing.T) {
	r := New()
	_, err := r.Client("nobody", "slack")
	if !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
	// Access created the bucket lazily; it is usable afterwards.
	r.Register("nobody", &stubClient{name: "slack"})
	if _, err := r.Client("nobody", "slack"); err != nil {
		t.Fatalf("after register: %v", err)
	}
}

func TestVersionSemantics(t *testing.T) {
	r := New()
	tenant := models.TenantID("acme")
	slack := &stubClient{name: "slack"}

	if v := r.Version(tenant); v != 0 {
		t.Fatalf("fresh bucket version = %d, want 0", v)
	}

	r.Register(tenant, slack)
	if v := r.Version(tenant); v != 1 {
		t.Fatalf("after register version = %d, want 1", v)
	}

	// Reads never bump the version.
	for i := 0; i < 5; i++ {
		if _, err := r.Client(tenant, "slack"); err != nil {
			t.Fatal(err)
		}
	}
	if v := r.Version(tenant); v != 1 {
		t.Fatalf("reads bumped version to %d", v)
	}

	// Re-registering the same handle is a no-op.
	r.Register(tenant, slack)
	if v := r.Version(tenant); v != 1 {
		t.Fatalf("idempotent register bumped version to %d", v)
	}

	// Rebuilding with the identical set is a no-op.
	if changed := r.Rebuild(tenant, []providers.Client{slack}); changed {
		t.Fatal("rebuild with identical set reported a change")
	}
	if v := r.Version(tenant); v != 1 {
		t.Fatalf("no-op rebuild bumped version to %d", v)
	}

	// A structural change bumps exactly once.
	if changed := r.Rebuild(tenant, []providers.Client{slack, &stubClient{name: "webhook"}}); !changed {
		t.Fatal("structural rebuild reported no change")
	}
	if v := r.Version(tenant); v != 2 {
		t.Fatalf("after structural rebuild version = %d, want 2", v)
	}
}

func TestRebuildWithFreshEquivalentClients(t *testing.T) {
	r := New()
	tenant := models.TenantID("acme")

	r.Rebuild(tenant, []providers.Client{&stubClient{name: "slack"}, &stubClient{name: "telegram"}})
	before := r.Version(tenant)

	// A config reload produces fresh client instances for the same
	// providers. The set is structurally identical, so the version must
	// hold still.
	fresh := []providers.Client{&stubClient{name: "slack"}, &stubClient{name: "telegram"}}
	if changed := r.Rebuild(tenant, fresh); changed {
		t.Fatal("rebuild with equivalent fresh clients reported a change")
	}
	if v := r.Version(tenant); v != before {
		t.Fatalf("version = %d, want %d", v, before)
	}

	// The fresh handles replaced the old ones all the same.
	got, err := r.Client(tenant, "slack")
	if err != nil {
		t.Fatal(err)
	}
	if got != fresh[0] {
		t.Error("rebuild kept the stale client handle")
	}
}

func TestRemove(t *testing.T) {
	r := New()
	tenant := models.TenantID("acme")
	r.Register(tenant, &stubClient{name: "slack"})

	r.Remove(tenant, "telegram") // absent: no-op
	if v := r.Version(tenant); v != 1 {
		t.Fatalf("removing absent provider bumped version to %d", v)
	}

	r.Remove(tenant, "slack")
	if _, err := r.Client(tenant, "slack"); !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("removed provider still resolvable, err=%v", err)
	}
	if v := r.Version(tenant); v != 2 {
		t.Fatalf("after remove version = %d, want 2", v)
	}
}

func TestTeardown(t *testing.T) {
	r := New()
	tenant := models.TenantID("acme")
	r.Register(tenant, &stubClient{name: "slack"})
	r.Teardown(tenant)

	if _, err := r.Client(tenant, "slack"); !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("teardown left client resolvable, err=%v", err)
	}
	if v := r.Version(tenant); v != 0 {
		t.Fatalf("teardown must reset version, got %d", v)
	}
}

func TestProvidersSorted(t *testing.T) {
	r := New()
	tenant := models.TenantID("acme")
	r.Register(tenant, &stubClient{name: "webhook"})
	r.Register(tenant, &stubClient{name: "slack"})
	r.Register(tenant, &stubClient{name: "telegram"})

	got := r.Providers(tenant)
	want := []string{"slack", "telegram", "webhook"}
	if len(got) != len(want) {
		t.Fatalf("providers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("providers = %v, want %v", got, want)
		}
	}
}

func TestConcurrentRebuildNeverExposesPartialSet(t *testing.T) {
	r := New()
	tenant := models.TenantID("acme")
	setA := []providers.Client{&stubClient{name: "slack"}, &stubClient{name: "telegram"}}
	setB := []providers.Client{&stubClient{name: "webhook"}, &stubClient{name: "slack"}}
	r.Rebuild(tenant, setA)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				r.Rebuild(tenant, setB)
			} else {
				r.Rebuild(tenant, setA)
			}
		}
		close(stop)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			// Every snapshot must be one of the two complete sets,
			// never an interleaving of both.
			names := r.Providers(tenant)
			if len(names) != 2 {
				t.Errorf("partial provider set observed: %v", names)
				return
			}
		}
	}()

	wg.Wait()
}
