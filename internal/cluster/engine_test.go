package cluster

import (
	"context"
	"errors"
	"testing"

	"github.com/rawblock/ethergraph-engine/internal/addresses"
	"github.com/rawblock/ethergraph-engine/pkg/models"
)

const (
	addrA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	addrB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	addrC = "0xcccccccccccccccccccccccccccccccccccccccc"
)

// fakeStore keeps cluster state in memory. components maps each address to
// its full component member list; assignments honor set-if-absent like the
// real adapter.
type fakeStore struct {
	order       []string
	components  map[string][]string
	assignments map[string]string

	assignErr error
	lastLimit int
	profile   *models.AddressProfile
}

func newFakeStore(order []string, components map[string][]string) *fakeStore {
	return &fakeStore{
		order:       order,
		components:  components,
		assignments: make(map[string]string),
	}
}

func (f *fakeStore) FetchUnclustered(ctx context.Context, limit int) ([]string, error) {
	f.lastLimit = limit
	var out []string
	for _, addr := range f.order {
		if _, ok := f.assignments[addr]; ok {
			continue
		}
		out = append(out, addr)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ComponentMembers(ctx context.Context, seed string, depth int) ([]string, error) {
	return f.components[seed], nil
}

func (f *fakeStore) AssignClusterID(ctx context.Context, members []string, clusterID string) error {
	if f.assignErr != nil {
		return f.assignErr
	}
	for _, m := range members {
		if _, ok := f.assignments[m]; !ok {
			f.assignments[m] = clusterID
		}
	}
	return nil
}

func (f *fakeStore) AddressProfile(ctx context.Context, address string) (*models.AddressProfile, error) {
	return f.profile, nil
}

func TestAssignClustersConnectedComponent(t *testing.T) {
	store := newFakeStore(
		[]string{addrA, addrB, addrC},
		map[string][]string{
			addrA: {addrA, addrB},
			addrB: {addrB, addrA},
			addrC: {addrC},
		},
	)
	engine := New(store)

	assigned, err := engine.AssignClusters(context.Background(), 0)
	if err != nil {
		t.Fatalf("AssignClusters: %v", err)
	}
	if assigned != 3 {
		t.Fatalf("assigned = %d, want 3", assigned)
	}
	if store.assignments[addrA] != store.assignments[addrB] {
		t.Errorf("connected addresses got different clusters: %q vs %q",
			store.assignments[addrA], store.assignments[addrB])
	}
	if store.assignments[addrC] == store.assignments[addrA] {
		t.Error("isolated address shares cluster with a foreign component")
	}
	if store.assignments[addrC] == "" {
		t.Error("isolated address was not assigned a singleton cluster")
	}
}

func TestAssignClustersConverges(t *testing.T) {
	store := newFakeStore(
		[]string{addrA, addrB},
		map[string][]string{
			addrA: {addrA, addrB},
			addrB: {addrB, addrA},
		},
	)
	engine := New(store)

	first, err := engine.AssignClusters(context.Background(), 10)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first != 2 {
		t.Fatalf("first run assigned = %d, want 2", first)
	}

	second, err := engine.AssignClusters(context.Background(), 10)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second != 0 {
		t.Errorf("second run assigned = %d, want 0", second)
	}
}

func TestAssignClustersEmptyComponentFallsBackToSingleton(t *testing.T) {
	store := newFakeStore([]string{addrA}, map[string][]string{})
	engine := New(store)

	assigned, err := engine.AssignClusters(context.Background(), 10)
	if err != nil {
		t.Fatalf("AssignClusters: %v", err)
	}
	if assigned != 1 {
		t.Fatalf("assigned = %d, want 1", assigned)
	}
	if store.assignments[addrA] == "" {
		t.Error("seed with empty component was not assigned")
	}
}

func TestAssignClustersBatchClamp(t *testing.T) {
	cases := []struct {
		name      string
		requested int
		want      int
	}{
		{"zero uses default", 0, DefaultBatchSize},
		{"negative clamps low", -5, 1},
		{"within range", 200, 200},
		{"above maximum", 5000, MaxBatchSize},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore(nil, nil)
			if _, err := New(store).AssignClusters(context.Background(), tc.requested); err != nil {
				t.Fatalf("AssignClusters: %v", err)
			}
			if store.lastLimit != tc.want {
				t.Errorf("batch size = %d, want %d", store.lastLimit, tc.want)
			}
		})
	}
}

func TestAssignClustersPartialFailure(t *testing.T) {
	store := newFakeStore(
		[]string{addrA, addrB},
		map[string][]string{
			addrA: {addrA},
			addrB: {addrB},
		},
	)
	// addrA is assigned, then the second component's write fails.
	boom := errors.New("write timeout")
	calls := 0
	wrapper := &failAfterStore{inner: store, failOn: 2, err: boom, calls: &calls}

	assigned, err := New(wrapper).AssignClusters(context.Background(), 10)
	var ce *ClusteringError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *ClusteringError", err)
	}
	if ce.Assigned != 1 || assigned != 1 {
		t.Errorf("partial count = %d (returned %d), want 1", ce.Assigned, assigned)
	}
	if !errors.Is(err, boom) {
		t.Errorf("cause not preserved: %v", err)
	}
}

type failAfterStore struct {
	inner  *fakeStore
	failOn int
	err    error
	calls  *int
}

func (f *failAfterStore) FetchUnclustered(ctx context.Context, limit int) ([]string, error) {
	return f.inner.FetchUnclustered(ctx, limit)
}

func (f *failAfterStore) ComponentMembers(ctx context.Context, seed string, depth int) ([]string, error) {
	return f.inner.ComponentMembers(ctx, seed, depth)
}

func (f *failAfterStore) AssignClusterID(ctx context.Context, members []string, clusterID string) error {
	*f.calls++
	if *f.calls >= f.failOn {
		return f.err
	}
	return f.inner.AssignClusterID(ctx, members, clusterID)
}

func (f *failAfterStore) AddressProfile(ctx context.Context, address string) (*models.AddressProfile, error) {
	return f.inner.AddressProfile(ctx, address)
}

func TestComponentDepthConstant(t *testing.T) {
	if MaxClusterDepth != 6 {
		t.Fatalf("MaxClusterDepth = %d, want 6", MaxClusterDepth)
	}
}

func TestProfileValidatesAddress(t *testing.T) {
	engine := New(newFakeStore(nil, nil))
	if _, err := engine.Profile(context.Background(), "nope"); !errors.Is(err, addresses.ErrInvalidAddress) {
		t.Fatalf("err = %v, want ErrInvalidAddress", err)
	}
}

func TestProfileNormalizesBeforeLookup(t *testing.T) {
	store := newFakeStore(nil, nil)
	store.profile = &models.AddressProfile{Address: addrA}
	engine := New(store)

	profile, err := engine.Profile(context.Background(), "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if profile.Address != addrA {
		t.Fatalf("address = %q, want %q", profile.Address, addrA)
	}
}
