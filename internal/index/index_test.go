package index

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"alfredoptarigan/consultant-matcher/internal/models"
)

type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	failOn  string
	calls   int
}

func (f *fakeEmbedder) Encode(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for name, vec := range f.vectors {
		if strings.Contains(text, "Name: "+name+"\n") {
			if name == f.failOn {
				return nil, errors.New("embedding service unavailable")
			}
			return vec, nil
		}
	}
	return nil, errors.New("unknown text")
}

func profile(name string) models.ConsultantProfile {
	return models.ConsultantProfile{
		ID:         uuid.New(),
		Name:       name,
		Email:      strings.ToLower(name) + "@example.com",
		Skills:     []string{"Go"},
		Experience: 3,
		Available:  true,
	}
}

func newTestIndex(emb Embedder, retain int) (*Index, *MemoryBackend) {
	backend := NewMemoryBackend()
	idx := New(backend, emb, Options{Retain: retain, CallTimeout: time.Second})
	return idx, backend
}

func TestBuildEmptyCorpus(t *testing.T) {
	idx, backend := newTestIndex(&fakeEmbedder{}, 2)

	_, err := idx.Build(context.Background(), nil)
	if !errors.Is(err, ErrIndexBuild) {
		t.Fatalf("expected ErrIndexBuild, got %v", err)
	}
	if idx.Current() != nil || len(backend.Versions()) != 0 {
		t.Fatalf("nothing should have been published")
	}
}

func TestBuildFailsWithoutPartialIndex(t *testing.T) {
	emb := &fakeEmbedder{
		vectors: map[string][]float32{"Ann": {0, 0}, "Bob": {1, 1}, "Cid": {2, 2}},
		failOn:  "Bob",
	}
	idx, backend := newTestIndex(emb, 2)

	_, err := idx.Build(context.Background(), []models.ConsultantProfile{profile("Ann"), profile("Bob"), profile("Cid")})
	if !errors.Is(err, ErrIndexBuild) {
		t.Fatalf("expected ErrIndexBuild, got %v", err)
	}
	if idx.Current() != nil || len(backend.Versions()) != 0 {
		t.Fatalf("a failed build must not publish")
	}
}

func TestBuildRejectsDimensionMismatch(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{"Ann": {0, 0}, "Bob": {1, 1, 1}}}
	idx, _ := newTestIndex(emb, 2)

	_, err := idx.Build(context.Background(), []models.ConsultantProfile{profile("Ann"), profile("Bob")})
	if !errors.Is(err, ErrIndexBuild) {
		t.Fatalf("expected ErrIndexBuild, got %v", err)
	}
}

func TestQueryOrdersByDistanceThenInsertion(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"Ann": {3, 0},
		"Bob": {1, 0},
		"Cid": {-1, 0},
		"Dee": {0, 2},
	}}
	idx, _ := newTestIndex(emb, 2)
	profiles := []models.ConsultantProfile{profile("Ann"), profile("Bob"), profile("Cid"), profile("Dee")}

	snap, err := idx.Build(context.Background(), profiles)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if snap.Size != 4 || snap.Dimension != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	got, err := idx.Query(context.Background(), snap, []float32{0, 0}, 3)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}

	want := []struct {
		id   uuid.UUID
		dist float64
	}{
		{profiles[1].ID, 1},
		{profiles[2].ID, 1},
		{profiles[3].ID, 4},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d neighbours, got %d", len(want), len(got))
	}
	for n := range want {
		if got[n].ProfileID != want[n].id || got[n].Distance != want[n].dist {
			t.Fatalf("neighbour %d = %+v, want %+v", n, got[n], want[n])
		}
	}
}

func TestQueryReturnsFewerThanK(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{"Ann": {0}, "Bob": {1}}}
	idx, _ := newTestIndex(emb, 2)

	snap, err := idx.Build(context.Background(), []models.ConsultantProfile{profile("Ann"), profile("Bob")})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	got, err := idx.Query(context.Background(), snap, []float32{0}, 10)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 neighbours, got %d", len(got))
	}
}

func TestQueryValidation(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{"Ann": {0, 1}}}
	idx, _ := newTestIndex(emb, 2)

	if _, err := idx.Query(context.Background(), nil, []float32{0, 1}, 1); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}

	snap, err := idx.Build(context.Background(), []models.ConsultantProfile{profile("Ann")})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if _, err := idx.Query(context.Background(), snap, []float32{0}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestEnsureReusesMatchingSnapshot(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{"Ann": {0}, "Bob": {1}}}
	idx, _ := newTestIndex(emb, 2)
	corpus := []models.ConsultantProfile{profile("Ann")}

	first, rebuilt, err := idx.Ensure(context.Background(), corpus)
	if err != nil || !rebuilt {
		t.Fatalf("first Ensure: rebuilt=%v err=%v", rebuilt, err)
	}

	second, rebuilt, err := idx.Ensure(context.Background(), corpus)
	if err != nil || rebuilt {
		t.Fatalf("second Ensure: rebuilt=%v err=%v", rebuilt, err)
	}
	if first.Version != second.Version {
		t.Fatalf("expected the same snapshot, got %s and %s", first.Version, second.Version)
	}
	if emb.calls != 1 {
		t.Fatalf("expected one embedding call, got %d", emb.calls)
	}

	third, rebuilt, err := idx.Ensure(context.Background(), append(corpus, profile("Bob")))
	if err != nil || !rebuilt {
		t.Fatalf("third Ensure: rebuilt=%v err=%v", rebuilt, err)
	}
	if third.Version <= first.Version {
		t.Fatalf("expected a newer version, got %s after %s", third.Version, first.Version)
	}
}

func TestPinnedSnapshotSurvivesRebuild(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{"Ann": {0}, "Bob": {5}}}
	idx, _ := newTestIndex(emb, 2)
	ann := profile("Ann")

	pinned, err := idx.Build(context.Background(), []models.ConsultantProfile{ann})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if _, err := idx.Build(context.Background(), []models.ConsultantProfile{profile("Bob")}); err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	got, err := idx.Query(context.Background(), pinned, []float32{0}, 5)
	if err != nil {
		t.Fatalf("query on pinned snapshot failed: %v", err)
	}
	if len(got) != 1 || got[0].ProfileID != ann.ID {
		t.Fatalf("pinned snapshot returned %+v", got)
	}
	if idx.Current().Version == pinned.Version {
		t.Fatalf("current snapshot was not swapped")
	}
}

func TestRetentionDropsOldVersions(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{"Ann": {0}, "Bob": {1}, "Cid": {2}}}
	idx, backend := newTestIndex(emb, 2)

	var versions []string
	for _, name := range []string{"Ann", "Bob", "Cid"} {
		snap, err := idx.Build(context.Background(), []models.ConsultantProfile{profile(name)})
		if err != nil {
			t.Fatalf("Build returned error: %v", err)
		}
		versions = append(versions, snap.Version)
	}

	held := backend.Versions()
	if len(held) != 2 || held[0] != versions[1] || held[1] != versions[2] {
		t.Fatalf("expected %v retained, got %v", versions[1:], held)
	}
	if idx.Current().Version != versions[2] {
		t.Fatalf("expected latest version current")
	}
}

func TestRestoreLoadsLatest(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{"Ann": {0}}}
	backend := NewMemoryBackend()
	built := New(backend, emb, Options{})
	snap, err := built.Build(context.Background(), []models.ConsultantProfile{profile("Ann")})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	restored := New(backend, emb, Options{})
	got, err := restored.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}
	if got == nil || got.Version != snap.Version || got.Fingerprint != snap.Fingerprint {
		t.Fatalf("restored %+v, want %+v", got, snap)
	}
	if restored.Current() == nil {
		t.Fatalf("restored snapshot should be current")
	}

	empty := New(NewMemoryBackend(), emb, Options{})
	if got, err := empty.Restore(context.Background()); err != nil || got != nil {
		t.Fatalf("expected nothing to restore, got %+v %v", got, err)
	}
}

func TestVersionsAreMonotonic(t *testing.T) {
	idx, _ := newTestIndex(&fakeEmbedder{}, 2)
	fixed := time.Unix(100, 0)
	idx.now = func() time.Time { return fixed }

	a := FormatVersion(idx.nextVersion())
	b := FormatVersion(idx.nextVersion())
	if b <= a {
		t.Fatalf("expected %s > %s", b, a)
	}

	seq, err := ParseVersion(b)
	if err != nil || seq != fixed.UnixNano()+1 {
		t.Fatalf("ParseVersion(%s) = %d, %v", b, seq, err)
	}
	if _, err := ParseVersion("latest"); !errors.Is(err, ErrUnknownVersion) {
		t.Fatalf("expected ErrUnknownVersion, got %v", err)
	}
}

func TestFingerprintTracksContent(t *testing.T) {
	a := profile("Ann")
	b := a
	b.Skills = []string{"Rust"}

	if Fingerprint([]models.ConsultantProfile{a}) == Fingerprint([]models.ConsultantProfile{b}) {
		t.Fatalf("fingerprint should change with profile text")
	}
	if Fingerprint([]models.ConsultantProfile{a}) != Fingerprint([]models.ConsultantProfile{a}) {
		t.Fatalf("fingerprint should be stable")
	}
}

func TestQdrantVersionOf(t *testing.T) {
	q := &QdrantBackend{prefix: "profiles"}
	version := FormatVersion(42)

	if got := q.versionOf(q.collectionName(version)); got != version {
		t.Fatalf("versionOf = %q, want %q", got, version)
	}
	for _, name := range []string{"profiles", "other_" + version, "profiles_latest"} {
		if got := q.versionOf(name); got != "" {
			t.Fatalf("versionOf(%q) = %q, want empty", name, got)
		}
	}
}

func TestQdrantReadyVersion(t *testing.T) {
	q := &QdrantBackend{prefix: "profiles"}
	v1, v2, v3 := FormatVersion(1), FormatVersion(2), FormatVersion(3)
	alias := func(name, collection string) *qdrant.AliasDescription {
		return &qdrant.AliasDescription{AliasName: name, CollectionName: collection}
	}

	tests := []struct {
		name    string
		aliases []*qdrant.AliasDescription
		want    string
	}{
		{name: "none", want: ""},
		{
			name: "newest ready wins",
			aliases: []*qdrant.AliasDescription{
				alias(q.readyAlias(v2), q.collectionName(v2)),
				alias(q.readyAlias(v1), q.collectionName(v1)),
			},
			want: v2,
		},
		{
			// v3 was still being written when the process stopped
			name: "unmarked collection is skipped",
			aliases: []*qdrant.AliasDescription{
				alias(q.readyAlias(v1), q.collectionName(v1)),
			},
			want: v1,
		},
		{
			name: "alias pointing elsewhere",
			aliases: []*qdrant.AliasDescription{
				alias(q.readyAlias(v3), q.collectionName(v1)),
				alias(q.readyAlias(v2), q.collectionName(v2)),
			},
			want: v2,
		},
		{
			name: "foreign aliases",
			aliases: []*qdrant.AliasDescription{
				alias("other_ready_"+v3, "other_"+v3),
				alias("profiles_current", q.collectionName(v3)),
				alias(q.readyAlias("latest"), "profiles_latest"),
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := q.readyVersion(tt.aliases); got != tt.want {
				t.Fatalf("readyVersion = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAcquiredSnapshotOutlivesRetention(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{"Ann": {0}, "Ben": {1}, "Cal": {2}}}
	idx, backend := newTestIndex(emb, 2)
	ann := profile("Ann")

	pinned, rebuilt, release, err := idx.Acquire(context.Background(), []models.ConsultantProfile{ann})
	if err != nil || !rebuilt {
		t.Fatalf("Acquire: rebuilt=%v err=%v", rebuilt, err)
	}
	if idx.Pinned(pinned.Version) != 1 {
		t.Fatalf("expected one pin on %s", pinned.Version)
	}

	for _, name := range []string{"Ben", "Cal"} {
		if _, err := idx.Build(context.Background(), []models.ConsultantProfile{profile(name)}); err != nil {
			t.Fatalf("Build(%s) returned error: %v", name, err)
		}
	}

	got, err := idx.Query(context.Background(), pinned, []float32{0}, 5)
	if err != nil {
		t.Fatalf("query on pinned snapshot failed: %v", err)
	}
	if len(got) != 1 || got[0].ProfileID != ann.ID {
		t.Fatalf("pinned snapshot returned %+v", got)
	}
	if held := backend.Versions(); len(held) != 3 {
		t.Fatalf("pinned version should still be held, got %v", held)
	}

	release()
	release() // second call is a no-op

	if idx.Pinned(pinned.Version) != 0 {
		t.Fatalf("pin was not released")
	}
	held := backend.Versions()
	if len(held) != 2 || contains(held, pinned.Version) {
		t.Fatalf("retired version should be dropped on release, got %v", held)
	}
	if _, err := idx.Query(context.Background(), pinned, []float32{0}, 5); !errors.Is(err, ErrUnknownVersion) {
		t.Fatalf("expected ErrUnknownVersion after release, got %v", err)
	}
}

func TestReleaseKeepsRetainedVersion(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{"Ann": {0}}}
	idx, backend := newTestIndex(emb, 2)

	snap, _, release, err := idx.Acquire(context.Background(), []models.ConsultantProfile{profile("Ann")})
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	release()

	if held := backend.Versions(); len(held) != 1 || held[0] != snap.Version {
		t.Fatalf("version within retention must survive release, got %v", held)
	}
}

type slowEmbedder struct {
	*fakeEmbedder
	delay time.Duration
}

func (s *slowEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.fakeEmbedder.Encode(ctx, text)
}

func TestSharedBuildSurvivesCancelledCaller(t *testing.T) {
	emb := &slowEmbedder{
		fakeEmbedder: &fakeEmbedder{vectors: map[string][]float32{"Ann": {0}}},
		delay:        100 * time.Millisecond,
	}
	idx, _ := newTestIndex(emb, 2)
	corpus := []models.ConsultantProfile{profile("Ann")}

	ctxA, cancelA := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancelA)

	var (
		wg         sync.WaitGroup
		errA, errB error
		snapB      *Snapshot
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errA = idx.Build(ctxA, corpus)
	}()
	time.Sleep(5 * time.Millisecond)
	go func() {
		defer wg.Done()
		snapB, errB = idx.Build(context.Background(), corpus)
	}()
	wg.Wait()

	if !errors.Is(errA, context.Canceled) || !errors.Is(errA, ErrIndexBuild) {
		t.Fatalf("cancelled caller: expected ErrIndexBuild wrapping context.Canceled, got %v", errA)
	}
	if errB != nil || snapB == nil {
		t.Fatalf("live caller should get the shared build, got %v", errB)
	}
	if emb.calls != 1 {
		t.Fatalf("expected one shared build, got %d embedding calls", emb.calls)
	}
	if idx.Current() == nil || idx.Current().Version != snapB.Version {
		t.Fatalf("shared build should become current")
	}
}

func TestBuildTimeoutBoundsDetachedBuild(t *testing.T) {
	emb := &slowEmbedder{
		fakeEmbedder: &fakeEmbedder{vectors: map[string][]float32{"Ann": {0}}},
		delay:        time.Second,
	}
	idx := New(NewMemoryBackend(), emb, Options{BuildTimeout: 20 * time.Millisecond})

	_, err := idx.Build(context.Background(), []models.ConsultantProfile{profile("Ann")})
	if !errors.Is(err, ErrIndexBuild) {
		t.Fatalf("expected ErrIndexBuild, got %v", err)
	}
	if idx.Current() != nil {
		t.Fatalf("nothing should be published")
	}
}
