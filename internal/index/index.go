// Package index maintains versioned nearest-neighbour snapshots of the
// consultant profile corpus.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"alfredoptarigan/consultant-matcher/internal/logger"
	"alfredoptarigan/consultant-matcher/internal/models"
)

var (
	// ErrIndexBuild is returned when a snapshot could not be built or published.
	ErrIndexBuild = errors.New("index build failed")
	// ErrNoSnapshot is returned when a query is issued before any snapshot was published.
	ErrNoSnapshot = errors.New("no index snapshot published")
	// ErrDimensionMismatch is returned when a query vector does not fit the snapshot.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrUnknownVersion is returned by backends asked about a version they do not hold.
	ErrUnknownVersion = errors.New("unknown index version")
)

// Entry is one candidate vector of a snapshot.
type Entry struct {
	ProfileID uuid.UUID
	Vector    []float32
}

// Neighbor is a query hit with its squared Euclidean distance.
type Neighbor struct {
	ProfileID uuid.UUID
	Distance  float64
}

// Snapshot describes an immutable published version of the index.
type Snapshot struct {
	Version     string
	Fingerprint string
	Dimension   int
	Size        int
	CreatedAt   time.Time
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// Backend stores published snapshots.
type Backend interface {
	Publish(ctx context.Context, snap *Snapshot, entries []Entry) error
	Search(ctx context.Context, snap *Snapshot, vector []float32, k int) ([]Neighbor, error)
	Drop(ctx context.Context, version string) error
	// Latest returns the most recent durable snapshot, or nil when there is none.
	Latest(ctx context.Context) (*Snapshot, error)
}

type Options struct {
	// Retain is the number of most recent versions kept in the backend.
	// Versions still pinned by a reader outlive it until released.
	Retain      int
	CallTimeout time.Duration
	// BuildTimeout bounds a whole build, which runs detached from the
	// contexts of the callers waiting on it.
	BuildTimeout time.Duration
	Logger       *zap.Logger
}

type Index struct {
	backend      Backend
	embedder     Embedder
	retain       int
	callTimeout  time.Duration
	buildTimeout time.Duration
	log          *zap.Logger

	current atomic.Pointer[Snapshot]
	group   singleflight.Group

	mu          sync.Mutex
	lastVersion int64
	versions    []string
	pins        map[string]int
	// retired versions are past retention but pinned; dropped on last release
	retired map[string]bool

	now func() time.Time
}

func New(backend Backend, embedder Embedder, opts Options) *Index {
	if opts.Retain < 1 {
		opts.Retain = 2
	}
	return &Index{
		backend:      backend,
		embedder:     embedder,
		retain:       opts.Retain,
		callTimeout:  opts.CallTimeout,
		buildTimeout: opts.BuildTimeout,
		log:          logger.OrNop(opts.Logger),
		pins:         make(map[string]int),
		retired:      make(map[string]bool),
		now:          time.Now,
	}
}

// Current returns the snapshot new queries should pin, or nil.
func (i *Index) Current() *Snapshot {
	return i.current.Load()
}

// ProfileText is the text a profile is indexed under.
func ProfileText(p models.ConsultantProfile) string {
	var b strings.Builder
	b.WriteString("Name: " + p.Name + "\n")
	b.WriteString("Skills: " + strings.Join(p.Skills, ", ") + "\n")
	b.WriteString("Education: " + p.Education + "\n")
	b.WriteString("Experience: " + strconv.Itoa(p.Experience) + " years\n")
	b.WriteString("Summary: " + p.Summary)
	return b.String()
}

// Fingerprint identifies a corpus by its ordered profile IDs and index texts.
func Fingerprint(profiles []models.ConsultantProfile) string {
	h := sha256.New()
	for _, p := range profiles {
		h.Write([]byte(p.ID.String()))
		h.Write([]byte{0})
		h.Write([]byte(ProfileText(p)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Build embeds every profile and publishes the result as a new snapshot.
// Nothing is published when any profile fails to embed. Concurrent builds of
// the same corpus share one execution; a caller whose ctx ends stops waiting
// without cancelling the build for the others.
func (i *Index) Build(ctx context.Context, profiles []models.ConsultantProfile) (*Snapshot, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("%w: empty profile corpus", ErrIndexBuild)
	}

	fp := Fingerprint(profiles)
	ch := i.group.DoChan(fp, func() (interface{}, error) {
		buildCtx := context.WithoutCancel(ctx)
		if i.buildTimeout > 0 {
			var cancel context.CancelFunc
			buildCtx, cancel = context.WithTimeout(buildCtx, i.buildTimeout)
			defer cancel()
		}
		return i.build(buildCtx, fp, profiles)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: stopped waiting for build: %w", ErrIndexBuild, ctx.Err())
	}
}

// Ensure returns the current snapshot when it was built from the same corpus, and builds otherwise.
func (i *Index) Ensure(ctx context.Context, profiles []models.ConsultantProfile) (*Snapshot, bool, error) {
	if cur := i.current.Load(); cur != nil && cur.Fingerprint == Fingerprint(profiles) {
		return cur, false, nil
	}
	snap, err := i.Build(ctx, profiles)
	if err != nil {
		return nil, false, err
	}
	return snap, true, nil
}

// Acquire is Ensure for readers: the returned snapshot stays queryable until
// release is called, however many newer versions are published meanwhile.
func (i *Index) Acquire(ctx context.Context, profiles []models.ConsultantProfile) (*Snapshot, bool, func(), error) {
	for attempt := 0; attempt < 3; attempt++ {
		snap, rebuilt, err := i.Ensure(ctx, profiles)
		if err != nil {
			return nil, false, nil, err
		}
		if !i.pin(snap.Version) {
			// pruned between Ensure and pin
			continue
		}

		var once sync.Once
		release := func() {
			once.Do(func() { i.release(snap.Version) })
		}
		return snap, rebuilt, release, nil
	}
	return nil, false, nil, fmt.Errorf("%w: snapshot kept being retired before it could be pinned", ErrIndexBuild)
}

// Pinned reports how many readers hold version.
func (i *Index) Pinned(version string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.pins[version]
}

func (i *Index) pin(version string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !contains(i.versions, version) && !i.retired[version] {
		return false
	}
	i.pins[version]++
	return true
}

func (i *Index) release(version string) {
	i.mu.Lock()
	i.pins[version]--
	drop := false
	if i.pins[version] <= 0 {
		delete(i.pins, version)
		drop = i.retired[version]
		delete(i.retired, version)
	}
	i.mu.Unlock()

	if drop {
		i.drop(context.Background(), version)
	}
}

func (i *Index) build(ctx context.Context, fp string, profiles []models.ConsultantProfile) (*Snapshot, error) {
	started := i.now()
	entries := make([]Entry, 0, len(profiles))
	dim := 0

	for n, p := range profiles {
		vec, err := i.encode(ctx, ProfileText(p))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to embed profile %s: %v", ErrIndexBuild, p.ID, err)
		}
		if len(vec) == 0 {
			return nil, fmt.Errorf("%w: empty embedding for profile %s", ErrIndexBuild, p.ID)
		}
		if n == 0 {
			dim = len(vec)
		} else if len(vec) != dim {
			return nil, fmt.Errorf("%w: profile %s has dimension %d, expected %d", ErrIndexBuild, p.ID, len(vec), dim)
		}
		entries = append(entries, Entry{ProfileID: p.ID, Vector: vec})
	}

	seq := i.nextVersion()
	snap := &Snapshot{
		Version:     FormatVersion(seq),
		Fingerprint: fp,
		Dimension:   dim,
		Size:        len(entries),
		CreatedAt:   timeFromSeq(seq),
	}

	if err := i.backend.Publish(ctx, snap, entries); err != nil {
		return nil, fmt.Errorf("%w: failed to publish %s: %v", ErrIndexBuild, snap.Version, err)
	}

	i.swap(snap)
	i.prune(ctx, snap.Version)

	i.log.Info("index snapshot published",
		zap.String("version", snap.Version),
		zap.Int("size", snap.Size),
		zap.Int("dimension", snap.Dimension),
		zap.Duration("took", i.now().Sub(started)),
	)

	return snap, nil
}

// Query returns up to k nearest entries of snap, closest first.
func (i *Index) Query(ctx context.Context, snap *Snapshot, vector []float32, k int) ([]Neighbor, error) {
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	if len(vector) != snap.Dimension {
		return nil, fmt.Errorf("%w: query has %d, snapshot %s has %d", ErrDimensionMismatch, len(vector), snap.Version, snap.Dimension)
	}
	if k <= 0 {
		return []Neighbor{}, nil
	}

	if i.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.callTimeout)
		defer cancel()
	}

	return i.backend.Search(ctx, snap, vector, k)
}

// Restore makes the latest durable snapshot current.
func (i *Index) Restore(ctx context.Context) (*Snapshot, error) {
	snap, err := i.backend.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	if snap == nil {
		return nil, nil
	}

	i.mu.Lock()
	if seq, err := ParseVersion(snap.Version); err == nil && seq > i.lastVersion {
		i.lastVersion = seq
	}
	if !contains(i.versions, snap.Version) {
		i.versions = append(i.versions, snap.Version)
		sort.Strings(i.versions)
	}
	i.mu.Unlock()

	i.swap(snap)
	i.log.Info("index snapshot restored", zap.String("version", snap.Version), zap.Int("size", snap.Size))
	return snap, nil
}

func (i *Index) encode(ctx context.Context, text string) ([]float32, error) {
	if i.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.callTimeout)
		defer cancel()
	}
	return i.embedder.Encode(ctx, text)
}

func (i *Index) nextVersion() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	seq := i.now().UnixNano()
	if seq <= i.lastVersion {
		seq = i.lastVersion + 1
	}
	i.lastVersion = seq
	return seq
}

// swap publishes snap unless a newer snapshot is already current.
func (i *Index) swap(snap *Snapshot) {
	for {
		cur := i.current.Load()
		if cur != nil && cur.Version >= snap.Version {
			return
		}
		if i.current.CompareAndSwap(cur, snap) {
			return
		}
	}
}

func (i *Index) prune(ctx context.Context, published string) {
	i.mu.Lock()
	i.versions = append(i.versions, published)
	sort.Strings(i.versions)
	var stale []string
	if extra := len(i.versions) - i.retain; extra > 0 {
		for _, version := range i.versions[:extra] {
			if i.pins[version] > 0 {
				i.retired[version] = true
				continue
			}
			stale = append(stale, version)
		}
		i.versions = append([]string(nil), i.versions[extra:]...)
	}
	i.mu.Unlock()

	for _, version := range stale {
		i.drop(ctx, version)
	}
}

func (i *Index) drop(ctx context.Context, version string) {
	if i.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.callTimeout)
		defer cancel()
	}
	if err := i.backend.Drop(ctx, version); err != nil {
		i.log.Warn("failed to drop stale index version", zap.String("version", version), zap.Error(err))
	}
}

// FormatVersion renders a version sequence as a tag.
func FormatVersion(seq int64) string {
	return fmt.Sprintf("v%019d", seq)
}

// ParseVersion is the inverse of FormatVersion.
func ParseVersion(version string) (int64, error) {
	if !strings.HasPrefix(version, "v") {
		return 0, fmt.Errorf("%w: %q", ErrUnknownVersion, version)
	}
	seq, err := strconv.ParseInt(strings.TrimPrefix(version, "v"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownVersion, version)
	}
	return seq, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func timeFromSeq(seq int64) time.Time {
	return time.Unix(0, seq)
}
