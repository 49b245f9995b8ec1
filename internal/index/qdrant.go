package index

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const qdrantUpsertBatch = 256

// QdrantBackend keeps one collection per snapshot version. A version counts as
// published only once its ready alias exists, which is created after the last
// point was written.
type QdrantBackend struct {
	client *qdrant.Client
	prefix string
}

func NewQdrantBackend(urlStr, apiKey, collection string) (*QdrantBackend, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	// gRPC port
	port := 6334
	if p := parsed.Port(); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   parsed.Hostname(),
		Port:   port,
		APIKey: apiKey,
		UseTLS: parsed.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantBackend{client: client, prefix: collection}, nil
}

func (q *QdrantBackend) Close() error {
	return q.client.Close()
}

func (q *QdrantBackend) collectionName(version string) string {
	return q.prefix + "_" + version
}

func (q *QdrantBackend) readyAlias(version string) string {
	return q.prefix + "_ready_" + version
}

// readyVersion returns the newest version whose ready alias points at its own
// collection, or "".
func (q *QdrantBackend) readyVersion(aliases []*qdrant.AliasDescription) string {
	latest := ""
	for _, a := range aliases {
		version, ok := strings.CutPrefix(a.GetAliasName(), q.prefix+"_ready_")
		if !ok || q.versionOf(a.GetCollectionName()) != version {
			continue
		}
		if version > latest {
			latest = version
		}
	}
	return latest
}

// versionOf returns the version a collection holds, or "" when the collection is not ours.
func (q *QdrantBackend) versionOf(collection string) string {
	version, ok := strings.CutPrefix(collection, q.prefix+"_")
	if !ok {
		return ""
	}
	if _, err := ParseVersion(version); err != nil {
		return ""
	}
	return version
}

func (q *QdrantBackend) Publish(ctx context.Context, snap *Snapshot, entries []Entry) error {
	name := q.collectionName(snap.Version)

	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(snap.Dimension),
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	for start := 0; start < len(entries); start += qdrantUpsertBatch {
		end := min(start+qdrantUpsertBatch, len(entries))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for n := start; n < end; n++ {
			e := entries[n]
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewID(e.ProfileID.String()),
				Vectors: qdrant.NewVectors(e.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"profile_id":  e.ProfileID.String(),
					"position":    int64(n),
					"fingerprint": snap.Fingerprint,
				}),
			})
		}

		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			_ = q.client.DeleteCollection(context.WithoutCancel(ctx), name)
			return fmt.Errorf("failed to upsert points: %w", err)
		}
	}

	if err := q.client.CreateAlias(ctx, q.readyAlias(snap.Version), name); err != nil {
		_ = q.client.DeleteCollection(context.WithoutCancel(ctx), name)
		return fmt.Errorf("failed to mark collection %s ready: %w", name, err)
	}

	return nil
}

func (q *QdrantBackend) Search(ctx context.Context, snap *Snapshot, vector []float32, k int) ([]Neighbor, error) {
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName(snap.Version),
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	type ranked struct {
		Neighbor
		position int64
	}
	results := make([]ranked, 0, len(hits))
	for _, point := range hits {
		id, err := uuid.Parse(point.Payload["profile_id"].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("point without profile id in %s: %w", snap.Version, err)
		}
		// Euclid scores are plain distances
		d := float64(point.Score)
		results = append(results, ranked{
			Neighbor: Neighbor{ProfileID: id, Distance: d * d},
			position: point.Payload["position"].GetIntegerValue(),
		})
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Distance != results[b].Distance {
			return results[a].Distance < results[b].Distance
		}
		return results[a].position < results[b].position
	})

	out := make([]Neighbor, len(results))
	for n, r := range results {
		out[n] = r.Neighbor
	}
	return out, nil
}

func (q *QdrantBackend) Drop(ctx context.Context, version string) error {
	// the alias goes first so a half-deleted version is never restored
	_ = q.client.DeleteAlias(ctx, q.readyAlias(version))
	if err := q.client.DeleteCollection(ctx, q.collectionName(version)); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

func (q *QdrantBackend) Latest(ctx context.Context) (*Snapshot, error) {
	aliases, err := q.client.ListAliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}

	// collections without a ready alias are leftovers of interrupted builds
	latest := q.readyVersion(aliases)
	if latest == "" {
		return nil, nil
	}

	name := q.collectionName(latest)
	info, err := q.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %s: %w", name, err)
	}

	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: name,
		Limit:          qdrant.PtrOf(uint32(1)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scroll collection %s: %w", name, err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	seq, _ := ParseVersion(latest)
	return &Snapshot{
		Version:     latest,
		Fingerprint: points[0].Payload["fingerprint"].GetStringValue(),
		Dimension:   int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()),
		Size:        int(info.GetPointsCount()),
		CreatedAt:   timeFromSeq(seq),
	}, nil
}
