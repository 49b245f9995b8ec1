package index

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type candidateVector struct {
	ID          int64           `gorm:"column:id;primaryKey;autoIncrement:true"`
	Version     string          `gorm:"column:version;not null;index"`
	Position    int             `gorm:"column:position;not null"`
	ProfileID   uuid.UUID       `gorm:"column:profile_id;type:uuid;not null"`
	Fingerprint string          `gorm:"column:fingerprint;not null"`
	Embedding   pgvector.Vector `gorm:"column:embedding;type:vector"`
}

func (candidateVector) TableName() string {
	return "candidate_vectors"
}

// PgvectorBackend stores every version in one table keyed by a version column.
type PgvectorBackend struct {
	db *gorm.DB
}

func NewPgvectorBackend(db *gorm.DB) (*PgvectorBackend, error) {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if err := db.AutoMigrate(&candidateVector{}); err != nil {
		return nil, fmt.Errorf("failed to migrate candidate vectors: %w", err)
	}
	return &PgvectorBackend{db: db}, nil
}

func (p *PgvectorBackend) Publish(ctx context.Context, snap *Snapshot, entries []Entry) error {
	rows := make([]candidateVector, len(entries))
	for n, e := range entries {
		rows[n] = candidateVector{
			Version:     snap.Version,
			Position:    n,
			ProfileID:   e.ProfileID,
			Fingerprint: snap.Fingerprint,
			Embedding:   pgvector.NewVector(e.Vector),
		}
	}

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, 200).Error
	})
	if err != nil {
		return fmt.Errorf("failed to insert candidate vectors: %w", err)
	}
	return nil
}

func (p *PgvectorBackend) Search(ctx context.Context, snap *Snapshot, vector []float32, k int) ([]Neighbor, error) {
	var rows []struct {
		ProfileID uuid.UUID
		Distance  float64
	}

	err := p.db.WithContext(ctx).
		Model(&candidateVector{}).
		Select("profile_id, embedding <-> ? AS distance", pgvector.NewVector(vector)).
		Where("version = ?", snap.Version).
		Order("distance ASC, position ASC").
		Limit(k).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search candidate vectors: %w", err)
	}

	out := make([]Neighbor, len(rows))
	for n, r := range rows {
		out[n] = Neighbor{ProfileID: r.ProfileID, Distance: math.Pow(r.Distance, 2)}
	}
	return out, nil
}

func (p *PgvectorBackend) Drop(ctx context.Context, version string) error {
	if err := p.db.WithContext(ctx).Where("version = ?", version).Delete(&candidateVector{}).Error; err != nil {
		return fmt.Errorf("failed to drop version %s: %w", version, err)
	}
	return nil
}

func (p *PgvectorBackend) Latest(ctx context.Context) (*Snapshot, error) {
	var rows []struct {
		Version     string
		Fingerprint string
		Size        int
		Dimension   int
	}

	err := p.db.WithContext(ctx).
		Model(&candidateVector{}).
		Select("version, fingerprint, COUNT(*) AS size, MAX(vector_dims(embedding)) AS dimension").
		Group("version, fingerprint").
		Order("version DESC").
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load latest version: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	r := rows[0]
	seq, _ := ParseVersion(r.Version)
	return &Snapshot{
		Version:     r.Version,
		Fingerprint: r.Fingerprint,
		Dimension:   r.Dimension,
		Size:        r.Size,
		CreatedAt:   timeFromSeq(seq),
	}, nil
}
