package db

import (
	"context"
	"time"

	"wardrobe/internal/types"
)

// OutfitGenerationRepo records completed AI outfit generations. Rows are
// written only after the usage reservation succeeded, so the counter is the
// authority on quota and this table is the authority on what was produced.
type OutfitGenerationRepo struct {
	db DBTX
}

// NewOutfitGenerationRepo creates an OutfitGenerationRepo backed by the
// given database connection (pool or transaction).
func NewOutfitGenerationRepo(db DBTX) *OutfitGenerationRepo {
	return &OutfitGenerationRepo{db: db}
}

// Record inserts one generation row.
func (r *OutfitGenerationRepo) Record(ctx context.Context, gen *types.OutfitGeneration) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO outfit_generations (id, user_id, prompt, style, period_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		gen.ID, gen.UserID, gen.Prompt, gen.Style, gen.PeriodKey, gen.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record outfit generation", err)
	}
	return nil
}

// CountSince returns how many generations a user produced since the cutoff,
// used by the admin overview.
func (r *OutfitGenerationRepo) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM outfit_generations
		 WHERE user_id = $1 AND created_at >= $2`,
		userID, since,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count outfit generations", err)
	}
	return count, nil
}
