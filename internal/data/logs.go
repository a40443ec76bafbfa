package data

import (
	"context"
	"fmt"
	"time"
)

// BirdRiskLogModel appends accepted bird-risk transitions.
type BirdRiskLogModel struct {
	DB DBTX
}

func (m BirdRiskLogModel) Append(ctx context.Context, prev, next string, at time.Time) error {
	if _, err := m.DB.ExecContext(ctx, `
		INSERT INTO bird_risk_log (prev_level, new_level, changed_at)
		VALUES ($1, $2, $3)`,
		prev, next, at.UTC()); err != nil {
		return fmt.Errorf("append bird_risk_log: %w", err)
	}
	return nil
}

// InteractionLogModel appends pilot query/response pairs.
type InteractionLogModel struct {
	DB DBTX
}

func (m InteractionLogModel) Append(ctx context.Context, request, response string, requestedAt, respondedAt time.Time) error {
	if _, err := m.DB.ExecContext(ctx, `
		INSERT INTO interaction_log (request_code, response_code, requested_at, responded_at)
		VALUES ($1, $2, $3, $4)`,
		request, response, requestedAt.UTC(), respondedAt.UTC()); err != nil {
		return fmt.Errorf("append interaction_log: %w", err)
	}
	return nil
}
