package storage

import (
	"context"
	"database/sql"
)

// GetPlan returns a subscription plan by id. Plans are reference data owned
// by the billing domain; this subsystem only reads them.
func (s *Store) GetPlan(ctx context.Context, id string) (SubscriptionPlan, error) {
	var p SubscriptionPlan
	var priority int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, daily_limit, priority, resumes_allowed, ai_tier
		FROM subscription_plans WHERE id = ?`, id).
		Scan(&p.ID, &p.DailyLimit, &priority, &p.ResumesAllowed, &p.AITier)
	if err == sql.ErrNoRows {
		return SubscriptionPlan{}, ErrNotFound
	}
	if err != nil {
		return SubscriptionPlan{}, err
	}
	p.Priority = priority != 0
	return p, nil
}

// ListPlans returns all subscription plans ordered by daily limit.
func (s *Store) ListPlans(ctx context.Context) ([]SubscriptionPlan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, daily_limit, priority, resumes_allowed, ai_tier
		FROM subscription_plans ORDER BY daily_limit`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []SubscriptionPlan
	for rows.Next() {
		var p SubscriptionPlan
		var priority int
		if err := rows.Scan(&p.ID, &p.DailyLimit, &priority, &p.ResumesAllowed, &p.AITier); err != nil {
			return nil, err
		}
		p.Priority = priority != 0
		plans = append(plans, p)
	}
	return plans, rows.Err()
}
