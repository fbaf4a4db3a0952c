package feed

import (
	"context"
	"fmt"
	"strings"

	"feedsync/internal/collection"
	"feedsync/internal/models"
)

// PlanAPI is the slice of the API the learning plan view calls.
type PlanAPI interface {
	MyLearningPlans(ctx context.Context) ([]models.LearningPlan, error)
	CreateLearningPlan(ctx context.Context, plan models.LearningPlan) (*models.LearningPlan, error)
	UpdateLearningPlan(ctx context.Context, id string, plan models.LearningPlan) (*models.LearningPlan, error)
	DeleteLearningPlan(ctx context.Context, id string) error
}

// LearningPlans is the signed-in user's plan list.
type LearningPlans struct {
	api   PlanAPI
	plans *collection.Synchronizer[string, models.LearningPlan]
}

// NewLearningPlans creates an unloaded plan list.
func NewLearningPlans(client PlanAPI, opts Options) *LearningPlans {
	return &LearningPlans{
		api: client,
		plans: collection.New("learningplans",
			func(p models.LearningPlan) string { return p.ID },
			client.MyLearningPlans,
			opts.reporter()),
	}
}

// Load replaces the list with the server's.
func (l *LearningPlans) Load(ctx context.Context) error {
	return l.plans.Load(ctx)
}

// Plans returns the loaded plans.
func (l *LearningPlans) Plans() []models.LearningPlan {
	return l.plans.Items()
}

// Search returns plans whose name contains query, case-insensitively.
func (l *LearningPlans) Search(query string) []models.LearningPlan {
	query = strings.ToLower(strings.TrimSpace(query))
	all := l.plans.Items()
	if query == "" {
		return all
	}
	out := make([]models.LearningPlan, 0, len(all))
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Name), query) {
			out = append(out, p)
		}
	}
	return out
}

// Create validates plan, stores it and reloads.
func (l *LearningPlans) Create(ctx context.Context, plan models.LearningPlan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	return l.plans.Mutate(ctx, func(ctx context.Context) error {
		if _, err := l.api.CreateLearningPlan(ctx, plan); err != nil {
			return fmt.Errorf("create learning plan: %w", err)
		}
		return nil
	})
}

// Update validates plan, replaces the plan with id and reloads.
func (l *LearningPlans) Update(ctx context.Context, id string, plan models.LearningPlan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	return l.plans.Mutate(ctx, func(ctx context.Context) error {
		if _, err := l.api.UpdateLearningPlan(ctx, id, plan); err != nil {
			return fmt.Errorf("update learning plan: %w", err)
		}
		return nil
	})
}

// Delete removes the plan with id and reloads.
func (l *LearningPlans) Delete(ctx context.Context, id string) error {
	return l.plans.Mutate(ctx, func(ctx context.Context) error {
		if err := l.api.DeleteLearningPlan(ctx, id); err != nil {
			return fmt.Errorf("delete learning plan: %w", err)
		}
		return nil
	})
}
