package api

import (
	"context"
	"net/http"
	"net/url"

	"feedsync/internal/models"
)

// MyLearningPlans lists the caller's learning plans.
func (c *Client) MyLearningPlans(ctx context.Context) ([]models.LearningPlan, error) {
	var plans []models.LearningPlan
	err := c.getJSON(ctx, "/api/learningplans/my", "/api/learningplans/my", &plans)
	return plans, err
}

// CreateLearningPlan validates and stores a new plan.
func (c *Client) CreateLearningPlan(ctx context.Context, plan models.LearningPlan) (*models.LearningPlan, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	var out models.LearningPlan
	if err := c.sendJSON(ctx, http.MethodPost, "/api/learningplans", "/api/learningplans", plan, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateLearningPlan validates and replaces the plan with id.
func (c *Client) UpdateLearningPlan(ctx context.Context, id string, plan models.LearningPlan) (*models.LearningPlan, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	var out models.LearningPlan
	err := c.sendJSON(ctx, http.MethodPut, "/api/learningplans/{id}", "/api/learningplans/"+url.PathEscape(id), plan, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteLearningPlan removes the plan with id.
func (c *Client) DeleteLearningPlan(ctx context.Context, id string) error {
	return c.sendJSON(ctx, http.MethodDelete, "/api/learningplans/{id}", "/api/learningplans/"+url.PathEscape(id), nil, nil)
}
