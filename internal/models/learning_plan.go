package models

import "strings"

// LearningPlan is a user-owned study plan.
type LearningPlan struct {
	ID          string   `json:"id,omitempty"`
	UserID      string   `json:"userId,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Topics      []string `json:"topics"`
	Resources   []string `json:"resources"`
}

// Validate enforces the fields the plan form requires before submission.
func (p *LearningPlan) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return NewValidationError("Name is required")
	}
	if strings.TrimSpace(p.Description) == "" {
		return NewValidationError("Description is required")
	}
	if len(p.Topics) == 0 {
		return NewValidationError("At least one topic is required")
	}
	if len(p.Resources) == 0 {
		return NewValidationError("At least one resource is required")
	}
	return nil
}

// SplitList turns a comma-separated form value into trimmed, non-empty entries.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
