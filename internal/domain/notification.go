package domain

import "time"

// Notification records a scenario lifecycle event for project participants.
// A nil RecipientRole addresses every role on the project.
type Notification struct {
	ID             string
	ProjectID      string
	ScenarioNodeID *string
	Type           NotificationType
	RecipientRole  *CreatorRole
	Actor          string
	IsRead         bool
	CreatedAt      time.Time
}
