// Package groups implements the GroupRepository: CRUD over instance groups
// and the membership operations the balancer and HTTP API depend on.
package groups

import (
	"time"

	"github.com/google/uuid"
)

// Group is an instance group: a named, aliased set of backend instance
// names that the Balancer rotates traffic across.
type Group struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Alias       string    `json:"alias"`
	Description string    `json:"description"`
	Enabled     bool      `json:"enabled"`
	Instances   []string  `json:"instances"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CreateInput is the payload accepted by Create.
type CreateInput struct {
	Name        string   `json:"name" validate:"required,min=1,max=100"`
	Alias       string   `json:"alias" validate:"omitempty,max=100"`
	Description string   `json:"description" validate:"max=500"`
	Enabled     *bool    `json:"enabled"`
	Instances   []string `json:"instances" validate:"required,min=1"`
}

// UpdateInput is the payload accepted by Update; nil fields are left
// unchanged.
type UpdateInput struct {
	Name        *string  `json:"name" validate:"omitempty,min=1,max=100"`
	Alias       *string  `json:"alias" validate:"omitempty,max=100"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
	Enabled     *bool    `json:"enabled"`
	Instances   []string `json:"instances"`
}

// Stats summarizes a group's membership health.
type Stats struct {
	GroupID          uuid.UUID `json:"groupId"`
	Alias            string    `json:"alias"`
	TotalInstances    int      `json:"totalInstances"`
	ActiveInstances   int      `json:"activeInstances"`
	InactiveInstances []string `json:"inactiveInstances"`
}
