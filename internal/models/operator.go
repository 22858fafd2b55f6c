package models

import "time"

const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// Operator is an admin console user.
type Operator struct {
	ID             string     `bson:"_id,omitempty" json:"id"`
	Email          string     `bson:"email" json:"email"`
	Name           string     `bson:"name" json:"name"`
	Role           string     `bson:"role" json:"role"`
	FleetID        string     `bson:"fleet_id,omitempty" json:"fleet_id,omitempty"`
	HashedPassword string     `bson:"hashed_password" json:"-"`
	LastActiveAt   *time.Time `bson:"last_active_at,omitempty" json:"last_active_at,omitempty"`
	CreatedAt      time.Time  `bson:"created_at" json:"created_at"`
}
