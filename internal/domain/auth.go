package domain

import "time"

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=40"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string    `bson:"_id"`
	Password  string    `bson:"password"`
	Role      string    `bson:"role"`
	Active    bool      `bson:"active"`
	CreatedAt time.Time `bson:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id" bson:"_id"`
	ActorUsername string    `json:"actor_username" bson:"actor_username"`
	ActorRole     string    `json:"actor_role" bson:"actor_role"`
	Action        string    `json:"action" bson:"action"`
	EntityType    string    `json:"entity_type" bson:"entity_type"`
	EntityID      string    `json:"entity_id" bson:"entity_id"`
	Detail        string    `json:"detail" bson:"detail"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
}

type AuditFilter struct {
	EntityType string
	EntityID   string
	From       time.Time
	To         time.Time
	Limit      int
}
