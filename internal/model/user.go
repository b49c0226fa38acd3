package model

import "time"

// DefaultTimezone is used for users who never set one.
const DefaultTimezone = "UTC"

// User is a chat participant identified by their phone number.
type User struct {
	ID            string     `json:"id" db:"id"`
	Phone         string     `json:"phone" db:"phone"`
	Name          string     `json:"name" db:"name"`
	Timezone      string     `json:"timezone" db:"timezone"`
	LastInboundAt *time.Time `json:"last_inbound_at,omitempty" db:"last_inbound_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}
