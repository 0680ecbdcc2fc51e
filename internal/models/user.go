package models

import "time"

type User struct {
	ID          int64     `json:"id" example:"1"`                       // User ID
	Email       string    `json:"email" example:"user@example.com"`     // User email, unique
	FirstName   string    `json:"first_name" example:"John"`            // User first name
	LastName    string    `json:"last_name" example:"Doe"`              // User last name
	PhoneNumber string    `json:"phone_number" example:"+15550123456"`  // User phone number
	CreatedAt   time.Time `json:"created_at"`
}
