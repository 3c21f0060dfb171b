package models

import "time"

// User is an account that owns races and synthesis jobs
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// AuthResponse is returned by signup and login
type AuthResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}
