package domain

import (
	"time"
)

// User represents a learner, optionally bound to a wallet address.
type User struct {
	UserID        string    `json:"user_id"`
	Username      string    `json:"username"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	LastSeenAt    time.Time `json:"last_seen_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasWallet returns true if the user has connected a wallet.
func (u *User) HasWallet() bool {
	return u.WalletAddress != ""
}
