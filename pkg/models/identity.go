package models

// Identity is a directory entry mapping an email address to an account.
type Identity struct {
	ID        int64  `json:"id"`
	Address   string `json:"address"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Locked    bool   `json:"locked"`
}
