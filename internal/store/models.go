package store

import "time"

// User owns an ordered sequence of boards.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	BoardIDs     []string
	CreatedAt    time.Time
}

// Board belongs to exactly one owner and orders its lists.
type Board struct {
	ID        string
	Title     string
	OwnerID   string
	ListIDs   []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// List belongs to exactly one board and orders its cards.
type List struct {
	ID        string
	Title     string
	BoardID   string
	CardIDs   []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Card belongs to exactly one list. ListID changes only through MoveCards.
type Card struct {
	ID        string
	Title     string
	ListID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
