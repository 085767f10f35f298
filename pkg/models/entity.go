package models

import "time"

// Client represents a customer organization on the external board.
// This core holds only a cached copy with an embedding attached.
type Client struct {
	// ID is the board's identifier for the client.
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// Embedding summarizes historical task descriptions for this client.
	Embedding []float64 `json:"-"`
	// FetchedAt is when this cache entry was last refreshed from the board.
	FetchedAt time.Time `json:"fetched_at"`
}

// Project represents a body of work belonging to exactly one client.
type Project struct {
	// ID is the board's identifier for the project.
	ID string `json:"id"`
	// ClientID is the owning client.
	ClientID string `json:"client_id"`
	// Name is the display name.
	Name string `json:"name"`
	// Embedding summarizes historical task descriptions for this project.
	Embedding []float64 `json:"-"`
	// FetchedAt is when this cache entry was last refreshed from the board.
	FetchedAt time.Time `json:"fetched_at"`
}
