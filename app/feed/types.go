package feed

import (
	"time"
)

// Entry is the newest item found in a source's feed.
type Entry struct {
	ItemID      string
	Title       string
	PublishedAt time.Time
}

// Response is what a Transport returns for one fetch.
type Response struct {
	Status int
	Body   []byte
}

// Configuration types

type Config struct {
	Key     string // Derived from filename (without .yml extension)
	Channel string `yaml:"channel"` // UC... id or @handle
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`
}
