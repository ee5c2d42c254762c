package postgres

import "datview/internal/storage"

func init() {
	// registers the backend factory
	storage.Register("postgres", New)
}
