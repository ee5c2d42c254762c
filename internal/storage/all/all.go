// Package all links every storage backend into the importing binary.
//
// The config selects one backend at runtime; importing this package makes
// sure all of them are registered with the storage factory.
package all

import (
	_ "datview/internal/storage/mssql"
	_ "datview/internal/storage/postgres"
	_ "datview/internal/storage/sqlite"
)
