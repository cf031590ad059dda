package history

import (
	// Postgres is the only database the director is deployed against.
	_ "github.com/lib/pq"
)
