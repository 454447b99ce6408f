package quota

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// OpenLedger selects the ledger storage strategy by name. Empty defaults
// to postgres. The redis backend trades durability for latency; memory is
// single-instance only and loses state on restart.
func OpenLedger(backend string, db *sql.DB, client *redis.Client, log *slog.Logger) (Ledger, error) {
	switch backend {
	case "", "postgres":
		return NewPostgresLedger(db, log), nil
	case "redis":
		return NewRedisLedger(client, log), nil
	case "memory":
		return NewMemoryLedger(log), nil
	default:
		return nil, fmt.Errorf("unknown quota backend %q", backend)
	}
}
