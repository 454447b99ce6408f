package quota

import (
	"time"

	"github.com/consultahub/consulta-server/internal/domain"
	"github.com/consultahub/consulta-server/pkg/config"
)

// Policy maps role tiers to daily credit limits for one quota period length.
type Policy struct {
	Period time.Duration
	Limits map[domain.Role]int
}

// PolicyFromConfig builds the policy table from the quota config section.
func PolicyFromConfig(cfg config.QuotaConfig) Policy {
	return Policy{
		Period: cfg.Period,
		Limits: map[domain.Role]int{
			domain.RoleUser:    cfg.Limits.User,
			domain.RolePremium: cfg.Limits.Premium,
			domain.RoleAdmin:   cfg.Limits.Admin,
			domain.RoleOwner:   cfg.Limits.Owner,
		},
	}
}

// LimitFor returns the daily limit for a role, falling back to the base
// user tier for anything unknown.
func (p Policy) LimitFor(role domain.Role) int {
	if limit, ok := p.Limits[role]; ok {
		return limit
	}

	return p.Limits[domain.RoleUser]
}
