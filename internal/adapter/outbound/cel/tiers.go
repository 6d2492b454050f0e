package cel

import (
	"fmt"
	"time"

	"github.com/voltigdev/voltig-turbo/internal/config"
	"github.com/voltigdev/voltig-turbo/internal/domain/ratelimit"
)

// CompileTiers turns the configured tiers into rate limit tiers in order.
// The ban duration is shared by every tier.
func CompileTiers(cfg config.RateLimitConfig) ([]ratelimit.Tier, error) {
	c, err := NewCompiler()
	if err != nil {
		return nil, err
	}
	banDuration := config.MustDuration(cfg.BanDuration, 10*time.Minute)

	tiers := make([]ratelimit.Tier, 0, len(cfg.Tiers))
	for _, tc := range cfg.Tiers {
		window, err := config.ParseDuration(tc.Window)
		if err != nil {
			return nil, fmt.Errorf("tier %q: invalid window: %w", tc.Name, err)
		}
		m, err := c.Compile(tc.Match)
		if err != nil {
			return nil, fmt.Errorf("tier %q: invalid match expression: %w", tc.Name, err)
		}
		tiers = append(tiers, ratelimit.Tier{
			Name: tc.Name,
			Config: ratelimit.RateLimitConfig{
				Max:         tc.Max,
				Window:      window,
				BanAfter:    tc.BanAfter,
				BanDuration: banDuration,
			},
			Match: m,
		})
	}
	return tiers, nil
}
