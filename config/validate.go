package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

var knownSourceTypes = map[string]struct{}{"http": {}, "static": {}}

// Validate checks the loaded configuration for values the node cannot run
// with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress required")
	}
	for key, limit := range c.RateLimits {
		if limit.RatePerSecond < 0 || limit.Burst < 0 {
			return fmt.Errorf("rate_limits.%s: values must not be negative", key)
		}
	}
	if c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within (0, 1]")
	}
	if (c.Telemetry.Metrics || c.Telemetry.Traces) && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry: Endpoint required when exporting")
	}
	if c.RateFeed.Enabled {
		if len(c.RateFeed.Sources) == 0 {
			return fmt.Errorf("ratefeed: at least one source required")
		}
		if c.RateFeed.MinFeeds > len(c.RateFeed.Sources) {
			return fmt.Errorf("ratefeed: MinFeeds %d exceeds %d sources", c.RateFeed.MinFeeds, len(c.RateFeed.Sources))
		}
		if _, err := cron.ParseStandard(c.RateFeed.Schedule); err != nil {
			return fmt.Errorf("ratefeed: schedule: %w", err)
		}
		for i, src := range c.RateFeed.Sources {
			if strings.TrimSpace(src.Name) == "" {
				return fmt.Errorf("ratefeed.sources[%d]: Name required", i)
			}
			if _, ok := knownSourceTypes[strings.ToLower(strings.TrimSpace(src.Type))]; !ok {
				return fmt.Errorf("ratefeed.sources[%d]: unknown type %q", i, src.Type)
			}
		}
	}
	if raw := strings.TrimSpace(c.Webhook.URL); raw != "" {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("webhook: invalid URL %q", raw)
		}
	}
	if strings.TrimSpace(c.Reports.Dir) != "" {
		if _, err := cron.ParseStandard(c.Reports.Schedule); err != nil {
			return fmt.Errorf("reports: schedule: %w", err)
		}
	}
	return nil
}
