// Package config loads the worker's environment configuration into a
// typed struct, applying sensible defaults and floors to every key.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved, floor-enforced worker configuration.
type Config struct {
	DatabaseURL string

	PollInterval time.Duration

	CommerceAPIVersion string

	AdsAttributionWindowDays int

	// FreshSchedMinutes is keyed by source type ("commerce", "ads"),
	// read from FRESH_SCHED_MINUTES_COMMERCE / FRESH_SCHED_MINUTES_ADS,
	// each falling back to the shared FRESH_SCHED_MINUTES default.
	FreshSchedMinutes map[string]int

	CronSecret string

	AdsJobsEnabled bool

	HealthPort int

	IPv4Override string
}

const (
	defaultPollIntervalMS      = 5000
	floorPollIntervalMS        = 1000
	defaultCommerceAPIVersion  = "2025-01"
	defaultAttributionWindow   = 7
	floorAttributionWindow     = 1
	defaultFreshSchedMinutes   = 60
	floorFreshSchedMinutes     = 5
	defaultHealthPort          = 3000
	attributionWindowWarnCeil  = 30
)

// Load reads environment variables via viper's AutomaticEnv binding and
// returns a Config with every default and floor applied.
//
// DATABASE_URL is the only required key; every other key has a usable
// default.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("POLL_INTERVAL_MS", defaultPollIntervalMS)
	v.SetDefault("COMMERCE_API_VERSION", defaultCommerceAPIVersion)
	v.SetDefault("ADS_ATTRIBUTION_WINDOW_DAYS", defaultAttributionWindow)
	v.SetDefault("FRESH_SCHED_MINUTES", defaultFreshSchedMinutes)
	v.SetDefault("FRESH_SCHED_MINUTES_COMMERCE", v.GetInt("FRESH_SCHED_MINUTES"))
	v.SetDefault("FRESH_SCHED_MINUTES_ADS", v.GetInt("FRESH_SCHED_MINUTES"))
	v.SetDefault("ADS_JOBS_ENABLED", false)
	v.SetDefault("HEALTH_PORT", defaultHealthPort)

	dbURL := v.GetString("DATABASE_URL")
	if dbURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}

	pollMS := v.GetInt("POLL_INTERVAL_MS")
	if pollMS < floorPollIntervalMS {
		pollMS = floorPollIntervalMS
	}

	attributionDays := v.GetInt("ADS_ATTRIBUTION_WINDOW_DAYS")
	if attributionDays < floorAttributionWindow {
		attributionDays = floorAttributionWindow
	}

	freshMinutesCommerce := v.GetInt("FRESH_SCHED_MINUTES_COMMERCE")
	if freshMinutesCommerce < floorFreshSchedMinutes {
		freshMinutesCommerce = floorFreshSchedMinutes
	}

	freshMinutesAds := v.GetInt("FRESH_SCHED_MINUTES_ADS")
	if freshMinutesAds < floorFreshSchedMinutes {
		freshMinutesAds = floorFreshSchedMinutes
	}

	healthPort := v.GetInt("HEALTH_PORT")
	if healthPort <= 0 {
		healthPort = defaultHealthPort
	}

	return Config{
		DatabaseURL:              dbURL,
		PollInterval:             time.Duration(pollMS) * time.Millisecond,
		CommerceAPIVersion:       v.GetString("COMMERCE_API_VERSION"),
		AdsAttributionWindowDays: attributionDays,
		FreshSchedMinutes: map[string]int{
			"commerce": freshMinutesCommerce,
			"ads":      freshMinutesAds,
		},
		CronSecret:     v.GetString("CRON_SECRET"),
		AdsJobsEnabled: v.GetBool("ADS_JOBS_ENABLED"),
		HealthPort:     healthPort,
		IPv4Override:   v.GetString("IPV4_OVERRIDE"),
	}, nil
}

// AttributionWindowExceedsSafeCeiling reports whether the configured ads
// attribution window is large enough to warrant an operator warning.
func (c Config) AttributionWindowExceedsSafeCeiling() bool {
	return c.AdsAttributionWindowDays > attributionWindowWarnCeil
}
