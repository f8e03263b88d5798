package constants

import "time"

const (
	// SourceName is the intelligence source attributed on clusters and tags.
	SourceName = "CrowdStrike"

	// EventPrefix starts every event info string ("ADV-<id> <name>").
	EventPrefix = "ADV"
)

const (
	// MaxLookbackDays caps the first-run delta window.
	MaxLookbackDays = 7300

	DefaultLookbackDays = 365
)

const (
	RetryMaxAttempts     = 3
	RetryInitialInterval = 300 * time.Millisecond
	RetryMaxInterval     = 30 * time.Second
	RetryMultiplier      = 2.0
)

const (
	DefaultConcurrency = 4
)

const (
	// ClusterDistributionOrg restricts synthesized clusters to the source org.
	ClusterDistributionOrg = 1

	ClusterTypeThreatActor = "threat-actor"
)

const (
	DefaultHTTPTimeout = 10 * time.Second
	ShutdownTimeout    = 5 * time.Second
)

const (
	CheckpointRedisKey = "actor_sync:checkpoint"
)
