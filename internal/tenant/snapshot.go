// Package tenant implements the tenant snapshot cache (C9): a TTL cache in
// front of a Postgres-backed store of per-tenant call configuration.
package tenant

import "time"

// VoiceConfig selects the synthesis provider/voice for a tenant's calls.
type VoiceConfig struct {
	Provider   string
	VoiceID    string
	SampleRate int
}

// ToolLimits mirrors the tenant's configured tool-policy limits.
type ToolLimits struct {
	MaxToolCallsPerTurn int
	PerToolTimeout      time.Duration
	TotalToolTimeout    time.Duration
}

// Snapshot is the immutable-per-call view of a tenant's configuration.
// It is refreshed from the store on cache miss; calls hold their own copy
// for the lifetime of the session.
type Snapshot struct {
	TenantID         string
	DisplayName      string
	Industry         string
	Language         string
	Tone             string
	DialedNumber     string
	GreetingText     string
	GreetingAudioRef string
	Voice            VoiceConfig
	SystemPromptVars map[string]string
	ToolLimits       ToolLimits
	Unknown          bool
}

// Generic returns the safe, degraded snapshot served when a tenant id
// cannot be resolved: a generic greeting, no tenant-specific policies, and
// tools limited to whatever the public catalogue allows by default.
func Generic() Snapshot {
	return Snapshot{
		TenantID:     "unknown",
		DisplayName:  "the front desk",
		Language:     "en",
		GreetingText: "Thanks for calling. How can I help you today?",
		Voice:        VoiceConfig{Provider: "mock", VoiceID: "default", SampleRate: 8000},
		ToolLimits: ToolLimits{
			MaxToolCallsPerTurn: 2,
			PerToolTimeout:      400 * time.Millisecond,
			TotalToolTimeout:    time.Second,
		},
		Unknown: true,
	}
}
