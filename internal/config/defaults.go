// ABOUTME: Centralized configuration defaults for lessonstore
// ABOUTME: Contains magic numbers and hardcoded values for network and storage

package config

import "time"

// HTTP settings
const (
	DefaultHTTPTimeout = 30 * time.Second
	DefaultAPIBaseURL  = "https://lessons.example.org"
)

// Cache settings
const (
	DefaultSweepMinutes = 30
)

// Display settings
const (
	DateFormatShort = "02 Jan 06 15:04 MST"
)

// Storage settings
const (
	DefaultDirPerms = 0755
)
