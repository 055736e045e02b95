// Package config holds environment-derived defaults for the engine, mirroring
// the teacher's getEnv/getEnvInt helpers (see cmd/server/main.go in the
// shiv248/kolabpad teacher repo this module is adapted from).
package config

import (
	"os"
	"strconv"
	"time"
)

// Defaults for connecting to the notebook server when an explicit
// connect_jupyter call is omitted (see §6 of spec.md).
type ConnectionDefaults struct {
	Host  string
	Port  string
	Token string
}

// FromEnvironment reads JUPYTER_HOST / JUPYTER_PORT / JUPYTER_TOKEN.
func FromEnvironment() ConnectionDefaults {
	return ConnectionDefaults{
		Host:  getEnv("JUPYTER_HOST", "localhost"),
		Port:  getEnv("JUPYTER_PORT", "8888"),
		Token: os.Getenv("JUPYTER_TOKEN"),
	}
}

// Tunables are the engine's operational knobs, each with the default named
// in spec.md and an environment override.
type Tunables struct {
	LockTTL               time.Duration // §3 Lock entry TTL, default 10m
	ChangeLogCapInMemory  int           // §3, default 500
	ChangeLogCapShared    int           // §3, default 1000 (soft factor 2 -> hard 2000)
	SnapshotCapShared     int           // §3, default 20
	SyncTimeout           time.Duration // §4.3, default 10s
	KernelExecTimeout     time.Duration // §4.10, default 30s
	KernelExecTimeoutMax  time.Duration // §4.10, cap 5m
	RenameAnalyzerTimeout time.Duration // §4.11, default 30s
}

// Default returns the engine's tunables with spec-mandated defaults,
// overridable via environment variables for operators/tests.
func Default() Tunables {
	return Tunables{
		LockTTL:               getEnvDuration("LOCK_TTL_MINUTES", 10*time.Minute, time.Minute),
		ChangeLogCapInMemory:  getEnvInt("CHANGELOG_CAP_MEMORY", 500),
		ChangeLogCapShared:    getEnvInt("CHANGELOG_CAP_SHARED", 1000),
		SnapshotCapShared:     getEnvInt("SNAPSHOT_CAP_SHARED", 20),
		SyncTimeout:           getEnvDuration("SYNC_TIMEOUT_SECONDS", 10*time.Second, time.Second),
		KernelExecTimeout:     getEnvDuration("KERNEL_EXEC_TIMEOUT_SECONDS", 30*time.Second, time.Second),
		KernelExecTimeoutMax:  5 * time.Minute,
		RenameAnalyzerTimeout: getEnvDuration("RENAME_TIMEOUT_SECONDS", 30*time.Second, time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration, unit time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i) * unit
		}
	}
	return defaultValue
}
