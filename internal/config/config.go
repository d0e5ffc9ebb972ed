package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenPort      string        // ex: "127.0.0.1:7710"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	SettingsFile    string // YAML settings store
	DriverStoreFile string // JSON identity -> driver map owed a restoration
	DefaultDriver   string // driver reinstalled when the store has no entry (ex: "xpad")

	// Lifecycle timings
	ProbeTimeout            time.Duration // vendor channel connect budget (default: 4s)
	ProbeBackoff            time.Duration // wait between connect attempts (default: 1s)
	RemovalTimeout          time.Duration // how long a removal waits for its registry entry (default: 10s)
	RemovalPoll             time.Duration // registry poll interval during removal (default: 100ms)
	ReadyPoll               time.Duration // readiness poll for transports without a ready signal (default: 250ms)
	WatchdogInterval        time.Duration // sleep between watchdog rounds (default: 2s)
	WatchdogSettle          time.Duration // settle time after clearing duplicate slots (default: 2s)
	VirtualSettle           time.Duration // pause between virtual suspend and resume (default: 1s)
	WatchdogMaxAttempts     int           // remediation rounds before giving up (default: 4)
	ScenarioDebounce        time.Duration // quiet period before scenario evaluation (default: 1s)
	DriverReconcileInterval time.Duration // idle period of the driver reconciler (default: 1h)
	CyclerGCInterval        time.Duration // how often stale power-cycle marks are swept (default: 1m)
	CyclerGCThreshold       time.Duration // age after which a power-cycle mark is stale (default: 2m)

	// Host
	HostManufacturer    string   // overrides the DMI vendor (ex: "AOKZOE")
	RumbleManufacturers []string // host vendors whose XUsb arrivals rumble the target
	DesignatedPlatform  string   // foreground platform that unmutes the embedded controller (ex: "steam")

	// Redis (optional, empty address disables telemetry)
	RedisAddr           string        // ex: "localhost:6379"
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           // Redis DB number
	RedisDT             time.Duration // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration // Redis read timeout (ex: 3s)
	RedisWT             time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait        time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int           // Redis connection pool size
	RedisConnectTimeout time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold  int           // warn after this many attempts
	RedisStreamMaxLen   int64         // cap of the input frame stream

	AllowedCIDRS []string // restrict access to the control API (default: loopback)
	TrustProxy   bool     // true => trust X-Forwarded-For headers
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("PADHERD_LISTEN_PORT", "127.0.0.1:7710"),
		ShutdownTimeout: mustDuration("PADHERD_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("PADHERD_LOG_LEVEL", "info"),
		PrettyLog: mustBool("PADHERD_PRETTY_LOG", true),

		// Storage
		SettingsFile:    getenv("PADHERD_SETTINGS_FILE", "/var/lib/padherd/settings.yaml"),
		DriverStoreFile: getenv("PADHERD_DRIVER_STORE", "/var/lib/padherd/drivers.json"),
		DefaultDriver:   getenv("PADHERD_DEFAULT_DRIVER", "xpad"),

		// Timings
		ProbeTimeout:            mustDuration("PADHERD_PROBE_TIMEOUT", 4*time.Second),
		ProbeBackoff:            mustDuration("PADHERD_PROBE_BACKOFF", time.Second),
		RemovalTimeout:          mustDuration("PADHERD_REMOVAL_TIMEOUT", 10*time.Second),
		RemovalPoll:             mustDuration("PADHERD_REMOVAL_POLL", 100*time.Millisecond),
		ReadyPoll:               mustDuration("PADHERD_READY_POLL", 250*time.Millisecond),
		WatchdogInterval:        mustDuration("PADHERD_WATCHDOG_INTERVAL", 2*time.Second),
		WatchdogSettle:          mustDuration("PADHERD_WATCHDOG_SETTLE", 2*time.Second),
		VirtualSettle:           mustDuration("PADHERD_VIRTUAL_SETTLE", time.Second),
		WatchdogMaxAttempts:     getenvInt("PADHERD_WATCHDOG_MAX_ATTEMPTS", 4),
		ScenarioDebounce:        mustDuration("PADHERD_SCENARIO_DEBOUNCE", time.Second),
		DriverReconcileInterval: mustDuration("PADHERD_DRIVER_RECONCILE_INTERVAL", time.Hour),
		CyclerGCInterval:        mustDuration("PADHERD_CYCLER_GC_INTERVAL", time.Minute),
		CyclerGCThreshold:       mustDuration("PADHERD_CYCLER_GC_THRESHOLD", 2*time.Minute),

		// Host
		HostManufacturer:    getenv("PADHERD_HOST_MANUFACTURER", ""),
		RumbleManufacturers: splitAndTrim(getenv("PADHERD_RUMBLE_MANUFACTURERS", "AOKZOE,ONE-NETBOOK")),
		DesignatedPlatform:  getenv("PADHERD_DESIGNATED_PLATFORM", "steam"),

		// Redis settings
		RedisAddr:           getenv("PADHERD_REDIS_ADDR", ""),
		RedisUser:           getenv("PADHERD_REDIS_USERNAME", ""),
		RedisPassword:       getenv("PADHERD_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("PADHERD_REDIS_DB", 0),
		RedisDT:             mustDuration("PADHERD_REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("PADHERD_REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("PADHERD_REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("PADHERD_REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("PADHERD_REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("PADHERD_REDIS_POOL_SIZE", 4),
		RedisConnectTimeout: mustDuration("PADHERD_REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("PADHERD_REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("PADHERD_REDIS_WARN_THRESHOLD", 3),
		RedisStreamMaxLen:   int64(getenvInt("PADHERD_REDIS_STREAM_MAXLEN", 10000)),

		// Access restrictions
		AllowedCIDRS: parseAllowedIPs(getenv("PADHERD_ALLOWED_CIDRS", "127.0.0.1/32,::1/128")),
		TrustProxy:   mustBool("PADHERD_TRUST_PROXY", false),
	}

	if cfg.WatchdogMaxAttempts < 1 {
		cfg.WatchdogMaxAttempts = 4
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		if cfg.RedisPassword != "" {
			cfgCopy.RedisPassword = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// RedisEnabled reports whether telemetry should be wired.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
