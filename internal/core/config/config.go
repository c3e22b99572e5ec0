package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type Config struct {
	Addr            string
	LogLevel        string
	LogConsole      bool
	FacilityAPIURL  string
	FacilityAPIKey  string
	Source          string
	PostgresURL     string
	RedisAddr       string
	H3Res           int
	Debounce        time.Duration
	FetchTimeout    time.Duration
	CacheOpTimeout  time.Duration
	CacheTTLDefault time.Duration
	CacheTTLOvr     map[string]time.Duration
	TypesFile       string
	OrgsFile        string
	DefaultZoom     int
	MetricsEnabled  bool
	MetricsAddr     string
	MetricsPath     string
	Invalidation    InvalidationCfg
}

func FromEnv() Config {
	res := getint("H3_RES", 8)
	if res < 0 {
		res = 0
	}
	if res > 15 {
		res = 15
	}

	return Config{
		Addr:            getenv("ADDR", ":8090"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogConsole:      getbool("LOG_CONSOLE", false),
		FacilityAPIURL:  getenv("FACILITY_API_URL", "http://localhost:8080"),
		FacilityAPIKey:  getenv("FACILITY_API_KEY", ""),
		Source:          getenv("SOURCE", "upstream"),
		PostgresURL:     getenv("POSTGRES_URL", ""),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		H3Res:           res,
		Debounce:        getduration("FETCH_DEBOUNCE", 250*time.Millisecond),
		FetchTimeout:    getduration("FETCH_TIMEOUT", 10*time.Second),
		CacheOpTimeout:  getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		CacheTTLDefault: getduration("CACHE_TTL_DEFAULT", 60*time.Second),
		CacheTTLOvr:     parseDurationMap(getenv("CACHE_TTL_OVERRIDES", "")),
		TypesFile:       getenv("TYPES_FILE", ""),
		OrgsFile:        getenv("ORGS_FILE", ""),
		DefaultZoom:     getint("DEFAULT_ZOOM", 12),
		MetricsEnabled:  getbool("METRICS_ENABLED", true),
		MetricsAddr:     getenv("METRICS_ADDR", ":9100"),
		MetricsPath:     getenv("METRICS_PATH", "/metrics"),
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "facility-events"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "agromap-invalidator"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "GREENHOUSE=5m,FIELD=30s" into map
func parseDurationMap(s string) map[string]time.Duration {
	out := map[string]time.Duration{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	parts := strings.SplitSeq(s, ",")
	for p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			out[k] = d
		}
	}
	return out
}
