package client

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ufscache/internal/errs"
)

// Default configuration values, used by DefaultConfig and when a property map
// omits the option. New does not fill in zero-valued Config fields: a zero
// port, page size, hashNodePerWorker or concurrency fails validation.
const (
	DefaultEtcdPort                   = 2379
	DefaultWorkerHTTPPort             = 28080
	DefaultClusterName                = "DefaultAlluxioCluster"
	DefaultPageSize                   = "1MB"
	DefaultHashNodePerWorker          = 5
	DefaultConcurrency                = 64
	DefaultEtcdRefreshWorkersInterval = 120 // seconds
)

// Config is the explicit, fully-enumerated set of options the client
// recognizes. Unlike a property map, every field here is typed and every
// recognized option has a named home — there is no reflection-driven
// binding step.
type Config struct {
	EtcdHosts     []string
	EtcdPort      int
	EtcdUsername  string
	EtcdPassword  string

	WorkerHosts    []string
	WorkerHTTPPort int

	ClusterName string

	// PageSize accepts a human-readable size ("1MB", "4KB", "128", …).
	PageSize string

	HashNodePerWorker int
	Concurrency       int

	// EtcdRefreshWorkersInterval is the background refresh period in
	// seconds; <= 0 disables the background loop.
	EtcdRefreshWorkersInterval int

	// PageCacheSize is the maximum number of full pages kept in the
	// client-side read-through page cache; <= 0 disables it (the default).
	PageCacheSize int
	// PageCacheTTLSeconds bounds how long a cached page stays valid; <= 0
	// means cached pages never expire by time (LRU-only eviction).
	PageCacheTTLSeconds int
}

// DefaultConfig returns a Config with every recognized option set to its
// documented default. WorkerHosts/EtcdHosts are left empty — the caller
// must supply exactly one membership source.
func DefaultConfig() Config {
	return Config{
		EtcdPort:                   DefaultEtcdPort,
		WorkerHTTPPort:             DefaultWorkerHTTPPort,
		ClusterName:                DefaultClusterName,
		PageSize:                   DefaultPageSize,
		HashNodePerWorker:          DefaultHashNodePerWorker,
		Concurrency:                DefaultConcurrency,
		EtcdRefreshWorkersInterval: DefaultEtcdRefreshWorkersInterval,
	}
}

// recognizedOptions is the exhaustive set of property-map keys
// FromProperties accepts; any other key is a construction-time error.
var recognizedOptions = map[string]bool{
	"etcdHosts":                   true,
	"etcdPort":                    true,
	"etcdUsername":                true,
	"etcdPassword":                true,
	"workerHosts":                 true,
	"workerHttpPort":              true,
	"clusterName":                 true,
	"pageSize":                    true,
	"hashNodePerWorker":           true,
	"concurrency":                 true,
	"etcdRefreshWorkersInterval":  true,
	"pageCacheSize":               true,
	"pageCacheTTLSeconds":         true,
}

// FromProperties builds a Config from a string-keyed property map, such as
// one parsed from a properties file or command-line --set flags. Every
// recognized option in the table above may be supplied; any other key fails
// construction with ErrConfig. Omitted options take their documented
// default.
func FromProperties(props map[string]string) (Config, error) {
	for k := range props {
		if !recognizedOptions[k] {
			return Config{}, fmt.Errorf("%w: unrecognized option %q", errs.ErrConfig, k)
		}
	}

	cfg := DefaultConfig()

	if v, ok := props["etcdHosts"]; ok {
		cfg.EtcdHosts = splitCSV(v)
	}
	if v, ok := props["etcdPort"]; ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: etcdPort: %v", errs.ErrConfig, err)
		}
		cfg.EtcdPort = p
	}
	if v, ok := props["etcdUsername"]; ok {
		cfg.EtcdUsername = v
	}
	if v, ok := props["etcdPassword"]; ok {
		cfg.EtcdPassword = v
	}
	if v, ok := props["workerHosts"]; ok {
		cfg.WorkerHosts = splitCSV(v)
	}
	if v, ok := props["workerHttpPort"]; ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: workerHttpPort: %v", errs.ErrConfig, err)
		}
		cfg.WorkerHTTPPort = p
	}
	if v, ok := props["clusterName"]; ok {
		cfg.ClusterName = v
	}
	if v, ok := props["pageSize"]; ok {
		cfg.PageSize = v
	}
	if v, ok := props["hashNodePerWorker"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: hashNodePerWorker: %v", errs.ErrConfig, err)
		}
		cfg.HashNodePerWorker = n
	}
	if v, ok := props["concurrency"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: concurrency: %v", errs.ErrConfig, err)
		}
		cfg.Concurrency = n
	}
	if v, ok := props["etcdRefreshWorkersInterval"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: etcdRefreshWorkersInterval: %v", errs.ErrConfig, err)
		}
		cfg.EtcdRefreshWorkersInterval = n
	}
	if v, ok := props["pageCacheSize"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: pageCacheSize: %v", errs.ErrConfig, err)
		}
		cfg.PageCacheSize = n
	}
	if v, ok := props["pageCacheTTLSeconds"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: pageCacheTTLSeconds: %v", errs.ErrConfig, err)
		}
		cfg.PageCacheTTLSeconds = n
	}

	return cfg, cfg.validate()
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var sizeSuffix = regexp.MustCompile(`(?i)^\s*(\d+)\s*(B|KB|MB|GB)?\s*$`)

// parsePageSize parses a human-readable size like "1MB" or "4096" into a
// byte count.
func parsePageSize(s string) (int64, error) {
	m := sizeSuffix.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: invalid page size %q", errs.ErrConfig, s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid page size %q: %v", errs.ErrConfig, s, err)
	}
	switch strings.ToUpper(m[2]) {
	case "", "B":
		return n, nil
	case "KB":
		return n * 1024, nil
	case "MB":
		return n * 1024 * 1024, nil
	case "GB":
		return n * 1024 * 1024 * 1024, nil
	default:
		return 0, fmt.Errorf("%w: invalid page size unit in %q", errs.ErrConfig, s)
	}
}

// refreshInterval converts the configured seconds value to a time.Duration,
// <= 0 meaning "disabled".
func (c Config) refreshInterval() time.Duration {
	if c.EtcdRefreshWorkersInterval <= 0 {
		return 0
	}
	return time.Duration(c.EtcdRefreshWorkersInterval) * time.Second
}

func (c Config) validate() error {
	haveEtcd := len(c.EtcdHosts) > 0
	haveStatic := len(c.WorkerHosts) > 0
	if haveEtcd == haveStatic {
		return fmt.Errorf("%w: exactly one of etcdHosts or workerHosts must be set", errs.ErrConfig)
	}
	if (c.EtcdUsername == "") != (c.EtcdPassword == "") {
		return fmt.Errorf("%w: etcdUsername and etcdPassword must be set together or not at all", errs.ErrConfig)
	}
	if c.EtcdPort < 1 || c.EtcdPort > 65535 {
		return fmt.Errorf("%w: etcdPort out of range: %d", errs.ErrConfig, c.EtcdPort)
	}
	if c.WorkerHTTPPort < 1 || c.WorkerHTTPPort > 65535 {
		return fmt.Errorf("%w: workerHttpPort out of range: %d", errs.ErrConfig, c.WorkerHTTPPort)
	}
	if c.HashNodePerWorker < 1 {
		return fmt.Errorf("%w: hashNodePerWorker must be >= 1", errs.ErrConfig)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be > 0", errs.ErrConfig)
	}
	if _, err := parsePageSize(c.PageSize); err != nil {
		return err
	}
	return nil
}
