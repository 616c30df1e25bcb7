package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/polarfoxDev/lambder/internal/helpers"
	"github.com/polarfoxDev/lambder/internal/labels"
)

const (
	DefaultPath              = "/etc/lambder/config.yml"
	DefaultDeregisterTimeout = 2 * time.Minute
	DefaultSnapshotTimeout   = 2 * time.Minute
)

// Config represents the complete configuration file
type Config struct {
	Regions           RegionList `yaml:"regions"`                     // Regions swept by the prune phase
	DefaultRegion     string     `yaml:"defaultRegion"`               // Region where new backups are created
	MaxToKeep         int        `yaml:"maxToKeep,omitempty"`         // Images kept per source and region, including the new one
	BackupTag         string     `yaml:"backupTag,omitempty"`         // Tag key marking instances to back up (value = backup source)
	ReplicateTag      string     `yaml:"replicateTag,omitempty"`      // Tag key propagated to images for downstream replication
	NoReboot          *bool      `yaml:"noReboot,omitempty"`          // Create images without rebooting the instance (default true)
	DeregisterTimeout Duration   `yaml:"deregisterTimeout,omitempty"` // Max wait for a deregistration to become visible
	SnapshotTimeout   Duration   `yaml:"snapshotTimeout,omitempty"`   // Max time spent retrying one snapshot deletion
	RunTimeout        Duration   `yaml:"runTimeout,omitempty"`        // Wall-clock bound for a whole run (0 = none)
	Schedule          string     `yaml:"schedule,omitempty"`          // Cron schedule for `lambder schedule`
	StateDB           string     `yaml:"stateDB,omitempty"`           // Optional SQLite file for run history and logs
	MetricsFile       string     `yaml:"metricsFile,omitempty"`       // Optional Prometheus textfile output
	AWS               AWSConfig  `yaml:"aws,omitempty"`
	API               APIConfig  `yaml:"api,omitempty"`
}

// APIConfig enables the read-only status API in schedule mode
type APIConfig struct {
	Listen      string   `yaml:"listen,omitempty"`      // e.g. ":8080"; empty disables the API
	Token       string   `yaml:"token,omitempty"`       // bearer token; empty means no auth
	CORSOrigins []string `yaml:"corsOrigins,omitempty"` // extra allowed origins
}

// AWSConfig holds optional overrides for the AWS SDK default credential chain
type AWSConfig struct {
	Profile         string `yaml:"profile,omitempty"`
	AccessKeyID     string `yaml:"accessKeyId,omitempty"`
	SecretAccessKey string `yaml:"secretAccessKey,omitempty"`
	SessionToken    string `yaml:"sessionToken,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"` // e.g. a LocalStack URL
}

// RegionList supports both a YAML sequence and a comma separated string:
//
//	regions: [eu-west-1, us-east-1]
//	regions: "eu-west-1,us-east-1"
type RegionList []string

func (r *RegionList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*r = helpers.SplitCSV(value.Value)
		return nil
	}
	var raw []string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*r = raw
	return nil
}

// Duration accepts Go duration strings ("90s", "2m")
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid duration: expected a string like \"2m\"")
	}
	s := strings.TrimSpace(expandEnv(value.Value))
	if s == "" || s == "0" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads and parses the config file, expands environment variables,
// applies defaults and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	for i := range cfg.Regions {
		cfg.Regions[i] = strings.TrimSpace(expandEnv(cfg.Regions[i]))
	}
	cfg.DefaultRegion = strings.TrimSpace(expandEnv(cfg.DefaultRegion))
	cfg.BackupTag = expandEnv(cfg.BackupTag)
	cfg.ReplicateTag = expandEnv(cfg.ReplicateTag)
	cfg.Schedule = expandEnv(cfg.Schedule)
	cfg.StateDB = expandEnv(cfg.StateDB)
	cfg.MetricsFile = expandEnv(cfg.MetricsFile)
	cfg.AWS.Profile = expandEnv(cfg.AWS.Profile)
	cfg.AWS.AccessKeyID = expandEnv(cfg.AWS.AccessKeyID)
	cfg.AWS.SecretAccessKey = expandEnv(cfg.AWS.SecretAccessKey)
	cfg.AWS.SessionToken = expandEnv(cfg.AWS.SessionToken)
	cfg.AWS.Endpoint = expandEnv(cfg.AWS.Endpoint)
	cfg.API.Listen = expandEnv(cfg.API.Listen)
	cfg.API.Token = expandEnv(cfg.API.Token)

	// Environment overrides for the region settings
	if v := os.Getenv("LAMBDER_REGIONS"); v != "" {
		cfg.Regions = helpers.SplitCSV(v)
	}
	if v := os.Getenv("LAMBDER_DEFAULT_REGION"); v != "" {
		cfg.DefaultRegion = strings.TrimSpace(v)
	}
	if v := os.Getenv("LAMBDER_NO_REBOOT"); v != "" {
		noReboot := helpers.ParseBool(v)
		cfg.NoReboot = &noReboot
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	regions := make([]string, 0, len(c.Regions))
	for _, r := range c.Regions {
		if r != "" {
			regions = append(regions, r)
		}
	}
	c.Regions = helpers.Deduplicate(regions)
	// new backups land in the default region, so it is always swept as well
	if len(c.Regions) > 0 && c.DefaultRegion != "" && !slices.Contains(c.Regions, c.DefaultRegion) {
		c.Regions = append(c.Regions, c.DefaultRegion)
	}

	if c.MaxToKeep == 0 {
		c.MaxToKeep = helpers.DefaultMaxToKeep
	}
	if c.BackupTag == "" {
		c.BackupTag = labels.LBackup
	}
	if c.ReplicateTag == "" {
		c.ReplicateTag = labels.LReplicate
	}
	if c.NoReboot == nil {
		v := true
		c.NoReboot = &v
	}
	if c.DeregisterTimeout == 0 {
		c.DeregisterTimeout = Duration(DefaultDeregisterTimeout)
	}
	if c.SnapshotTimeout == 0 {
		c.SnapshotTimeout = Duration(DefaultSnapshotTimeout)
	}
}

// Validate checks the settings a run cannot start without
func (c *Config) Validate() error {
	var errs []error
	if len(c.Regions) == 0 {
		errs = append(errs, errors.New("regions: at least one region is required"))
	}
	if c.DefaultRegion == "" {
		errs = append(errs, errors.New("defaultRegion: required"))
	}
	if c.MaxToKeep < 1 {
		errs = append(errs, fmt.Errorf("maxToKeep: must be >= 1, got %d", c.MaxToKeep))
	}
	if c.BackupTag == c.ReplicateTag {
		errs = append(errs, fmt.Errorf("backupTag and replicateTag must differ (both %q)", c.BackupTag))
	}
	if c.DeregisterTimeout < 0 || c.SnapshotTimeout < 0 || c.RunTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.Schedule != "" {
		if err := helpers.ValidateCron(c.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("schedule: %w", err))
		}
	}
	if (c.AWS.AccessKeyID == "") != (c.AWS.SecretAccessKey == "") {
		errs = append(errs, errors.New("aws: accessKeyId and secretAccessKey must be set together"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// expandEnv expands environment variable references in the format ${VAR} or $VAR
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		var varName string
		if match[1] == '{' {
			varName = match[2 : len(match)-1] // ${VAR}
		} else {
			varName = match[1:] // $VAR
		}
		return os.Getenv(varName)
	})
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)
