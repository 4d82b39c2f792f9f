// config is the package containing configuration for the
// provisioner: its defaults, the optional config file, and the
// command-line flags that override both.
package config

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

const ConfigVersion = "v1"

type Config struct {
	// This is expected to be present in a config file (and will not
	// correspond to a flag). If it is not equal to ConfigVersion
	// above, the file is considered an invalid configuration.
	ConfigVersion string `yaml:"provisionerConfigVersion"`

	Listen         string `yaml:"listen"`
	DatabaseSource string `yaml:"databaseSource"`

	NATSURL           string `yaml:"natsUrl"`
	IntentSubject     string `yaml:"intentSubject"`
	ProjectionSubject string `yaml:"projectionSubject"`
	QueueGroup        string `yaml:"queueGroup"`

	InstancePrefix string `yaml:"instancePrefix"`
	// Shards this process schedules; empty means all of them.
	Shards []int `yaml:"shards"`

	SchedulerInitialDelay time.Duration `yaml:"schedulerInitialDelay"`
	ExecuteInterval       time.Duration `yaml:"executeInterval"`
	MonitorInterval       time.Duration `yaml:"monitorInterval"`
	ProjectionInterval    time.Duration `yaml:"projectionInterval"`
	PassivateAfter        time.Duration `yaml:"passivateAfter"`

	ProxyUsername string        `yaml:"proxyUsername"`
	ProxyPassword string        `yaml:"proxyPassword"`
	ProxyTimeout  time.Duration `yaml:"proxyTimeout"`
}

func Defaults() Config {
	return Config{
		Listen:                ":3030",
		DatabaseSource:        "memory://",
		IntentSubject:         "core-subscription",
		ProjectionSubject:     "provisioning-release",
		QueueGroup:            "provisioning",
		InstancePrefix:        "oscm-",
		SchedulerInitialDelay: 5 * time.Second,
		ExecuteInterval:       10 * time.Second,
		MonitorInterval:       60 * time.Second,
		ProjectionInterval:    time.Second,
		PassivateAfter:        2 * time.Minute,
		ProxyUsername:         "admin",
		ProxyPassword:         "admin123",
		ProxyTimeout:          30 * time.Second,
	}
}

func (c Config) IsValid() error {
	for name, d := range map[string]time.Duration{
		"executeInterval":    c.ExecuteInterval,
		"monitorInterval":    c.MonitorInterval,
		"projectionInterval": c.ProjectionInterval,
		"passivateAfter":     c.PassivateAfter,
		"proxyTimeout":       c.ProxyTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.SchedulerInitialDelay < 0 {
		return fmt.Errorf("schedulerInitialDelay must not be negative, got %s", c.SchedulerInitialDelay)
	}
	if c.IntentSubject == "" || c.ProjectionSubject == "" {
		return errors.New("intent and projection subjects must be given")
	}
	return nil
}

// Parse reads a config file. The file only needs the values that
// differ from the defaults.
func Parse(data []byte) (Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Config{}, errors.Wrap(err, "parsing config file")
	}
	if c.ConfigVersion != ConfigVersion {
		return Config{}, fmt.Errorf("config file is expected to include `provisionerConfigVersion: %s` to mark it as a provisioner config", ConfigVersion)
	}
	return c, nil
}

// Flags binds the configuration to command-line flags.
type Flags struct {
	fs      *pflag.FlagSet
	file    string
	flagged Config
	apply   map[string]func(*Config)
}

func RegisterFlags(fs *pflag.FlagSet) *Flags {
	d := Defaults()
	f := &Flags{fs: fs}
	c := &f.flagged

	fs.StringVar(&f.file, "config-file", "", "path to a YAML config file; flags given explicitly take precedence over it")

	fs.StringVar(&c.Listen, "listen", d.Listen, "address to serve the API and metrics on")
	fs.StringVar(&c.DatabaseSource, "database-source", d.DatabaseSource, `event log and index database, e.g., "postgres://user@host/db", or "memory://" to keep everything in memory`)
	fs.StringVar(&c.NATSURL, "nats-url", d.NATSURL, "NATS URL for intents and projections; if empty, intents are only accepted over HTTP and projections are not published")
	fs.StringVar(&c.IntentSubject, "intent-subject", d.IntentSubject, "subject intents are received on")
	fs.StringVar(&c.ProjectionSubject, "projection-subject", d.ProjectionSubject, "subject release projections are published on")
	fs.StringVar(&c.QueueGroup, "queue-group", d.QueueGroup, "queue group shared by provisioners receiving intents")
	fs.StringVar(&c.InstancePrefix, "instance-prefix", d.InstancePrefix, "prefix of release names at the deployment proxy")
	fs.IntSliceVar(&c.Shards, "shards", d.Shards, "shards of the release log this process schedules; all if not given")
	fs.DurationVar(&c.SchedulerInitialDelay, "scheduler-initial-delay", d.SchedulerInitialDelay, "delay before the first scheduler tick")
	fs.DurationVar(&c.ExecuteInterval, "execute-interval", d.ExecuteInterval, "interval between runs acting on releases in flight")
	fs.DurationVar(&c.MonitorInterval, "monitor-interval", d.MonitorInterval, "interval between checks of deployed releases")
	fs.DurationVar(&c.ProjectionInterval, "projection-interval", d.ProjectionInterval, "interval between polls of the release log")
	fs.DurationVar(&c.PassivateAfter, "passivate-after", d.PassivateAfter, "idle time after which a release is dropped from memory")
	fs.StringVar(&c.ProxyUsername, "proxy-username", d.ProxyUsername, "username for the deployment proxies")
	fs.StringVar(&c.ProxyPassword, "proxy-password", d.ProxyPassword, "password for the deployment proxies")
	fs.DurationVar(&c.ProxyTimeout, "proxy-timeout", d.ProxyTimeout, "timeout of requests to the deployment proxies")

	f.apply = map[string]func(*Config){
		"listen":                  func(dst *Config) { dst.Listen = c.Listen },
		"database-source":         func(dst *Config) { dst.DatabaseSource = c.DatabaseSource },
		"nats-url":                func(dst *Config) { dst.NATSURL = c.NATSURL },
		"intent-subject":          func(dst *Config) { dst.IntentSubject = c.IntentSubject },
		"projection-subject":      func(dst *Config) { dst.ProjectionSubject = c.ProjectionSubject },
		"queue-group":             func(dst *Config) { dst.QueueGroup = c.QueueGroup },
		"instance-prefix":         func(dst *Config) { dst.InstancePrefix = c.InstancePrefix },
		"shards":                  func(dst *Config) { dst.Shards = c.Shards },
		"scheduler-initial-delay": func(dst *Config) { dst.SchedulerInitialDelay = c.SchedulerInitialDelay },
		"execute-interval":        func(dst *Config) { dst.ExecuteInterval = c.ExecuteInterval },
		"monitor-interval":        func(dst *Config) { dst.MonitorInterval = c.MonitorInterval },
		"projection-interval":     func(dst *Config) { dst.ProjectionInterval = c.ProjectionInterval },
		"passivate-after":         func(dst *Config) { dst.PassivateAfter = c.PassivateAfter },
		"proxy-username":          func(dst *Config) { dst.ProxyUsername = c.ProxyUsername },
		"proxy-password":          func(dst *Config) { dst.ProxyPassword = c.ProxyPassword },
		"proxy-timeout":           func(dst *Config) { dst.ProxyTimeout = c.ProxyTimeout },
	}
	return f
}

// Config returns the configuration after the flags have been parsed:
// the defaults, overridden by the config file if one was given,
// overridden by the flags that were set explicitly.
func (f *Flags) Config() (Config, error) {
	cfg := Defaults()
	if f.file != "" {
		data, err := ioutil.ReadFile(f.file)
		if err != nil {
			return Config{}, errors.Wrap(err, "reading config file")
		}
		fromFile, err := Parse(data)
		if err != nil {
			return Config{}, err
		}
		if err := mergo.Merge(&cfg, fromFile, mergo.WithOverride); err != nil {
			return Config{}, errors.Wrap(err, "merging config file")
		}
	}
	f.fs.Visit(func(fl *pflag.Flag) {
		if apply, ok := f.apply[fl.Name]; ok {
			apply(&cfg)
		}
	})
	return cfg, cfg.IsValid()
}
