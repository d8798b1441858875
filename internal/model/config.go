package model

import (
	"context"
	"fmt"
	"io"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	ServiceModeManual = "manual"
	ServiceModeTimer  = "timer"

	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "pgx"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version int     `json:"version" yaml:"version"` // fixed 0 for now
	Service Service `json:"service" yaml:"service"`
	Worker  Worker  `json:"worker" yaml:"worker"`
	Store   Store   `json:"store" yaml:"store"`
	Media   Media   `json:"media" yaml:"media"`
}

// Service configures how the supervisor produces work. The foreground
// process section is read separately, see service.ParseForeground.
type Service struct {
	Mode     string         `json:"mode" yaml:"mode"`
	Verbose  bool           `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	Schedule *TimerSchedule `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// TimerSchedule is used in timer mode, either Cron or Duration (ISO 8601) must be set.
type TimerSchedule struct {
	Cron     string `json:"cron,omitempty" yaml:"cron,omitempty"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`
}

type Worker struct {
	Attempts       int    `json:"attempts" yaml:"attempts"`
	Debounce       string `json:"debounce" yaml:"debounce"` // Go duration, e.g. 1s
	ReleaseSkipped bool   `json:"release_skipped" yaml:"release_skipped"`
}

func (w Worker) DebounceDuration() (time.Duration, error) {
	d, err := time.ParseDuration(w.Debounce)
	if err != nil {
		return 0, fmt.Errorf("parsing worker.debounce: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("worker.debounce must not be negative: %s", w.Debounce)
	}
	return d, nil
}

type Store struct {
	Driver string `json:"driver" yaml:"driver"` // "sqlite" | "pgx"
	DSN    string `json:"dsn" yaml:"dsn"`
}

// Media configures where images come from and where they are uploaded to.
// Source is a drop directory with a sub directory per product id.
type Media struct {
	Source string `json:"source" yaml:"source"`
	Upload Upload `json:"upload" yaml:"upload"`
}

// Upload is a tagged union, Dir for a local media store and URL for a remote one.
type Upload struct {
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

func DefaultConfig(_ context.Context) Config {
	return Config{
		Version: 0,
		Service: Service{
			Mode: ServiceModeManual,
		},
		Worker: Worker{
			Attempts:       3,
			Debounce:       "1s",
			ReleaseSkipped: true,
		},
		Store: Store{
			Driver: StoreDriverSQLite,
			DSN:    "productmedia.db",
		},
		Media: Media{
			Source: "inbox",
			Upload: Upload{Dir: "uploads"},
		},
	}
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}

	return out, nil
}
