// Package config loads service and engine settings from an optional YAML
// file overlaid by environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"carevrp/internal/milp"
	"carevrp/internal/milp/bnb"
	"carevrp/internal/milp/cbc"
	"carevrp/internal/opt"
	"carevrp/internal/vrp"
)

// EnvFile names the config file when no path is given.
const EnvFile = "CAREVRP_CONFIG"

type Engine struct {
	BigM               float64 `yaml:"bigM" json:"bigM"`
	Horizon            float64 `yaml:"horizon" json:"horizon"`
	DefaultShift       float64 `yaml:"defaultShift" json:"defaultShift"`
	DefaultMaxTasks    int     `yaml:"defaultMaxTasks" json:"defaultMaxTasks"`
	MaxTasks           int     `yaml:"maxTasks" json:"maxTasks"`
	MaxAgents          int     `yaml:"maxAgents" json:"maxAgents"`
	EnforceTimeWindows bool    `yaml:"enforceTimeWindows" json:"enforceTimeWindows"`
	MinArcStep         float64 `yaml:"minArcStep" json:"minArcStep"`
	ExactTasks         int     `yaml:"exactTasks" json:"exactTasks"`
}

type Solver struct {
	Backend   string        `yaml:"backend" json:"backend"`
	TimeLimit time.Duration `yaml:"timeLimit" json:"timeLimit"`
	NodeLimit int           `yaml:"nodeLimit" json:"nodeLimit"`
	WarmStart bool          `yaml:"warmStart" json:"warmStart"`
	CBCPath   string        `yaml:"cbcPath" json:"cbcPath"`
}

type Server struct {
	Addr              string        `yaml:"addr" json:"addr"`
	RateRPS           float64       `yaml:"rateRPS" json:"rateRPS"`
	RateBurst         int           `yaml:"rateBurst" json:"rateBurst"`
	WorkerInterval    time.Duration `yaml:"workerInterval" json:"workerInterval"`
	WorkerConcurrency int           `yaml:"workerConcurrency" json:"workerConcurrency"`
}

type Config struct {
	Engine      Engine `yaml:"engine" json:"engine"`
	Solver      Solver `yaml:"solver" json:"solver"`
	Server      Server `yaml:"server" json:"server"`
	DatabaseURL string `yaml:"databaseURL" json:"databaseURL,omitempty"`
	RedisURL    string `yaml:"redisURL" json:"redisURL,omitempty"`
}

// Default mirrors the reference deployment.
func Default() Config {
	return Config{
		Engine: Engine{
			Horizon:      300,
			DefaultShift: 300,
			MaxTasks:     10,
			MaxAgents:    10,
			MinArcStep:   0.001,
			ExactTasks:   14,
		},
		Solver: Solver{
			Backend:   "bnb",
			TimeLimit: 30 * time.Second,
			NodeLimit: 200000,
			WarmStart: true,
			CBCPath:   "cbc",
		},
		Server: Server{
			Addr:              ":8080",
			RateRPS:           2,
			RateBurst:         4,
			WorkerInterval:    500 * time.Millisecond,
			WorkerConcurrency: 2,
		},
	}
}

// Load reads path (or $CAREVRP_CONFIG) over the defaults, then applies the
// environment. A missing file is an error only when a path was given.
func Load(path string) (Config, error) {
	c := Default()
	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvFile)
	}
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return Config{}, fmt.Errorf("config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := getenv("RATE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_RPS: %w", err)
		}
		c.Server.RateRPS = f
	}
	if v := getenv("RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_BURST: %w", err)
		}
		c.Server.RateBurst = n
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Engine.BigM < 0:
		return errors.New("config: engine.bigM must not be negative")
	case c.Engine.Horizon < 0:
		return errors.New("config: engine.horizon must not be negative")
	case c.Engine.DefaultShift <= 0:
		return errors.New("config: engine.defaultShift must be positive")
	case c.Engine.DefaultMaxTasks < 0:
		return errors.New("config: engine.defaultMaxTasks must not be negative")
	case c.Engine.MinArcStep <= 0:
		return errors.New("config: engine.minArcStep must be positive")
	case c.Engine.ExactTasks < 0 || c.Engine.ExactTasks > 16:
		return errors.New("config: engine.exactTasks must be between 0 and 16")
	case c.Solver.Backend != "bnb" && c.Solver.Backend != "cbc":
		return fmt.Errorf("config: unknown solver.backend %q", c.Solver.Backend)
	case c.Server.WorkerConcurrency < 1:
		return errors.New("config: server.workerConcurrency must be at least 1")
	}
	return nil
}

// Redacted drops connection strings for display.
func (c Config) Redacted() Config {
	if c.DatabaseURL != "" {
		c.DatabaseURL = "[redacted]"
	}
	if c.RedisURL != "" {
		c.RedisURL = "[redacted]"
	}
	return c
}

// EngineConfig converts the engine and solver sections for opt.Engine.
func (c Config) EngineConfig() opt.Config {
	return opt.Config{
		BigM:               c.Engine.BigM,
		Horizon:            c.Engine.Horizon,
		DefaultShift:       c.Engine.DefaultShift,
		DefaultMaxTasks:    c.Engine.DefaultMaxTasks,
		EnforceTimeWindows: c.Engine.EnforceTimeWindows,
		MinArcStep:         c.Engine.MinArcStep,
		ExactTasks:         c.Engine.ExactTasks,
		Limits:             vrp.Limits{MaxTasks: c.Engine.MaxTasks, MaxAgents: c.Engine.MaxAgents},
		TimeLimit:          c.Solver.TimeLimit,
		NodeLimit:          c.Solver.NodeLimit,
		WarmStart:          c.Solver.WarmStart,
	}
}

// NewSolver builds the configured backend.
func (c Config) NewSolver() (milp.Solver, error) {
	switch c.Solver.Backend {
	case "bnb":
		s := bnb.New()
		s.TimeLimit = c.Solver.TimeLimit
		s.NodeLimit = c.Solver.NodeLimit
		return s, nil
	case "cbc":
		s := cbc.New(c.Solver.CBCPath)
		if !s.Available() {
			return nil, fmt.Errorf("%w: %s", cbc.ErrNotInstalled, c.Solver.CBCPath)
		}
		s.TimeLimit = c.Solver.TimeLimit
		return s, nil
	default:
		return nil, fmt.Errorf("config: unknown solver.backend %q", c.Solver.Backend)
	}
}
