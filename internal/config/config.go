package config

import (
	"github.com/creasty/defaults"
)

// Configuration holds the full runtime configuration of both bespoke
// binaries. The lab fields drive test orchestration, the agent fields
// drive the on-SUT helper process.
type Configuration struct {
	Lab   LabConfig
	Agent AgentConfig
	Auth  AuthConfig
	DB    DBConfig
}

// LabConfig tunes how the orchestrator drives the lab. Content paths and
// the server hostname live in the global YAML file, not here.
type LabConfig struct {
	// BootWaitSeconds is how long to wait after powering on a machine
	// before probing its agent.
	BootWaitSeconds int `default:"30"`
	// NumWorkers bounds concurrent tool staging transfers.
	NumWorkers int `default:"3"`
}

// AgentConfig configures the bespoke-agent process on a SUT.
type AgentConfig struct {
	HTTPPort   int    `default:"8357"`
	ServerMode string `default:"dev"`
	// WorkFolder restricts filesystem operations to paths beneath it.
	// Empty means unrestricted.
	WorkFolder string
}

type AuthConfig struct {
	Enabled           bool `default:"false"`
	JWTSecretFilePath string
}

type DBConfig struct {
	// Path is the DuckDB database file. ":memory:" keeps results
	// in-process only.
	Path string `default:"bespoke.db"`
}

func NewConfigurationWithOptionsAndDefaults() *Configuration {
	cfg := &Configuration{}
	if err := defaults.Set(cfg); err != nil {
		panic(err)
	}
	return cfg
}
