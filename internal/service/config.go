package service

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ForegroundConfig describes the helper process kept alive while the worker
// has pending work.
type ForegroundConfig struct {
	Command struct {
		Path    string            `mapstructure:"path"`
		Args    []string          `mapstructure:"args"`
		Env     map[string]string `mapstructure:"env"`
		Timeout time.Duration     `mapstructure:"timeout"`
	} `mapstructure:"command"`
}

// ParseForeground reads the section under key from the configuration loaded
// into viper.
func ParseForeground(key string) (ForegroundConfig, error) {
	var cfg ForegroundConfig
	err := viper.UnmarshalKey(key, &cfg)
	return cfg, err
}

func (c ForegroundConfig) Enabled() bool {
	return c.Command.Path != ""
}

// Cmd returns the command. Values starting with $ are expanded from the
// environment.
func (c ForegroundConfig) Cmd() Command {
	env := make([]string, 0, len(c.Command.Env))
	for k, v := range c.Command.Env {
		if strings.HasPrefix(v, "$") {
			v = os.ExpandEnv(v)
		}
		env = append(env, strings.ToUpper(k)+"="+v)
	}
	return Command{
		Path:    c.Command.Path,
		Args:    c.Command.Args,
		Env:     env,
		Timeout: c.Command.Timeout,
	}
}
