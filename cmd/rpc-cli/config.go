package main

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	rpc "github.com/rsocket/rpc-go"
	"github.com/spf13/viper"
)

const envPrefix = "rpc"

// newViper reads settings from .env files, RPC_* environment variables and an optional config file.
func newViper(configFile string) (*viper.Viper, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	dft := rpc.DefaultConfig()
	v.SetDefault("reconnect", dft.Reconnect)
	v.SetDefault("base-delay", dft.BaseDelay)
	v.SetDefault("max-delay", dft.MaxDelay)
	v.SetDefault("max-attempts", dft.MaxAttempts)
	v.SetDefault("jitter", dft.Jitter)
	v.SetDefault("handshake-timeout", dft.HandshakeTimeout)
	v.SetDefault("call-timeout", dft.CallTimeout)
	v.SetDefault("encoding", dft.Encoding.String())
	v.SetDefault("strategy", "fallback")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s failed", configFile)
		}
	}
	return v, nil
}

// loadConfig builds the client settings. Flags given on the command line win over every other source.
func loadConfig(args *argv, isSet func(flag string) bool) (cfg rpc.Config, err error) {
	v, err := newViper(args.ConfigFile)
	if err != nil {
		return
	}
	if isSet("--encoding") {
		v.Set("encoding", args.Encoding)
	}
	if isSet("--timeout") {
		v.Set("call-timeout", args.Timeout.Duration)
	}
	if isSet("--reconnect") {
		v.Set("reconnect", args.Reconnect)
	}
	if isSet("--retry") && args.Retry {
		v.Set("strategy", "retry")
	}
	return configFrom(v)
}

func configFrom(v *viper.Viper) (cfg rpc.Config, err error) {
	cfg = rpc.Config{
		Reconnect:        v.GetBool("reconnect"),
		BaseDelay:        v.GetDuration("base-delay"),
		MaxDelay:         v.GetDuration("max-delay"),
		MaxAttempts:      v.GetInt("max-attempts"),
		Jitter:           v.GetFloat64("jitter"),
		HandshakeTimeout: v.GetDuration("handshake-timeout"),
		CallTimeout:      v.GetDuration("call-timeout"),
	}
	if cfg.Encoding, err = rpc.ParseEncoding(v.GetString("encoding")); err != nil {
		return
	}
	switch strings.ToLower(v.GetString("strategy")) {
	case "fallback":
		cfg.Strategy = rpc.StrategyFallback
	case "retry":
		cfg.Strategy = rpc.StrategyRetry
	default:
		err = errors.Errorf("invalid strategy %s", v.GetString("strategy"))
		return
	}
	err = cfg.Validate()
	return
}
