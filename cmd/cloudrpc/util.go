package main

import (
	"encoding/json"
	"strings"

	"go.arsenm.dev/cloudrpc/internal/config"
	"go.arsenm.dev/cloudrpc/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// initConfig reads .env files and environment variables
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("cloudrpc")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// bindFlags binds a command's flags to viper
func bindFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// setupLogging sets the level of all loggers from the log-level setting
func setupLogging() error {
	lvl, err := logging.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	logging.SetLevelAll(lvl)
	return nil
}

// getClientConfig reads the client configuration from viper
func getClientConfig() *config.ClientConfig {
	return &config.ClientConfig{
		Endpoint:      viper.GetString("endpoint"),
		Origin:        viper.GetString("origin"),
		Codec:         viper.GetString("codec"),
		TimeoutSecond: viper.GetInt("timeout"),
		LogLevel:      viper.GetString("log-level"),
	}
}

// getServerConfig reads the server configuration from viper
func getServerConfig() *config.ServerConfig {
	return &config.ServerConfig{
		Addr:      viper.GetString("addr"),
		Codec:     viper.GetString("codec"),
		RateLimit: viper.GetFloat64("rate-limit"),
		Burst:     viper.GetInt("burst"),
		LogLevel:  viper.GetString("log-level"),
	}
}

// parseArg parses a command line argument as JSON, falling
// back to a plain string if it is not valid JSON
func parseArg(arg string) any {
	var val any
	if err := json.Unmarshal([]byte(arg), &val); err != nil {
		return arg
	}
	return val
}
