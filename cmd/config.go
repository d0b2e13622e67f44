/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/josephgoksu/plantrack/internal/config"
	"github.com/josephgoksu/plantrack/types"
)

const (
	configName = ".plantrack"
	envPrefix  = "PLANTRACK"
)

// GlobalAppConfig holds the global application configuration instance.
var GlobalAppConfig types.AppConfig

// validate is a single instance of Validate, it caches struct info
var validate = validator.New()

// validateAppConfig performs validation on the AppConfig struct.
func validateAppConfig(cfg *types.AppConfig) error {
	return validate.Struct(cfg)
}

// InitConfig reads in config file and ENV variables if set.
func InitConfig() {
	if err := loadConfig(); err != nil {
		HandleFatalError("Invalid configuration. Run with --verbose for details.", err)
	}
}

func loadConfig() error {
	// A missing .env file is fine.
	_ = godotenv.Load()

	// Env handling must be set up before the config file is located.
	viper.SetEnvPrefix(envPrefix) // e.g., PLANTRACK_VERBOSE
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if cfgFileFlag := viper.GetString("config"); cfgFileFlag != "" {
		viper.SetConfigFile(cfgFileFlag)
	} else {
		// ./.plantrack/.plantrack.yaml wins over $HOME/.plantrack.yaml and ./.plantrack.yaml
		if info, err := os.Stat(config.DefaultDataDir); err == nil && info.IsDir() {
			viper.AddConfigPath(config.DefaultDataDir)
		}
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(configName)
	}

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			if viper.GetBool("verbose") {
				fmt.Fprintln(os.Stderr, "No config file found. Using defaults and environment variables.")
			}
		case viper.GetString("config") != "" && os.IsNotExist(err):
			return fmt.Errorf("config file not found: %s", viper.GetString("config"))
		default:
			return fmt.Errorf("read config file %s: %w", viper.ConfigFileUsed(), err)
		}
	}

	// data.dir and policy.dir have no defaults here: config.GetDataDir and
	// config.GetPoliciesDir resolve them.
	viper.SetDefault("log.level", "warn")
	viper.SetDefault("log.json", false)
	viper.SetDefault("data.backend", config.DefaultStoreBackend)
	viper.SetDefault("data.format", config.DefaultFileFormat)
	viper.SetDefault("policy.enabled", true)
	viper.SetDefault("policy.audit", true)

	GlobalAppConfig = types.AppConfig{}
	if err := viper.Unmarshal(&GlobalAppConfig); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	GlobalAppConfig.Data.Dir = config.GetDataDir()
	GlobalAppConfig.Policy.Dir = config.GetPoliciesDir()

	if err := validateAppConfig(&GlobalAppConfig); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return config.LoadPlanConfig().Validate()
}

// GetConfig returns the loaded application configuration.
func GetConfig() *types.AppConfig {
	return &GlobalAppConfig
}
