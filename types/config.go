/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package types

// AppConfig represents the complete application configuration.
// Plan vocabulary and limits live under the "plan" key and are read by
// config.LoadPlanConfig.
type AppConfig struct {
	Verbose bool         `mapstructure:"verbose"`
	Config  string       `mapstructure:"config"`
	Log     LogConfig    `mapstructure:"log" validate:"required"`
	Data    DataConfig   `mapstructure:"data" validate:"required"`
	Policy  PolicyConfig `mapstructure:"policy"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn warning error"`
	JSON  bool   `mapstructure:"json"`
}

// DataConfig holds data storage configuration
type DataConfig struct {
	Dir     string `mapstructure:"dir" validate:"required"`
	Backend string `mapstructure:"backend" validate:"required,oneof=sqlite file"`
	Format  string `mapstructure:"format" validate:"required,oneof=json yaml toml"`
}

// PolicyConfig controls transition policy evaluation.
type PolicyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
	Package string `mapstructure:"package" validate:"omitempty,min=1"`
	Audit   bool   `mapstructure:"audit"`
}
