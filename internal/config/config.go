package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "beatmap_loader.cfg.json"

// LoaderConfig holds the decoding policy applied to every bundle.
type LoaderConfig struct {
	LenientCodes   bool   `json:"lenientCodes" mapstructure:"lenientCodes"`
	Characteristic string `json:"characteristic" mapstructure:"characteristic"`
}

// LibraryConfig holds settings for scanning a directory of bundles.
type LibraryConfig struct {
	Dir     string `json:"dir" mapstructure:"dir"`
	Workers int    `json:"workers" mapstructure:"workers"`
}

// CatalogConfig holds the preview catalog database settings.
type CatalogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Driver  string `json:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	Path    string `json:"path" mapstructure:"path"`
	DSN     string `json:"dsn" mapstructure:"dsn"`
}

// ExportConfig holds timeline export settings
type ExportConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// GCSConfig selects a bundle stored in Google Cloud Storage.
type GCSConfig struct {
	Bucket          string `json:"bucket" mapstructure:"bucket"`
	Prefix          string `json:"prefix" mapstructure:"prefix"`
	CredentialsFile string `json:"credentialsFile" mapstructure:"credentialsFile"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled        bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName    string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout   time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	MetricInterval time.Duration `json:"metricInterval" mapstructure:"metricInterval"`
	Endpoint       string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `json:"insecure" mapstructure:"insecure"`
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("lenientCodes", false)
	viper.SetDefault("characteristic", "Standard")

	viper.SetDefault("library.dir", "./beatmaps")
	viper.SetDefault("library.workers", 4)

	viper.SetDefault("catalog.enabled", false)
	viper.SetDefault("catalog.driver", "sqlite")
	viper.SetDefault("catalog.path", "./catalog.db")
	viper.SetDefault("catalog.dsn", "")

	viper.SetDefault("export.outputDir", "./exports")
	viper.SetDefault("export.compressOutput", true)

	viper.SetDefault("gcs.bucket", "")
	viper.SetDefault("gcs.prefix", "")
	viper.SetDefault("gcs.credentialsFile", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "beatmap-loader")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "30s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetLoaderConfig returns the decoding policy.
func GetLoaderConfig() LoaderConfig {
	return LoaderConfig{
		LenientCodes:   viper.GetBool("lenientCodes"),
		Characteristic: viper.GetString("characteristic"),
	}
}

// GetLibraryConfig returns the library scan settings. Workers is at least 1.
func GetLibraryConfig() LibraryConfig {
	workers := viper.GetInt("library.workers")
	if workers < 1 {
		workers = 1
	}
	return LibraryConfig{
		Dir:     viper.GetString("library.dir"),
		Workers: workers,
	}
}

// GetCatalogConfig returns the catalog database settings.
func GetCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Enabled: viper.GetBool("catalog.enabled"),
		Driver:  viper.GetString("catalog.driver"),
		Path:    viper.GetString("catalog.path"),
		DSN:     viper.GetString("catalog.dsn"),
	}
}

// GetExportConfig returns the timeline export settings.
func GetExportConfig() ExportConfig {
	return ExportConfig{
		OutputDir:      viper.GetString("export.outputDir"),
		CompressOutput: viper.GetBool("export.compressOutput"),
	}
}

// GetGCSConfig returns the cloud storage settings.
func GetGCSConfig() GCSConfig {
	return GCSConfig{
		Bucket:          viper.GetString("gcs.bucket"),
		Prefix:          viper.GetString("gcs.prefix"),
		CredentialsFile: viper.GetString("gcs.credentialsFile"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}
