package core

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoadConfigFile layers a YAML config file over base. Every key defaults to
// the value already in base, so the file only needs to name what it changes.
// A missing file is not an error; base is returned validated and unchanged.
//
// Example file:
//
//	api_url: http://gpu-box:8000
//	webui:
//	  port: 8080
//	simulation:
//	  seed: 42
func LoadConfigFile(path string, base *Config) (*Config, error) {
	if path == "" {
		return base, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("api_url", base.APIURL)
	v.SetDefault("enhance_timeout_seconds", int(base.EnhanceTimeout/time.Second))
	v.SetDefault("health_interval_seconds", int(base.HealthInterval/time.Second))
	v.SetDefault("webui.host", base.WebUIHost)
	v.SetDefault("webui.port", base.WebUIPort)
	v.SetDefault("webui.password", base.WebUIPassword)
	v.SetDefault("database.path", base.DatabasePath)
	v.SetDefault("history.enabled", base.HistoryEnabled)
	v.SetDefault("history.retain_days", base.HistoryRetainDays)
	v.SetDefault("max_upload_mb", int(base.MaxUploadBytes>>20))
	v.SetDefault("max_response_mb", int(base.MaxResponseBytes>>20))
	v.SetDefault("artifact_budget_mb", int(base.ArtifactBudgetBytes>>20))
	v.SetDefault("simulation.seed", base.SimSeed)
	v.SetDefault("simulation.pipelines_file", base.PipelinesFile)
	v.SetDefault("logging.file", base.LogFile)
	v.SetDefault("logging.level", base.LogLevel)
	v.SetDefault("dev_mode", base.DevMode)
	v.SetDefault("allow_self_signed_certs", base.AllowSelfSignedCerts)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, ErrConfigFileInvalid(path, err.Error())
		}
	} else {
		configLoaded = true
	}

	cfg := &Config{
		APIURL:               strings.TrimRight(v.GetString("api_url"), "/"),
		EnhanceTimeout:       time.Duration(v.GetInt("enhance_timeout_seconds")) * time.Second,
		HealthInterval:       time.Duration(v.GetInt("health_interval_seconds")) * time.Second,
		WebUIHost:            v.GetString("webui.host"),
		WebUIPort:            v.GetInt("webui.port"),
		WebUIPassword:        v.GetString("webui.password"),
		DatabasePath:         v.GetString("database.path"),
		HistoryEnabled:       v.GetBool("history.enabled"),
		HistoryRetainDays:    v.GetInt("history.retain_days"),
		MaxUploadBytes:       v.GetInt64("max_upload_mb") << 20,
		MaxResponseBytes:     v.GetInt64("max_response_mb") << 20,
		ArtifactBudgetBytes:  v.GetInt64("artifact_budget_mb") << 20,
		SimSeed:              v.GetUint64("simulation.seed"),
		PipelinesFile:        v.GetString("simulation.pipelines_file"),
		LogFile:              v.GetString("logging.file"),
		LogLevel:             v.GetString("logging.level"),
		DevMode:              v.GetBool("dev_mode"),
		AllowSelfSignedCerts: v.GetBool("allow_self_signed_certs"),
	}
	if configLoaded {
		cfg.ConfigFile = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
