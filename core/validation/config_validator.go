// Package validation runs the startup checks behind `srdash validate` and
// the pre-flight of `srdash serve`.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"

	"srdash/core"
	"srdash/simulation"
)

// Result is the outcome of one check. Warning marks a problem the service
// can run with.
type Result struct {
	Valid   bool
	Warning bool
	Message string
	Error   error
}

// ConfigValidator checks a loaded configuration without touching the
// network.
type ConfigValidator struct {
	cfg     *core.Config
	envPath string
}

// NewConfigValidator checks cfg. envPath is the .env file the CLI looked
// for.
func NewConfigValidator(cfg *core.Config, envPath string) *ConfigValidator {
	if envPath == "" {
		envPath = ".env"
	}
	return &ConfigValidator{cfg: cfg, envPath: envPath}
}

// CheckConfigSource reports where settings came from. Running purely from
// the environment is allowed and only warns.
func (v *ConfigValidator) CheckConfigSource() Result {
	if v.cfg.ConfigFile != "" {
		return Result{Valid: true, Message: "Using " + v.cfg.ConfigFile}
	}
	if err := CheckFileExists(v.envPath); err == nil {
		return Result{Valid: true, Message: "Environment file found"}
	}
	return Result{
		Valid:   true,
		Warning: true,
		Message: "No .env or config file; using environment and defaults",
		Error:   core.ErrEnvFileMissing(v.envPath),
	}
}

// CheckBackendURL validates API_URL.
func (v *ConfigValidator) CheckBackendURL() Result {
	if err := ValidateBaseURL(v.cfg.APIURL); err != nil {
		return Result{
			Message: "Invalid backend URL: " + v.cfg.APIURL,
			Error:   core.ErrInvalidAPIURL(v.cfg.APIURL, err.Error()),
		}
	}
	return Result{Valid: true, Message: v.cfg.APIURL}
}

// CheckDashboardAuth warns when the dashboard is open to anyone who can
// reach it.
func (v *ConfigValidator) CheckDashboardAuth() Result {
	if v.cfg.AuthEnabled() {
		return Result{Valid: true, Message: "Password protection enabled"}
	}
	msg := "No WEBUI_PASSWORD set; dashboard is open"
	if v.cfg.WebUIHost == "localhost" || v.cfg.WebUIHost == "127.0.0.1" {
		msg += " (localhost only)"
	}
	return Result{Valid: true, Warning: true, Message: msg}
}

// CheckPipelines loads the pipeline presets the simulations will run.
func (v *ConfigValidator) CheckPipelines() Result {
	if v.cfg.PipelinesFile == "" {
		return Result{Valid: true, Message: fmt.Sprintf("%d built-in pipelines", len(simulation.DefaultPipelines()))}
	}
	if err := CheckFileExists(v.cfg.PipelinesFile); err != nil {
		return Result{
			Message: "Pipelines file missing",
			Error:   core.ErrInvalidValue("PIPELINES_FILE", v.cfg.PipelinesFile, err.Error()),
		}
	}
	pipelines, err := simulation.LoadPipelines(v.cfg.PipelinesFile)
	if err != nil {
		return Result{
			Message: "Pipelines file invalid",
			Error:   core.ErrInvalidValue("PIPELINES_FILE", v.cfg.PipelinesFile, err.Error()),
		}
	}
	return Result{Valid: true, Message: fmt.Sprintf("%d pipelines from %s", len(pipelines), v.cfg.PipelinesFile)}
}

// CheckHistoryStorage verifies there is room for the history database.
func (v *ConfigValidator) CheckHistoryStorage() Result {
	if !v.cfg.HistoryEnabled {
		return Result{Valid: true, Message: "History disabled"}
	}
	space, err := CheckDiskSpace(filepath.Dir(v.cfg.DatabasePath), MinHistoryFreeBytes)
	if err != nil {
		var low *DiskSpaceError
		if errors.As(err, &low) {
			return Result{Valid: true, Warning: true, Message: "Low disk space", Error: err}
		}
		return Result{Message: "Cannot inspect database directory", Error: err}
	}
	return Result{Valid: true, Message: space.String()}
}
