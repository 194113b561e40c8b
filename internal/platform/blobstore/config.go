package blobstore

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

type Mode string

const (
	ModeLocal       Mode = "local"
	ModeGCS         Mode = "gcs"
	ModeGCSEmulator Mode = "gcs_emulator"
)

type Config struct {
	Mode         Mode
	LocalRoot    string
	Bucket       string
	EmulatorHost string
	// FallbackApplied is set when the mode was inferred rather than
	// configured explicitly, so bootstrap logs can say which happened.
	FallbackApplied bool
}

func IsSupportedMode(mode Mode) bool {
	switch mode {
	case ModeLocal, ModeGCS, ModeGCSEmulator:
		return true
	default:
		return false
	}
}

func (cfg Config) ModeSource() string {
	if cfg.FallbackApplied {
		return "inferred"
	}
	return "explicit_or_default"
}

type ConfigErrorCode string

const (
	ConfigErrorInvalidMode         ConfigErrorCode = "invalid_mode"
	ConfigErrorMissingBucket       ConfigErrorCode = "missing_bucket"
	ConfigErrorMissingLocalRoot    ConfigErrorCode = "missing_local_root"
	ConfigErrorMissingEmulatorHost ConfigErrorCode = "missing_emulator_host"
	ConfigErrorInvalidEmulatorHost ConfigErrorCode = "invalid_emulator_host"
)

type ConfigError struct {
	Code         ConfigErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid content store config"
	}
	switch e.Code {
	case ConfigErrorInvalidMode:
		return fmt.Sprintf(
			"invalid CONTENT_STORE_MODE=%q (allowed: %q, %q, %q)",
			e.Mode, ModeLocal, ModeGCS, ModeGCSEmulator,
		)
	case ConfigErrorMissingBucket:
		return fmt.Sprintf("CONTENT_STORE_MODE=%q requires CONTENT_GCS_BUCKET_NAME to be set", e.Mode)
	case ConfigErrorMissingLocalRoot:
		return fmt.Sprintf("CONTENT_STORE_MODE=%q requires CONTENT_LOCAL_ROOT to be set", e.Mode)
	case ConfigErrorMissingEmulatorHost:
		return fmt.Sprintf("CONTENT_STORE_MODE=%q requires STORAGE_EMULATOR_HOST to be set", e.Mode)
	case ConfigErrorInvalidEmulatorHost:
		return fmt.Sprintf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", e.EmulatorHost)
	default:
		return "invalid content store config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ResolveConfigFromEnv reads CONTENT_STORE_MODE and its per-mode settings.
// An unset mode falls back to gcs_emulator when an emulator host is present
// and to local otherwise, so a bare checkout works without cloud access.
func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		LocalRoot:    strings.TrimSpace(os.Getenv("CONTENT_LOCAL_ROOT")),
		Bucket:       strings.TrimSpace(os.Getenv("CONTENT_GCS_BUCKET_NAME")),
		EmulatorHost: strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")),
	}
	rawMode := strings.TrimSpace(os.Getenv("CONTENT_STORE_MODE"))
	mode := Mode(strings.ToLower(rawMode))

	switch mode {
	case "":
		if cfg.EmulatorHost != "" {
			cfg.Mode = ModeGCSEmulator
		} else {
			cfg.Mode = ModeLocal
			if cfg.LocalRoot == "" {
				cfg.LocalRoot = "data/content"
			}
		}
		cfg.FallbackApplied = true
	default:
		cfg.Mode = mode
	}

	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if !IsSupportedMode(cfg.Mode) {
		return &ConfigError{Code: ConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}
	switch cfg.Mode {
	case ModeLocal:
		if strings.TrimSpace(cfg.LocalRoot) == "" {
			return &ConfigError{Code: ConfigErrorMissingLocalRoot, Mode: string(cfg.Mode)}
		}
	case ModeGCS:
		if strings.TrimSpace(cfg.Bucket) == "" {
			return &ConfigError{Code: ConfigErrorMissingBucket, Mode: string(cfg.Mode)}
		}
	case ModeGCSEmulator:
		if strings.TrimSpace(cfg.Bucket) == "" {
			return &ConfigError{Code: ConfigErrorMissingBucket, Mode: string(cfg.Mode)}
		}
		host := strings.TrimSpace(cfg.EmulatorHost)
		if host == "" {
			return &ConfigError{Code: ConfigErrorMissingEmulatorHost, Mode: string(cfg.Mode)}
		}
		u, err := url.Parse(host)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &ConfigError{Code: ConfigErrorInvalidEmulatorHost, Mode: string(cfg.Mode), EmulatorHost: host, Cause: err}
		}
	}
	return nil
}
