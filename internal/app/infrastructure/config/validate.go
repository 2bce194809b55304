package config

import (
	"errors"
	"fmt"
)

func (m *Manager) validate(cfg *Config) error {
	// app
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true}
	if cfg.App.LogLevel != "" && !validLevels[cfg.App.LogLevel] {
		return fmt.Errorf("app.log_level must be one of trace, debug, info, warn, error, fatal; got %s", cfg.App.LogLevel)
	}
	if cfg.App.DataDir == "" {
		return errors.New("app.data_dir is required")
	}
	if cfg.App.Workers < 1 {
		return errors.New("app.workers must be >= 1")
	}
	if cfg.App.TokenURL == "" {
		cfg.App.TokenURL = DefaultTokenURL
	}

	// irc
	if cfg.IRC.Host == "" {
		return errors.New("irc.host is required")
	}
	if !ValidTransport(cfg.IRC.Transport) {
		return fmt.Errorf("irc.transport must be one of tcp, tls, ws; got %q", cfg.IRC.Transport)
	}
	if cfg.IRC.Port == 0 {
		cfg.IRC.Port = DefaultPort(cfg.IRC.Transport)
	}
	if cfg.IRC.Port < 1 || cfg.IRC.Port > 65535 {
		return errors.New("irc.port must be in [1,65535]")
	}
	if cfg.IRC.Capabilities == "" {
		cfg.IRC.Capabilities = DefaultCapabilities
	}

	// limiter
	if (cfg.IRC.Limiter.Requests != 0 && cfg.IRC.Limiter.Per == 0) || (cfg.IRC.Limiter.Requests == 0 && cfg.IRC.Limiter.Per != 0) {
		return errors.New("irc.limiter.requests and irc.limiter.per must both be set or both be zero")
	}
	if cfg.IRC.Limiter.Requests < 0 || cfg.IRC.Limiter.Per < 0 {
		return errors.New("irc.limiter values must be >= 0")
	}

	// backoff
	if cfg.Backoff.MaxDelaySecs < 0 {
		return errors.New("backoff.max_delay_secs must be >= 0")
	}
	if cfg.Backoff.MaxAttempts < 0 {
		return errors.New("backoff.max_attempts must be >= 0")
	}
	if cfg.Backoff.MaxDelaySecs == 0 && cfg.Backoff.MaxAttempts == 0 {
		return errors.New("backoff needs max_delay_secs or max_attempts")
	}
	if cfg.Backoff.Unit <= 0 {
		cfg.Backoff.Unit = defaultBackoffUnit
	}

	// proxy
	if cfg.Proxy != nil && cfg.Proxy.Address != "" && (cfg.Proxy.Port < 1 || cfg.Proxy.Port > 65535) {
		return errors.New("proxy.port must be in [1,65535]")
	}

	return nil
}
