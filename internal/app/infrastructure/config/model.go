package config

import "time"

type Config struct {
	App     App     `json:"app"`
	IRC     IRC     `json:"irc"`
	Backoff Backoff `json:"backoff"`
	Proxy   *Proxy  `json:"proxy"`
}

type App struct {
	LogLevel     string `json:"log_level"`
	LogFile      string `json:"log_file"`
	DataDir      string `json:"data_dir"`
	Workers      int    `json:"workers"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TokenURL     string `json:"token_url"`
	RedirectURL  string `json:"redirect_url"` // empty disables the enrolment pages
	Scopes       string `json:"scopes"`
	MetricsAddr  string `json:"metrics_addr"`
	AuthToken    string `json:"auth_token"`
}

type IRC struct {
	Host         string  `json:"host"`
	Port         int     `json:"port"`
	Transport    string  `json:"transport"` // tcp, tls or ws
	Capabilities string  `json:"capabilities"`
	Limiter      Limiter `json:"limiter"`
}

type Limiter struct {
	Requests int           `json:"requests"`
	Per      time.Duration `json:"per"`
}

type Backoff struct {
	MaxDelaySecs int           `json:"max_delay_secs"`
	MaxAttempts  int           `json:"max_attempts"` // 0 leaves only the delay ceiling
	Unit         time.Duration `json:"unit"`
}

type Proxy struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}
