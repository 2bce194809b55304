package config

import "time"

const (
	TransportTCP = "tcp"
	TransportTLS = "tls"
	TransportWS  = "ws"
)

const (
	DefaultHost         = "irc.chat.twitch.tv"
	DefaultCapabilities = "twitch.tv/tags twitch.tv/commands twitch.tv/membership"
	DefaultTokenURL     = "https://id.twitch.tv/oauth2/token"
	DefaultScopes       = "chat:read chat:edit moderator:manage:banned_users"

	defaultBackoffUnit = time.Second
)

func (m *Manager) GetDefault() *Config {
	return &Config{
		App: App{
			LogLevel:    "info",
			LogFile:     "logs/main.log",
			DataDir:     "data",
			Workers:     2,
			TokenURL:    DefaultTokenURL,
			Scopes:      DefaultScopes,
			MetricsAddr: "127.0.0.1:9100",
		},
		IRC: IRC{
			Host:         DefaultHost,
			Port:         6697,
			Transport:    TransportTLS,
			Capabilities: DefaultCapabilities,
			Limiter: Limiter{
				Requests: 20,
				Per:      30 * time.Second,
			},
		},
		Backoff: Backoff{
			MaxDelaySecs: 100,
			Unit:         defaultBackoffUnit,
		},
	}
}

// DefaultPort is the conventional port for a transport.
func DefaultPort(transport string) int {
	switch transport {
	case TransportTCP:
		return 6667
	case TransportWS:
		return 443
	default:
		return 6697
	}
}

func ValidTransport(transport string) bool {
	switch transport {
	case TransportTCP, TransportTLS, TransportWS:
		return true
	}
	return false
}
