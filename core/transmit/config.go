package transmit

import "time"

// Config holds Transmit settings loaded from the environment.
type Config struct {
	// RelayChannel is the transport channel shared by all instances.
	RelayChannel string `env:"TRANSMIT_RELAY_CHANNEL" envDefault:"transmit::broadcast"`
	// RoutePrefix is the path prefix of the HTTP boundary routes.
	RoutePrefix string `env:"TRANSMIT_ROUTE_PREFIX" envDefault:"/__transmit"`
	// PingInterval is the stream keep-alive interval. Zero disables keep-alive.
	PingInterval time.Duration `env:"TRANSMIT_PING_INTERVAL" envDefault:"30s"`
	// SendTimeout bounds a single transport Send call.
	SendTimeout time.Duration `env:"TRANSMIT_SEND_TIMEOUT" envDefault:"5s"`
	// LocalFallback delivers locally when the transport rejects a broadcast.
	LocalFallback bool `env:"TRANSMIT_LOCAL_FALLBACK" envDefault:"false"`
	// QuietUnsubscribe emits unsubscribe events only when a subscription was removed.
	QuietUnsubscribe bool `env:"TRANSMIT_QUIET_UNSUBSCRIBE" envDefault:"false"`
}

// DefaultConfig returns a Config with the same defaults as the env tags.
func DefaultConfig() Config {
	return Config{
		RelayChannel: DefaultRelayChannel,
		RoutePrefix:  DefaultRoutePrefix,
		PingInterval: 30 * time.Second,
		SendTimeout:  5 * time.Second,
	}
}
