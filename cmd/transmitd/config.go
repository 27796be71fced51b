package main

import (
	"github.com/dmitrymomot/transmit/core/server"
	"github.com/dmitrymomot/transmit/core/transmit"
)

// Config is the process configuration.
type Config struct {
	AppName string `env:"APP_NAME" envDefault:"transmitd"`
	AppEnv  string `env:"APP_ENV" envDefault:"development"`

	// Transport selects the relay between instances: none, memory, redis or pg.
	Transport string `env:"TRANSMIT_TRANSPORT" envDefault:"none"`

	// UserHeader carries the authenticated user id set by an upstream proxy.
	UserHeader string `env:"TRANSMIT_USER_HEADER" envDefault:"X-User-ID"`

	Server   server.Config
	Transmit transmit.Config
}
