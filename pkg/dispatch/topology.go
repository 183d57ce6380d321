// Package dispatch maps chat channels to the websocket backend that serves them.
package dispatch

import (
	"errors"
	"fmt"
	"os"
)

// Mode is the deployment topology.
type Mode int

const (
	// SingleServer serves every channel from one shared websocket endpoint.
	SingleServer Mode = iota
	// MultiServer serves each channel from its assigned backend server.
	MultiServer
)

func (m Mode) String() string {
	switch m {
	case SingleServer:
		return "single_server"
	case MultiServer:
		return "multi_server"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// EnvPort is the environment variable holding the fallback websocket port.
const EnvPort = "PORT"

// ErrNoSharedEndpoint is returned for a single-server topology with neither a
// configured websocket port nor an environment port.
var ErrNoSharedEndpoint = errors.New("dispatch: single-server topology needs a websocket port")

// Topology is fixed at startup and read-only afterwards.
type Topology struct {
	Mode          Mode
	WebsocketPort string // configured port, may be empty
	EnvPort       string // environment-provided fallback
}

// NewTopology builds a Topology from configuration values.
func NewTopology(single bool, websocketPort, envPort string) Topology {
	mode := MultiServer
	if single {
		mode = SingleServer
	}
	return Topology{Mode: mode, WebsocketPort: websocketPort, EnvPort: envPort}
}

// TopologyFromEnv is NewTopology with the fallback port read from $PORT.
func TopologyFromEnv(single bool, websocketPort string) Topology {
	return NewTopology(single, websocketPort, os.Getenv(EnvPort))
}

// SharedEndpoint returns the endpoint every channel uses in single-server mode:
// the configured port if set, else the environment port.
func (t Topology) SharedEndpoint() string {
	if t.WebsocketPort != "" {
		return t.WebsocketPort
	}
	return t.EnvPort
}

// Validate reports whether the topology can resolve any endpoint at all.
func (t Topology) Validate() error {
	switch t.Mode {
	case SingleServer:
		if t.SharedEndpoint() == "" {
			return ErrNoSharedEndpoint
		}
		return nil
	case MultiServer:
		return nil
	default:
		return fmt.Errorf("dispatch: unknown topology %v", t.Mode)
	}
}
