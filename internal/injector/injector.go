//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/sheetsync/internal/config"
	"github.com/zeusync/sheetsync/internal/relay"
)

// InitializeServer wires a relay server and the cleanup of the services it
// connected to.
func InitializeServer(cfg config.Config) (*relay.Server, func(), error) {
	wire.Build(ProviderSet)
	return nil, nil, nil
}
