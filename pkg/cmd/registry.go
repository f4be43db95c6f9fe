// Package cmd provides common initialization for the command-line binaries.
package cmd

import (
	"log/slog"

	"github.com/weavebit/loom/pkg/actions/database"
	"github.com/weavebit/loom/pkg/actions/httprequest"
	"github.com/weavebit/loom/pkg/actions/logaction"
	"github.com/weavebit/loom/pkg/actions/notification"
	"github.com/weavebit/loom/pkg/actions/script"
	"github.com/weavebit/loom/pkg/actions/transform"
	"github.com/weavebit/loom/pkg/registry"
)

// NewRegistry builds an action registry with every native action handler
// registered.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.Register(httprequest.NewActionFactory())
	reg.Register(logaction.NewActionFactory())
	reg.Register(transform.NewActionFactory())
	reg.Register(script.NewActionFactory())
	reg.Register(database.NewActionFactory())
	reg.Register(notification.NewActionFactory())

	return reg
}
