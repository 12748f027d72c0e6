// Package routes mounts the REST API of the reconciliation service.
package routes

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/exceptions"
	"github.com/Ramsey-B/fern/pkg/mapping"
	"github.com/Ramsey-B/fern/pkg/reconciliation"
	exceptionroutes "github.com/Ramsey-B/fern/pkg/routes/exceptions"
	"github.com/Ramsey-B/fern/pkg/routes/files"
	mappingroutes "github.com/Ramsey-B/fern/pkg/routes/mapping"
	"github.com/Ramsey-B/fern/pkg/routes/reconciliations"
	"github.com/Ramsey-B/fern/pkg/routes/rules"
	"github.com/Ramsey-B/fern/pkg/routes/workspace"
	"github.com/Ramsey-B/fern/pkg/storage"
	"github.com/Ramsey-B/fern/pkg/validation"
)

type Dependencies struct {
	Stores     storage.Stores
	Controller *reconciliation.Controller
	Mapper     *mapping.Mapper
	Validator  *validation.Engine
	Exceptions *exceptions.Manager
	Logger     ectologger.Logger
}

// Register mounts every handler on g
func Register(g *echo.Group, deps Dependencies) {
	workspace.NewHandler(deps.Stores.Workspaces, deps.Controller, deps.Logger).RegisterRoutes(g)
	files.NewHandler(deps.Controller, deps.Logger).RegisterRoutes(g)
	mappingroutes.NewHandler(deps.Stores, deps.Mapper, deps.Logger).RegisterRoutes(g)
	rules.NewHandler(deps.Stores, deps.Validator, deps.Logger).RegisterRoutes(g)
	reconciliations.NewHandler(deps.Controller, deps.Stores.Reconciliations, deps.Logger).RegisterRoutes(g)
	exceptionroutes.NewHandler(deps.Exceptions, deps.Stores.Reconciliations, deps.Logger).RegisterRoutes(g)
}
