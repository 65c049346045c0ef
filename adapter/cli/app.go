package cli

import (
	"github.com/felixgeelhaar/studyflow/internal/rebalance/application/commands"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/application/queries"
	"github.com/google/uuid"
)

// App holds the CLI application dependencies.
type App struct {
	// Command Handlers
	GenerateProposalHandler *commands.GenerateProposalHandler
	ApplyProposalHandler    *commands.ApplyProposalHandler
	UndoProposalHandler     *commands.UndoProposalHandler
	CancelProposalHandler   *commands.CancelProposalHandler
	ReportEnergyHandler     *commands.ReportEnergyHandler

	// Query Handlers
	GetProposalHandler  *queries.GetProposalHandler
	EngineHealthHandler *queries.EngineHealthHandler

	// Current user (configured per environment)
	CurrentUserID uuid.UUID
}

// NewApp creates a new CLI application with the provided handlers.
func NewApp(
	generateProposalHandler *commands.GenerateProposalHandler,
	applyProposalHandler *commands.ApplyProposalHandler,
	undoProposalHandler *commands.UndoProposalHandler,
	cancelProposalHandler *commands.CancelProposalHandler,
	reportEnergyHandler *commands.ReportEnergyHandler,
	getProposalHandler *queries.GetProposalHandler,
	engineHealthHandler *queries.EngineHealthHandler,
) *App {
	return &App{
		GenerateProposalHandler: generateProposalHandler,
		ApplyProposalHandler:    applyProposalHandler,
		UndoProposalHandler:     undoProposalHandler,
		CancelProposalHandler:   cancelProposalHandler,
		ReportEnergyHandler:     reportEnergyHandler,
		GetProposalHandler:      getProposalHandler,
		EngineHealthHandler:     engineHealthHandler,
		CurrentUserID:           uuid.Nil,
	}
}

// SetCurrentUserID updates the current user ID.
func (a *App) SetCurrentUserID(id uuid.UUID) {
	a.CurrentUserID = id
}

// app is the global CLI application instance
var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}
