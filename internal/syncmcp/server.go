// Package syncmcp exposes the Notion sync jobs as MCP tools so an agent can
// trigger and inspect them.
package syncmcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"omochi-bot/internal/app"
	"omochi-bot/internal/notionsync"
)

const (
	ToolHourly        = "run_hourly_sync"
	ToolFinalize      = "finalize_day"
	ToolMonthly       = "run_monthly_export"
	ToolMonthlyStatus = "monthly_export_status"
)

// Runner is the part of app.App the tools call.
type Runner interface {
	SyncHourly(ctx context.Context) (notionsync.Result, error)
	FinalizeDay(ctx context.Context, date string) (notionsync.FinalizeResult, error)
	ExportMonthly(ctx context.Context) (notionsync.MonthlyResult, error)
	MonthlyStatus(ctx context.Context) (app.MonthlyStatus, error)
}

var _ Runner = (*app.App)(nil)

type EmptyParams struct{}

type FinalizeParams struct {
	Date string `json:"date" mcp:"day to finalize, YYYY-MM-DD in the bot's time zone"`
}

type Server struct {
	runner Runner
	logger logrus.FieldLogger
}

func New(runner Runner, logger logrus.FieldLogger) *Server {
	return &Server{runner: runner, logger: logger}
}

// MCPServer builds an mcp.Server with all sync tools registered.
func (s *Server) MCPServer(version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "omochi-sync-mcp",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolHourly,
		Description: "Creates or refreshes today's Notion page from the message log",
	}, s.RunHourly)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolFinalize,
		Description: "Rewrites a finished day's Notion page with the full day's messages and a new title",
	}, s.FinalizeDay)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolMonthly,
		Description: "Exports the next pending user of the previous month to Notion",
	}, s.RunMonthly)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolMonthlyStatus,
		Description: "Shows which users of the previous month are exported and which are pending",
	}, s.MonthlyStatus)

	return server
}

func (s *Server) RunHourly(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[EmptyParams]) (*mcp.CallToolResultFor[any], error) {
	res, err := s.runner.SyncHourly(ctx)
	return s.result(ToolHourly, res, err)
}

func (s *Server) FinalizeDay(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[FinalizeParams]) (*mcp.CallToolResultFor[any], error) {
	if params.Arguments.Date == "" {
		return failure("❌ date is required (YYYY-MM-DD)"), nil
	}
	res, err := s.runner.FinalizeDay(ctx, params.Arguments.Date)
	return s.result(ToolFinalize, res, err)
}

func (s *Server) RunMonthly(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[EmptyParams]) (*mcp.CallToolResultFor[any], error) {
	res, err := s.runner.ExportMonthly(ctx)
	return s.result(ToolMonthly, res, err)
}

func (s *Server) MonthlyStatus(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[EmptyParams]) (*mcp.CallToolResultFor[any], error) {
	st, err := s.runner.MonthlyStatus(ctx)
	return s.result(ToolMonthlyStatus, st, err)
}

// result reports job failures as tool errors rather than protocol errors.
func (s *Server) result(tool string, v any, err error) (*mcp.CallToolResultFor[any], error) {
	if err != nil {
		s.logger.WithError(err).WithField("tool", tool).Error("sync tool failed")
		return failure(fmt.Sprintf("❌ %s failed: %v", tool, err)), nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", tool, err)
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}, nil
}

func failure(msg string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}
