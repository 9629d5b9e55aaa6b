// Package management implements the LLM-facing admin surface: a static
// catalog of mcpbox_-prefixed tools dispatched from MCP tools/call. Every
// handler returns an MCP content envelope; failures become isError text
// blocks, never JSON-RPC errors.
package management

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"mcpbox/internal/domain"
	"mcpbox/internal/domain/approval"
	"mcpbox/internal/domain/execlog"
	"mcpbox/internal/domain/externalsource"
	"mcpbox/internal/domain/runtime"
	"mcpbox/internal/domain/secret"
	"mcpbox/internal/domain/server"
	"mcpbox/internal/domain/settings"
	"mcpbox/internal/domain/tool"
	"mcpbox/internal/infrastructure/logger"
	"mcpbox/internal/infrastructure/sandbox"
	"mcpbox/internal/utils/platformerrors"
)

// CodeRunner is the slice of the sandbox client used by mcpbox_test_code.
type CodeRunner interface {
	ExecuteCode(ctx context.Context, req sandbox.ExecuteCodeRequest) (*sandbox.ExecuteCodeResult, error)
}

// ContentBlock is one MCP content item. Only text blocks are produced here.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is an MCP tools/call result envelope.
type Result struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// Descriptor is one catalog entry in the shape tools/list expects.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type handlerFunc func(ctx context.Context, caller domain.Principal, args json.RawMessage) (any, error)

// Dispatcher routes mcpbox_ tool calls to their handlers.
type Dispatcher struct {
	servers     *server.Service
	tools       *tool.Service
	registrar   *runtime.Registrar
	approvals   *approval.Service
	secrets     *secret.Service
	sources     *externalsource.Service
	execlogs    *execlog.Service
	settings    *settings.Service
	runner      CodeRunner
	validate    *validator.Validate
	handlers    map[string]handlerFunc
	localOnly   map[string]bool
	descriptors []Descriptor
	logger      zerolog.Logger
}

// NewDispatcher creates a dispatcher and materializes the tool catalog.
func NewDispatcher(
	servers *server.Service,
	tools *tool.Service,
	registrar *runtime.Registrar,
	approvals *approval.Service,
	secrets *secret.Service,
	sources *externalsource.Service,
	execlogs *execlog.Service,
	settingsService *settings.Service,
	runner CodeRunner,
) *Dispatcher {
	d := &Dispatcher{
		servers:   servers,
		tools:     tools,
		registrar: registrar,
		approvals: approvals,
		secrets:   secrets,
		sources:   sources,
		execlogs:  execlogs,
		settings:  settingsService,
		runner:    runner,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		handlers:  make(map[string]handlerFunc),
		localOnly: make(map[string]bool),
		logger:    logger.Component("management"),
	}
	for _, e := range d.entries() {
		d.handlers[e.name] = e.handler
		if e.localOnly {
			d.localOnly[e.name] = true
		}
		d.descriptors = append(d.descriptors, Descriptor{
			Name:        e.name,
			Description: e.description,
			InputSchema: reflectSchema(e.args),
		})
	}
	return d
}

// Catalog returns the static management tool descriptors merged into
// tools/list responses.
func (d *Dispatcher) Catalog() []Descriptor {
	return d.descriptors
}

// Handles reports whether a tool name belongs to this dispatcher.
func (d *Dispatcher) Handles(name string) bool {
	_, ok := d.handlers[name]
	return ok
}

// Dispatch runs one management tool call. Errors of any kind are folded
// into the result envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, caller domain.Principal, name string, args json.RawMessage) *Result {
	h, ok := d.handlers[name]
	if !ok {
		return errorResult("Unknown tool: " + name)
	}
	if d.localOnly[name] && !caller.Local() {
		return errorResult(name + " is only available on the local deployment")
	}

	out, err := h(ctx, caller, args)
	if err != nil {
		d.logger.Warn().Err(err).Str("tool", name).Msg("management tool failed")
		return errorResult(userMessage(err))
	}
	return jsonResult(out)
}

// decode unmarshals and validates tool arguments into a typed struct.
func decode[T any](d *Dispatcher, args json.RawMessage) (*T, error) {
	var v T
	if len(args) > 0 {
		if err := json.Unmarshal(args, &v); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if err := d.validate.Struct(&v); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return &v, nil
}

func jsonResult(v any) *Result {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("failed to encode result: " + err.Error())
	}
	return &Result{Content: []ContentBlock{{Type: "text", Text: string(data)}}}
}

func errorResult(message string) *Result {
	return &Result{
		Content: []ContentBlock{{Type: "text", Text: message}},
		IsError: true,
	}
}

// userMessage strips internal decoration from an error before it reaches
// the caller.
func userMessage(err error) string {
	var pe *platformerrors.PlatformError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}

// callerName labels audit fields with the acting identity.
func callerName(caller domain.Principal) string {
	if caller.Email != "" {
		return caller.Email
	}
	return "local"
}
