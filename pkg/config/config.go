// Package config holds the entity definitions the engine executes: model
// providers, agents, teams, tool definitions, external tool servers, and
// workflows. Definitions are read-only inputs to the engine; creating and
// editing them is the job of the management surface above it.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// ProviderKind identifies the wire protocol family of a model backend.
type ProviderKind string

const (
	ProviderOpenAI     ProviderKind = "openai"
	ProviderAnthropic  ProviderKind = "anthropic"
	ProviderGoogle     ProviderKind = "google"
	ProviderOllama     ProviderKind = "ollama"
	ProviderOpenRouter ProviderKind = "openrouter"
	ProviderCustom     ProviderKind = "custom"
)

// Provider configures one model backend. APIKeyEnv names the secret that
// holds the credential; raw keys are never stored in the catalog.
type Provider struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Kind        ProviderKind `json:"kind" yaml:"kind"`
	BaseURL     string       `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model       string       `json:"model" yaml:"model"`
	APIKeyEnv   string       `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	MaxTokens   int64        `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty" yaml:"temperature,omitempty"`

	// SimulateToolCalls enables the prompted tool-call fallback for
	// backends without native tool calling. Best effort.
	SimulateToolCalls bool `json:"simulate_tool_calls,omitempty" yaml:"simulate_tool_calls,omitempty"`
}

// Agent configures one agent. Tool and tool server references are ordered.
type Agent struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
	Instructions  string   `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	ProviderID    string   `json:"provider_id" yaml:"provider_id"`
	ToolIDs       []string `json:"tool_ids,omitempty" yaml:"tool_ids,omitempty"`
	ToolServerIDs []string `json:"tool_server_ids,omitempty" yaml:"tool_server_ids,omitempty"`

	// MaxRounds caps model round trips per turn. 0 means the default.
	MaxRounds int `json:"max_rounds,omitempty" yaml:"max_rounds,omitempty"`
}

// TeamMode selects the collaboration policy for a team.
type TeamMode string

const (
	TeamModeCoordinate  TeamMode = "coordinate"
	TeamModeRoute       TeamMode = "route"
	TeamModeCollaborate TeamMode = "collaborate"
)

// Team groups agents under one collaboration mode. Member order matters:
// it breaks routing ties and fixes the collaborate sequence.
type Team struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Mode     TeamMode `json:"mode" yaml:"mode"`
	AgentIDs []string `json:"agent_ids" yaml:"agent_ids"`
}

// HandlerType identifies how a locally defined tool executes.
type HandlerType string

const (
	HandlerBuiltin HandlerType = "builtin"
	HandlerHTTP    HandlerType = "http"
	HandlerScript  HandlerType = "script"
)

// ToolHandler describes the execution target of a ToolDefinition.
type ToolHandler struct {
	Type HandlerType `json:"type" yaml:"type"`

	// Builtin names the in-process capability (type=builtin).
	Builtin string `json:"builtin,omitempty" yaml:"builtin,omitempty"`

	// URL, Method and Headers configure the outbound request (type=http).
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Method  string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Source is the user supplied script body (type=script). It runs in
	// an isolated interpreter, never with host privileges.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// ToolDefinition is a locally defined tool. Names are unique among local
// tools; tools discovered from external servers are namespaced separately.
type ToolDefinition struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Handler     ToolHandler    `json:"handler" yaml:"handler"`
}

// TransportKind identifies how an external tool server is reached.
type TransportKind string

const (
	TransportStdio      TransportKind = "stdio"
	TransportSSE        TransportKind = "sse"
	TransportStreamable TransportKind = "streamable"
)

// ToolServer configures one external tool server connection: a spawned
// child process (stdio) or a persistent remote stream (sse, streamable).
type ToolServer struct {
	ID        string        `json:"id" yaml:"id"`
	Name      string        `json:"name" yaml:"name"`
	Transport TransportKind `json:"transport" yaml:"transport"`

	Command string   `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`
	Env     []string `json:"env,omitempty" yaml:"env,omitempty"`

	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// ErrorPolicy selects how a workflow reacts to a failed step.
type ErrorPolicy string

const (
	ErrorPolicyFail     ErrorPolicy = "fail"
	ErrorPolicyContinue ErrorPolicy = "continue"
)

// WorkflowStep is one fixed step of a strictly sequential workflow.
type WorkflowStep struct {
	Order   int    `json:"order" yaml:"order"`
	AgentID string `json:"agent_id" yaml:"agent_id"`
	Task    string `json:"task" yaml:"task"`
}

// Workflow is an ordered sequence of agent steps. No branching, no loops.
type Workflow struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []WorkflowStep `json:"steps" yaml:"steps"`
	OnError     ErrorPolicy    `json:"on_error,omitempty" yaml:"on_error,omitempty"`
}

// Config is the full entity catalog as loaded from a file.
type Config struct {
	Providers   []Provider       `json:"providers,omitempty" yaml:"providers,omitempty"`
	Agents      []Agent          `json:"agents,omitempty" yaml:"agents,omitempty"`
	Teams       []Team           `json:"teams,omitempty" yaml:"teams,omitempty"`
	Tools       []ToolDefinition `json:"tools,omitempty" yaml:"tools,omitempty"`
	ToolServers []ToolServer     `json:"tool_servers,omitempty" yaml:"tool_servers,omitempty"`
	Workflows   []Workflow       `json:"workflows,omitempty" yaml:"workflows,omitempty"`
}

// Load reads and validates a catalog file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes and validates a catalog from raw YAML.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks uniqueness and referential integrity across the catalog.
func (c *Config) Validate() error {
	providers := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider '%s' has no id", p.Name)
		}
		if providers[p.ID] {
			return fmt.Errorf("duplicate provider id '%s'", p.ID)
		}
		providers[p.ID] = true
	}

	toolNames := make(map[string]bool, len(c.Tools))
	toolIDs := make(map[string]bool, len(c.Tools))
	for _, t := range c.Tools {
		if toolNames[t.Name] {
			return fmt.Errorf("duplicate tool name '%s'", t.Name)
		}
		toolNames[t.Name] = true
		toolIDs[t.ID] = true
	}

	serverIDs := make(map[string]bool, len(c.ToolServers))
	for _, s := range c.ToolServers {
		if serverIDs[s.ID] {
			return fmt.Errorf("duplicate tool server id '%s'", s.ID)
		}
		serverIDs[s.ID] = true
	}

	agents := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.ProviderID != "" && !providers[a.ProviderID] {
			return fmt.Errorf("agent '%s' references non-existent provider '%s'", a.Name, a.ProviderID)
		}
		for _, id := range a.ToolIDs {
			if !toolIDs[id] {
				return fmt.Errorf("agent '%s' references non-existent tool '%s'", a.Name, id)
			}
		}
		for _, id := range a.ToolServerIDs {
			if !serverIDs[id] {
				return fmt.Errorf("agent '%s' references non-existent tool server '%s'", a.Name, id)
			}
		}
		agents[a.ID] = true
	}

	for _, tm := range c.Teams {
		if len(tm.AgentIDs) == 0 {
			return fmt.Errorf("team '%s' has no members", tm.Name)
		}
		for _, id := range tm.AgentIDs {
			if !agents[id] {
				return fmt.Errorf("team '%s' references non-existent agent '%s'", tm.Name, id)
			}
		}
		switch tm.Mode {
		case TeamModeCoordinate, TeamModeRoute, TeamModeCollaborate:
		default:
			return fmt.Errorf("team '%s' has invalid mode '%s'", tm.Name, tm.Mode)
		}
	}

	for _, wf := range c.Workflows {
		if len(wf.Steps) == 0 {
			return fmt.Errorf("workflow '%s' has no steps", wf.Name)
		}
		for _, step := range wf.Steps {
			if !agents[step.AgentID] {
				return fmt.Errorf("workflow '%s' step %d references non-existent agent '%s'", wf.Name, step.Order, step.AgentID)
			}
		}
	}

	return nil
}
