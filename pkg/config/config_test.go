package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCatalog = `
providers:
  - id: openai-main
    name: OpenAI
    kind: openai
    model: gpt-4o
    api_key_env: OPENAI_API_KEY
agents:
  - id: researcher
    name: Researcher
    instructions: Research things.
    provider_id: openai-main
    tool_ids: [weather]
    tool_server_ids: [github]
tools:
  - id: weather
    name: get_weather
    handler:
      type: http
      url: https://api.example.com/weather
      method: GET
tool_servers:
  - id: github
    name: GitHub
    transport: stdio
    command: github-mcp
teams:
  - id: crew
    name: Crew
    mode: route
    agent_ids: [researcher]
workflows:
  - id: daily
    name: Daily report
    on_error: continue
    steps:
      - order: 1
        agent_id: researcher
        task: Summarize the news.
`

func TestParseValidCatalog(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(validCatalog))
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, ProviderOpenAI, cfg.Providers[0].Kind)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Providers[0].APIKeyEnv)

	require.Len(t, cfg.Agents, 1)
	assert.Equal(t, []string{"weather"}, cfg.Agents[0].ToolIDs)

	require.Len(t, cfg.Tools, 1)
	assert.Equal(t, HandlerHTTP, cfg.Tools[0].Handler.Type)

	require.Len(t, cfg.Teams, 1)
	assert.Equal(t, TeamModeRoute, cfg.Teams[0].Mode)

	require.Len(t, cfg.Workflows, 1)
	assert.Equal(t, ErrorPolicyContinue, cfg.Workflows[0].OnError)
}

func TestParseRejectsBadYAML(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("providers: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestValidateDuplicateProviderID(t *testing.T) {
	t.Parallel()

	cfg := &Config{Providers: []Provider{
		{ID: "p1", Name: "one"},
		{ID: "p1", Name: "two"},
	}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate provider id 'p1'")
}

func TestValidateDuplicateToolName(t *testing.T) {
	t.Parallel()

	cfg := &Config{Tools: []ToolDefinition{
		{ID: "t1", Name: "search"},
		{ID: "t2", Name: "search"},
	}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tool name 'search'")
}

func TestValidateDanglingReferences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "agent provider",
			cfg: Config{Agents: []Agent{
				{ID: "a1", Name: "solo", ProviderID: "ghost"},
			}},
			want: "references non-existent provider 'ghost'",
		},
		{
			name: "agent tool",
			cfg: Config{Agents: []Agent{
				{ID: "a1", Name: "solo", ToolIDs: []string{"ghost"}},
			}},
			want: "references non-existent tool 'ghost'",
		},
		{
			name: "agent tool server",
			cfg: Config{Agents: []Agent{
				{ID: "a1", Name: "solo", ToolServerIDs: []string{"ghost"}},
			}},
			want: "references non-existent tool server 'ghost'",
		},
		{
			name: "team agent",
			cfg: Config{Teams: []Team{
				{ID: "tm1", Name: "crew", Mode: TeamModeRoute, AgentIDs: []string{"ghost"}},
			}},
			want: "references non-existent agent 'ghost'",
		},
		{
			name: "workflow agent",
			cfg: Config{Workflows: []Workflow{
				{ID: "w1", Name: "daily", Steps: []WorkflowStep{{Order: 1, AgentID: "ghost"}}},
			}},
			want: "references non-existent agent 'ghost'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateTeamMode(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Agents: []Agent{{ID: "a1", Name: "solo"}},
		Teams:  []Team{{ID: "tm1", Name: "crew", Mode: "swarm", AgentIDs: []string{"a1"}}},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mode 'swarm'")
}

func TestValidateEmptyCollections(t *testing.T) {
	t.Parallel()

	err := (&Config{Teams: []Team{{ID: "tm1", Name: "crew", Mode: TeamModeRoute}}}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no members")

	err = (&Config{Workflows: []Workflow{{ID: "w1", Name: "daily"}}}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no steps")
}

func TestStoreLookupsAndVersion(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(validCatalog))
	require.NoError(t, err)

	store := NewStore(cfg)
	v1 := store.Version()

	agent, err := store.Agent("researcher")
	require.NoError(t, err)
	assert.Equal(t, "openai-main", agent.ProviderID)

	tool, err := store.Tool("weather")
	require.NoError(t, err)
	assert.Equal(t, "get_weather", tool.Name)

	byName, ok := store.ToolByName("get_weather")
	require.True(t, ok)
	assert.Equal(t, "weather", byName.ID)

	_, err = store.Agent("missing")
	require.Error(t, err)

	store.Replace(cfg)
	assert.Greater(t, store.Version(), v1)

	v2 := store.Version()
	store.Invalidate()
	assert.Greater(t, store.Version(), v2)
}
