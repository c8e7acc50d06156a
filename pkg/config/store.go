package config

import (
	"fmt"
	"sync"
)

// Store is a read-mostly view over the catalog. Lookups are indexed; the
// whole snapshot swaps atomically on Replace. Version increments on every
// swap so caches keyed on catalog state can detect staleness.
type Store struct {
	mu      sync.RWMutex
	version uint64

	providers   map[string]Provider
	agents      map[string]Agent
	teams       map[string]Team
	tools       map[string]ToolDefinition
	toolsByName map[string]ToolDefinition
	servers     map[string]ToolServer
	workflows   map[string]Workflow
}

// NewStore builds a store from a validated catalog.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.Replace(cfg)
	return s
}

// Replace swaps in a new catalog snapshot and bumps the version.
func (s *Store) Replace(cfg *Config) {
	providers := make(map[string]Provider, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers[p.ID] = p
	}
	agents := make(map[string]Agent, len(cfg.Agents))
	for _, a := range cfg.Agents {
		agents[a.ID] = a
	}
	teams := make(map[string]Team, len(cfg.Teams))
	for _, t := range cfg.Teams {
		teams[t.ID] = t
	}
	tools := make(map[string]ToolDefinition, len(cfg.Tools))
	toolsByName := make(map[string]ToolDefinition, len(cfg.Tools))
	for _, t := range cfg.Tools {
		tools[t.ID] = t
		toolsByName[t.Name] = t
	}
	servers := make(map[string]ToolServer, len(cfg.ToolServers))
	for _, srv := range cfg.ToolServers {
		servers[srv.ID] = srv
	}
	workflows := make(map[string]Workflow, len(cfg.Workflows))
	for _, w := range cfg.Workflows {
		workflows[w.ID] = w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers = providers
	s.agents = agents
	s.teams = teams
	s.tools = tools
	s.toolsByName = toolsByName
	s.servers = servers
	s.workflows = workflows
	s.version++
}

// Version returns the current snapshot generation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Invalidate bumps the version without changing content. Callers use it to
// force dependent caches to rebuild after out-of-band changes.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
}

func (s *Store) Provider(id string) (Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return Provider{}, fmt.Errorf("unknown provider '%s'", id)
	}
	return p, nil
}

func (s *Store) Agent(id string) (Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return Agent{}, fmt.Errorf("unknown agent '%s'", id)
	}
	return a, nil
}

func (s *Store) Team(id string) (Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[id]
	if !ok {
		return Team{}, fmt.Errorf("unknown team '%s'", id)
	}
	return t, nil
}

func (s *Store) Tool(id string) (ToolDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tools[id]
	if !ok {
		return ToolDefinition{}, fmt.Errorf("unknown tool '%s'", id)
	}
	return t, nil
}

// ToolByName resolves a locally defined tool by its unique name.
func (s *Store) ToolByName(name string) (ToolDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.toolsByName[name]
	return t, ok
}

func (s *Store) ToolServer(id string) (ToolServer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	srv, ok := s.servers[id]
	if !ok {
		return ToolServer{}, fmt.Errorf("unknown tool server '%s'", id)
	}
	return srv, nil
}

func (s *Store) Workflow(id string) (Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return Workflow{}, fmt.Errorf("unknown workflow '%s'", id)
	}
	return w, nil
}
