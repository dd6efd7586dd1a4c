package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/lumina/pkg/client"
)

var (
	// ErrNotFound is returned when an agent does not exist.
	ErrNotFound = errors.New("agent not found")

	// ErrNameRequired is returned when creating an agent without a name.
	ErrNameRequired = errors.New("agent name is required")
)

// Store is the agent storage the service works against. *client.Client
// satisfies it.
type Store interface {
	CreateAgent(ctx context.Context, agent client.NewAgent) (*client.AgentConfig, error)
	ListAgents(ctx context.Context) ([]client.AgentConfig, error)
	GetAgent(ctx context.Context, agentID string) (*client.AgentConfig, error)
	UpdateAgent(ctx context.Context, agentID string, update client.AgentUpdate) (*client.AgentConfig, error)
	DeleteAgent(ctx context.Context, agentID string) error
}

// Update holds the agent fields to change. Nil fields are left alone.
type Update struct {
	Name         *string
	Description  *string
	SystemPrompt *string
	Category     *Category
}

// Service manages agent presets.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates a Service backed by store.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// InitializeDefaults stores the built-in templates when the server has no
// agents yet. It returns the number of agents created.
func (s *Service) InitializeDefaults(ctx context.Context) (int, error) {
	existing, err := s.store.ListAgents(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing agents: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	for i, tpl := range Templates {
		if _, err := s.Create(ctx, tpl); err != nil {
			return i, fmt.Errorf("seeding %q: %w", tpl.Name, err)
		}
	}

	s.logger.Debug("seeded default agents", zap.Int("count", len(Templates)))
	return len(Templates), nil
}

// Create stores a new agent from a's name, description, prompt and category.
func (s *Service) Create(ctx context.Context, a Agent) (*Agent, error) {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	cfg, err := s.store.CreateAgent(ctx, client.NewAgent{
		Name:         name,
		Description:  a.Description,
		SystemPrompt: a.SystemPrompt,
		Category:     string(NormalizeCategory(string(a.Category))),
	})
	if err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}

	return fromConfig(cfg), nil
}

// Get returns the agent with the given ID, or nil if there is none.
func (s *Service) Get(ctx context.Context, id string) (*Agent, error) {
	cfg, err := s.store.GetAgent(ctx, id)
	if client.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting agent %s: %w", id, err)
	}
	return fromConfig(cfg), nil
}

// List returns every stored agent.
func (s *Service) List(ctx context.Context) ([]*Agent, error) {
	cfgs, err := s.store.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}

	agents := make([]*Agent, 0, len(cfgs))
	for i := range cfgs {
		agents = append(agents, fromConfig(&cfgs[i]))
	}
	return agents, nil
}

// ListByCategory returns the stored agents in category c.
func (s *Service) ListByCategory(ctx context.Context, c Category) ([]*Agent, error) {
	return s.filter(ctx, func(a *Agent) bool {
		return a.Category == c
	})
}

// Search returns agents whose name or description contains query,
// case-insensitively.
func (s *Service) Search(ctx context.Context, query string) ([]*Agent, error) {
	q := strings.ToLower(query)
	return s.filter(ctx, func(a *Agent) bool {
		return strings.Contains(strings.ToLower(a.Name), q) ||
			strings.Contains(strings.ToLower(a.Description), q)
	})
}

func (s *Service) filter(ctx context.Context, keep func(*Agent) bool) ([]*Agent, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var out []*Agent
	for _, a := range all {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

// Update changes the given fields of an agent.
func (s *Service) Update(ctx context.Context, id string, u Update) (*Agent, error) {
	update := client.AgentUpdate{
		Name:         u.Name,
		Description:  u.Description,
		SystemPrompt: u.SystemPrompt,
	}
	if u.Category != nil {
		c := string(NormalizeCategory(string(*u.Category)))
		update.Category = &c
	}

	cfg, err := s.store.UpdateAgent(ctx, id, update)
	if client.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating agent %s: %w", id, err)
	}
	return fromConfig(cfg), nil
}

// Delete removes an agent.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.DeleteAgent(ctx, id)
	if client.IsNotFound(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting agent %s: %w", id, err)
	}
	return nil
}

// Duplicate stores a copy of an agent. An empty newName yields
// "<name> (Copy)".
func (s *Service) Duplicate(ctx context.Context, id, newName string) (*Agent, error) {
	src, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, ErrNotFound
	}

	dup := *src
	dup.Name = newName
	if strings.TrimSpace(dup.Name) == "" {
		dup.Name = src.Name + " (Copy)"
	}

	return s.Create(ctx, dup)
}
