package groups

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/zedaapi/instance-gateway/internal/apierr"
	"github.com/zedaapi/instance-gateway/internal/presence"
)

var aliasPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

var nonAliasChars = regexp.MustCompile(`[^a-z0-9-]+`)

// transformToAlias derives a URL-safe alias from a human name: lowercase,
// each run of characters other than a-z, 0-9 and "-" replaced by a single
// hyphen (existing hyphens are kept as they are), leading and trailing
// hyphens trimmed. Idempotent: applying it to its own output returns that
// output unchanged.
func transformToAlias(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	collapsed := nonAliasChars.ReplaceAllString(lowered, "-")
	return strings.Trim(collapsed, "-")
}

// Service implements the GroupRepository's non-trivial behavior: uniqueness
// enforcement, instance-membership validation against the InstanceRegistry,
// and the add/remove-instance invariants.
type Service struct {
	repo     *Repository
	presence presence.Registry
}

func NewService(repo *Repository, registry presence.Registry) *Service {
	return &Service{repo: repo, presence: registry}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Group, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apierr.Validation("name is required")
	}
	if len(name) > 100 {
		return nil, apierr.Validation("name must be at most 100 characters")
	}

	alias := strings.TrimSpace(in.Alias)
	if alias == "" {
		alias = transformToAlias(name)
	} else {
		alias = transformToAlias(alias)
	}
	if alias == "" || !aliasPattern.MatchString(alias) {
		return nil, apierr.Validation("alias must be a non-empty URL-safe handle matching [a-z0-9-]+")
	}
	if len(alias) > 100 {
		return nil, apierr.Validation("alias must be at most 100 characters")
	}

	if len(in.Description) > 500 {
		return nil, apierr.Validation("description must be at most 500 characters")
	}

	instances, err := s.dedupeAndValidate(in.Instances)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, apierr.Validation("instances must contain at least one member")
	}

	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}

	g := &Group{
		ID:          uuid.New(),
		Name:        name,
		Alias:       alias,
		Description: in.Description,
		Enabled:     enabled,
		Instances:   instances,
	}
	if err := s.repo.Insert(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Group, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apierr.Validation("name is required")
		}
		g.Name = name
	}
	if in.Alias != nil {
		alias := transformToAlias(*in.Alias)
		if alias == "" || !aliasPattern.MatchString(alias) {
			return nil, apierr.Validation("alias must be a non-empty URL-safe handle matching [a-z0-9-]+")
		}
		g.Alias = alias
	}
	if in.Description != nil {
		if len(*in.Description) > 500 {
			return nil, apierr.Validation("description must be at most 500 characters")
		}
		g.Description = *in.Description
	}
	if in.Enabled != nil {
		g.Enabled = *in.Enabled
	}
	if in.Instances != nil {
		instances, err := s.dedupeAndValidate(in.Instances)
		if err != nil {
			return nil, err
		}
		if len(instances) == 0 {
			return nil, apierr.Validation("instances must contain at least one member")
		}
		g.Instances = instances
	}

	if err := s.repo.Update(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Group, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByName(ctx context.Context, name string) (*Group, error) {
	return s.repo.GetByName(ctx, name)
}

func (s *Service) GetByAlias(ctx context.Context, alias string) (*Group, error) {
	return s.repo.GetByAlias(ctx, alias)
}

func (s *Service) List(ctx context.Context) ([]Group, error) {
	return s.repo.List(ctx)
}

// AddInstance appends instance to the group's membership, rejecting unknown
// instances and duplicates against current membership.
func (s *Service) AddInstance(ctx context.Context, id uuid.UUID, instance string) (*Group, error) {
	instance = strings.TrimSpace(instance)
	if instance == "" {
		return nil, apierr.Validation("instance name is required")
	}
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, existing := range g.Instances {
		if existing == instance {
			return nil, apierr.Validation("instance %q is already a member", instance)
		}
	}
	if s.presence != nil && s.presence.State(instance) == "" {
		return nil, apierr.Validation("instance %q is not known to the instance registry", instance)
	}
	g.Instances = append(g.Instances, instance)
	if err := s.repo.Update(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// RemoveInstance drops instance from the group's membership, rejecting a
// removal that would leave the group empty or that targets an absent
// member.
func (s *Service) RemoveInstance(ctx context.Context, id uuid.UUID, instance string) (*Group, error) {
	instance = strings.TrimSpace(instance)
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, existing := range g.Instances {
		if existing == instance {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, apierr.Validation("instance %q is not a member of this group", instance)
	}
	if len(g.Instances) == 1 {
		return nil, apierr.Validation("removing %q would leave the group empty", instance)
	}

	g.Instances = append(g.Instances[:idx], g.Instances[idx+1:]...)
	if err := s.repo.Update(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// ActiveInstances returns the subset of a group's members currently
// reporting an open connection state.
func (s *Service) ActiveInstances(ctx context.Context, id uuid.UUID) ([]string, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.filterActive(g.Instances), nil
}

// Stats reports membership health: total vs. active instance counts.
func (s *Service) Stats(ctx context.Context, id uuid.UUID) (*Stats, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	active := s.filterActive(g.Instances)
	activeSet := make(map[string]struct{}, len(active))
	for _, name := range active {
		activeSet[name] = struct{}{}
	}
	inactive := make([]string, 0, len(g.Instances))
	for _, name := range g.Instances {
		if _, ok := activeSet[name]; !ok {
			inactive = append(inactive, name)
		}
	}
	return &Stats{
		GroupID:           g.ID,
		Alias:             g.Alias,
		TotalInstances:    len(g.Instances),
		ActiveInstances:   len(active),
		InactiveInstances: inactive,
	}, nil
}

func (s *Service) filterActive(instances []string) []string {
	active := make([]string, 0, len(instances))
	for _, name := range instances {
		if s.presence == nil || s.presence.State(name) == presence.StateOpen {
			active = append(active, name)
		}
	}
	return active
}

func (s *Service) dedupeAndValidate(instances []string) ([]string, error) {
	seen := make(map[string]struct{}, len(instances))
	out := make([]string, 0, len(instances))
	for _, raw := range instances {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			return nil, apierr.Validation("duplicate instance %q in membership list", name)
		}
		seen[name] = struct{}{}
		if s.presence != nil && s.presence.State(name) == "" {
			return nil, apierr.Validation("instance %q is not known to the instance registry", name)
		}
		out = append(out, name)
	}
	return out, nil
}
