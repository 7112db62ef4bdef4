// Package balance implements the Balancer: round-robin plus
// contact-affinity instance selection across an instance group (or the
// ungrouped global pool), backed by the rotation store for cross-process
// state and an optional best-effort per-contact lock.
package balance

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/google/uuid"

	"github.com/zedaapi/instance-gateway/internal/apierr"
	"github.com/zedaapi/instance-gateway/internal/groups"
	"github.com/zedaapi/instance-gateway/internal/locks"
	"github.com/zedaapi/instance-gateway/internal/presence"
	"github.com/zedaapi/instance-gateway/internal/rotation"
)

var nonDigits = regexp.MustCompile(`\D+`)

// normalizeContact strips every non-digit character, per the rotation key
// derivation rule.
func normalizeContact(contact string) string {
	return nonDigits.ReplaceAllString(contact, "")
}

// Balancer selects an instance for a contact, maintaining the global and
// per-contact rotation state described by the rotation store.
type Balancer struct {
	rotation *rotation.Store
	presence presence.Registry
	groupSvc *groups.Service
	locker   locks.Manager
	lockTTL  int
	recordSelection func(groupAlias, instance, pass string)
	recordReset     func(groupAlias string)
}

// New builds a Balancer. locker may be nil, in which case no per-contact
// locking is attempted and the best-effort guarantees of §5 apply.
func New(store *rotation.Store, registry presence.Registry, groupSvc *groups.Service, locker locks.Manager, lockTTLSeconds int) *Balancer {
	if lockTTLSeconds <= 0 {
		lockTTLSeconds = 5
	}
	return &Balancer{
		rotation: store,
		presence: registry,
		groupSvc: groupSvc,
		locker:   locker,
		lockTTL:  lockTTLSeconds,
	}
}

// SetMetricsRecorders installs optional Prometheus recording callbacks.
func (b *Balancer) SetMetricsRecorders(selection func(groupAlias, instance, pass string), reset func(groupAlias string)) {
	b.recordSelection = selection
	b.recordReset = reset
}

// Result carries the pick plus the rotation state snapshot the API surfaces
// as balancingInfo.
type Result struct {
	Instance            string
	GroupID             uuid.UUID
	GroupAlias          string
	Contact             string
	LastUsedInstance    string
	UsedInstancesInCycle []string
	RotationCount       int
	GlobalLastUsed      string
	GlobalRotationCount int
}

// SelectForContactInGroup resolves alias, intersects its membership with
// currently-open instances, and runs the rotation algorithm scoped to the
// group and the contact.
func (b *Balancer) SelectForContactInGroup(ctx context.Context, alias, contact string) (*Result, error) {
	group, err := b.groupSvc.GetByAlias(ctx, alias)
	if err != nil {
		if apiErr, ok := apierr.As(err); ok && apiErr.Kind == apierr.KindNotFound {
			return nil, apierr.NotFound("group with alias %q not found", alias)
		}
		return nil, err
	}
	if !group.Enabled {
		return nil, apierr.Conflict("group %q is disabled", alias)
	}

	candidates := b.intersectOpen(group.Instances)
	if len(candidates) == 0 {
		return nil, apierr.Conflict("no active instance in group %q", alias)
	}

	namespace := group.ID.String()
	pick, err := b.selectWithKeys(ctx, namespace, contact, candidates, alias)
	if err != nil {
		return nil, err
	}
	pick.GroupID = group.ID
	pick.GroupAlias = group.Alias
	return pick, nil
}

// SelectForContact is the ungrouped path: candidates are supplied directly
// by the caller, and top-level (unnamespaced) rotation keys are used.
func (b *Balancer) SelectForContact(ctx context.Context, contact string, availableInstances []string) (*Result, error) {
	candidates := b.intersectOpen(availableInstances)
	if len(candidates) == 0 {
		return nil, apierr.Conflict("no active instance available")
	}
	return b.selectWithKeys(ctx, "", contact, candidates, "")
}

func (b *Balancer) intersectOpen(instances []string) []string {
	open := make([]string, 0, len(instances))
	for _, name := range instances {
		if b.presence == nil || b.presence.State(name) == presence.StateOpen {
			open = append(open, name)
		}
	}
	sort.Strings(open)
	return open
}

func (b *Balancer) selectWithKeys(ctx context.Context, namespace, contact string, candidates []string, metricsAlias string) (*Result, error) {
	normalized := normalizeContact(contact)

	var contactKey, globalKey string
	if namespace != "" {
		contactKey = fmt.Sprintf("group_rotation:%s:%s", namespace, normalized)
		globalKey = fmt.Sprintf("group_rotation:%s:global", namespace)
	} else {
		contactKey = fmt.Sprintf("instance_rotation:%s", normalized)
		globalKey = "global_rotation"
	}

	release, err := b.acquireLock(ctx, namespace, normalized)
	if err != nil {
		return nil, err
	}
	if release != nil {
		defer release()
	}

	global, _, err := b.rotation.Get(ctx, globalKey)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("load global rotation: %w", err))
	}
	contactDesc, _, err := b.rotation.Get(ctx, contactKey)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("load contact rotation: %w", err))
	}

	globalNextIndex := nextIndex(global.LastUsedInstance, candidates)

	pick := selectCandidate(candidates, globalNextIndex, contactDesc)
	pass := "last_resort"
	if first := firstPassPick(candidates, globalNextIndex, contactDesc); first == pick {
		pass = "first_pass"
	} else if second := secondPassPick(candidates, globalNextIndex, contactDesc); second == pick {
		pass = "second_pass"
	}

	preResetCount := contactDesc.RotationCount
	contactDesc = applyContactPick(contactDesc, pick, candidates)
	if contactDesc.RotationCount != preResetCount && b.recordReset != nil && metricsAlias != "" {
		b.recordReset(metricsAlias)
	}

	global.LastUsedInstance = pick
	global.RotationCount++

	if err := b.rotation.Set(ctx, contactKey, contactDesc); err != nil {
		return nil, apierr.Internal(fmt.Errorf("persist contact rotation: %w", err))
	}
	if err := b.rotation.Set(ctx, globalKey, global); err != nil {
		return nil, apierr.Internal(fmt.Errorf("persist global rotation: %w", err))
	}

	if b.recordSelection != nil {
		b.recordSelection(metricsAlias, pick, pass)
	}

	return &Result{
		Instance:             pick,
		Contact:              contact,
		LastUsedInstance:     contactDesc.LastUsedInstance,
		UsedInstancesInCycle: contactDesc.UsedInstances,
		RotationCount:        contactDesc.RotationCount,
		GlobalLastUsed:       global.LastUsedInstance,
		GlobalRotationCount:  global.RotationCount,
	}, nil
}

func nextIndex(lastUsed string, candidates []string) int {
	pos := -1
	for i, c := range candidates {
		if c == lastUsed {
			pos = i
			break
		}
	}
	return (pos + 1) % len(candidates)
}

func firstPassPick(candidates []string, start int, contact rotation.Descriptor) string {
	n := len(candidates)
	for i := 0; i < n; i++ {
		c := candidates[(start+i)%n]
		if c != contact.LastUsedInstance && !contact.HasUsed(c) {
			return c
		}
	}
	return ""
}

func secondPassPick(candidates []string, start int, contact rotation.Descriptor) string {
	n := len(candidates)
	for i := 0; i < n; i++ {
		c := candidates[(start+i)%n]
		if c != contact.LastUsedInstance {
			return c
		}
	}
	return ""
}

func selectCandidate(candidates []string, start int, contact rotation.Descriptor) string {
	if pick := firstPassPick(candidates, start, contact); pick != "" {
		return pick
	}
	if pick := secondPassPick(candidates, start, contact); pick != "" {
		return pick
	}
	return candidates[start]
}

// applyContactPick updates the contact descriptor with the new pick,
// performing a cycle reset when the used-set would otherwise reach the
// full candidate count.
func applyContactPick(contact rotation.Descriptor, pick string, candidates []string) rotation.Descriptor {
	used := append([]string{}, contact.UsedInstances...)
	if !contains(used, pick) {
		used = append(used, pick)
	}
	if len(used) >= len(candidates) {
		contact.RotationCount++
		used = []string{pick}
	}
	contact.UsedInstances = used
	contact.LastUsedInstance = pick
	return contact
}

func contains(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
