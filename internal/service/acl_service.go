package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tribuna-digital/tribuna-storage/internal/domain"
	"github.com/tribuna-digital/tribuna-storage/internal/metrics"
	"github.com/tribuna-digital/tribuna-storage/internal/storage"
)

// aclPolicyMetadataKey is the custom-metadata key carrying the serialized
// policy (x-amz-meta-acl-policy on the S3 wire).
const aclPolicyMetadataKey = "acl-policy"

// ACLService attaches policies to stored objects and answers access
// questions about them. Decisions are a pure function of
// (policy, identity, permission); the service performs no caching, trading
// a metadata read per decision for always-current answers.
//
// System callers (admin CLI, migrations) do not go through this service at
// all: they operate on the storage layer directly. There is no reserved
// system identity.
type ACLService struct {
	backend  storage.Backend
	matchers map[domain.GroupType]domain.GroupMatcher
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewACLService creates an ACLService with the given group matchers.
// Matchers decide group membership per GroupType; unknown types never match.
func NewACLService(
	backend storage.Backend,
	matchers map[domain.GroupType]domain.GroupMatcher,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *ACLService {
	if matchers == nil {
		matchers = make(map[domain.GroupType]domain.GroupMatcher)
	}
	return &ACLService{
		backend:  backend,
		matchers: matchers,
		metrics:  m,
		logger:   logger.With().Str("service", "acl").Logger(),
	}
}

// SetPolicy serializes the policy into the object's custom metadata.
// Last-write-wins: a full policy always replaces any prior one; there is no
// merge semantics for rules. Other metadata keys on the object survive.
func (s *ACLService) SetPolicy(ctx context.Context, ref domain.ObjectRef, policy *domain.ACLPolicy) error {
	if policy.Owner == "" {
		return ErrMissingOwner
	}
	if !policy.Visibility.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidVisibility, policy.Visibility)
	}
	policy.Version = domain.ACLPolicyVersion

	serialized, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("failed to serialize ACL policy: %w", err)
	}

	stat, err := s.backend.Stat(ctx, ref)
	if err != nil {
		if storage.IsNotFound(err) {
			return fmt.Errorf("object %s: %w", ref, domain.ErrObjectNotFound)
		}
		return fmt.Errorf("reading metadata of %s: %w", ref, err)
	}

	md := make(map[string]string, len(stat.Metadata)+1)
	for k, v := range stat.Metadata {
		md[k] = v
	}
	md[aclPolicyMetadataKey] = string(serialized)

	if err := s.backend.SetMetadata(ctx, ref, md); err != nil {
		return fmt.Errorf("writing ACL policy to %s: %w", ref, err)
	}

	s.logger.Debug().
		Str("object", ref.String()).
		Str("owner", policy.Owner).
		Str("visibility", string(policy.Visibility)).
		Int("rules", len(policy.Rules)).
		Msg("set ACL policy")
	return nil
}

// GetPolicy deserializes the object's policy from its custom metadata.
// Returns domain.ErrPolicyNotSet when no policy was ever attached, or when
// the stored blob does not parse; callers must treat both as deny-all,
// never as public.
func (s *ACLService) GetPolicy(ctx context.Context, ref domain.ObjectRef) (*domain.ACLPolicy, error) {
	stat, err := s.backend.Stat(ctx, ref)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, fmt.Errorf("object %s: %w", ref, domain.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("reading metadata of %s: %w", ref, err)
	}

	raw, ok := stat.Metadata[aclPolicyMetadataKey]
	if !ok || raw == "" {
		return nil, fmt.Errorf("object %s: %w", ref, domain.ErrPolicyNotSet)
	}

	var policy domain.ACLPolicy
	if err := json.Unmarshal([]byte(raw), &policy); err != nil {
		s.logger.Warn().Err(err).Str("object", ref.String()).Msg("unparseable ACL policy metadata")
		return nil, fmt.Errorf("object %s has unparseable policy: %w", ref, domain.ErrPolicyNotSet)
	}
	return &policy, nil
}

// CanAccess answers whether the identity may exercise the requested
// permission given the policy. Pure function, no side effects: given any
// (policy, identity, permission) triple the outcome is deterministic.
//
// Decision order:
//  1. no policy: deny
//  2. public visibility grants READ to anyone, including anonymous
//  3. the owner holds every permission
//  4. rules evaluate in list order, first group match with a sufficient
//     permission wins; later rules are not consulted
//  5. otherwise deny.
func (s *ACLService) CanAccess(policy *domain.ACLPolicy, identity string, requested domain.Permission) bool {
	if policy == nil {
		return false
	}
	if policy.IsPublic() && requested == domain.PermissionRead {
		return true
	}
	if identity == "" {
		return false
	}
	if identity == policy.Owner {
		return true
	}
	for _, rule := range policy.Rules {
		matcher, ok := s.matchers[rule.Group.Type]
		if !ok {
			continue
		}
		if matcher.Matches(identity, rule.Group) {
			return rule.Permission.Satisfies(requested)
		}
	}
	return false
}

// CanAccessObject loads the object's policy and decides access. A missing
// policy denies everyone; the error distinguishes a missing object from a
// plain deny.
func (s *ACLService) CanAccessObject(ctx context.Context, ref domain.ObjectRef, identity string, requested domain.Permission) (bool, error) {
	policy, err := s.GetPolicy(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrPolicyNotSet) {
			s.recordDecision(false)
			return false, nil
		}
		return false, err
	}

	allowed := s.CanAccess(policy, identity, requested)
	s.recordDecision(allowed)
	return allowed, nil
}

func (s *ACLService) recordDecision(allowed bool) {
	if s.metrics == nil {
		return
	}
	result := "deny"
	if allowed {
		result = "allow"
	}
	s.metrics.AccessDecisions.WithLabelValues(result).Inc()
}
