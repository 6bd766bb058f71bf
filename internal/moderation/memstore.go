package moderation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemStore implements Store in process with a single lock. Used by the
// smoke binary, local development without Postgres, and tests.
type MemStore struct {
	mu          sync.RWMutex
	assignments []Assignment
	actions     []ActionRecord
	appeals     map[string]*Appeal
	flags       map[string]FeatureFlag // communityID + "/" + feature
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		appeals: make(map[string]*Appeal),
		flags:   make(map[string]FeatureFlag),
	}
}

func (s *MemStore) Assignments() AssignmentStore { return (*memAssignments)(s) }
func (s *MemStore) Actions() ActionStore         { return (*memActions)(s) }
func (s *MemStore) Appeals() AppealStore         { return (*memAppeals)(s) }
func (s *MemStore) Flags() FlagStore             { return (*memFlags)(s) }

// --- assignments ---

type memAssignments MemStore

func (s *memAssignments) Upsert(ctx context.Context, a Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// deactivate any previously active assignment for the pair; the
	// single-active invariant is enforced here, not by callers
	for i := range s.assignments {
		prev := &s.assignments[i]
		if prev.UserID == a.UserID && prev.CommunityID == a.CommunityID && prev.Active {
			prev.Active = false
		}
	}
	s.assignments = append(s.assignments, a)
	return nil
}

func (s *memAssignments) Active(ctx context.Context, userID, communityID string, now time.Time) (*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.assignments) - 1; i >= 0; i-- {
		a := s.assignments[i]
		if a.UserID == userID && a.CommunityID == communityID && a.Valid(now) {
			out := a
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memAssignments) DeactivateByCredential(ctx context.Context, credentialRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.assignments {
		if s.assignments[i].CredentialRef == credentialRef {
			s.assignments[i].Active = false
		}
	}
	return nil
}

func (s *memAssignments) ActiveByCommunity(ctx context.Context, communityID string, minLevel, limit int, now time.Time) ([]Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Assignment
	for _, a := range s.assignments {
		if a.CommunityID != communityID || !a.Valid(now) {
			continue
		}
		role, ok := LookupRole(a.Role)
		if !ok || role.Level < minLevel {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// --- actions ---

type memActions MemStore

func (s *memActions) Append(ctx context.Context, rec ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.actions {
		if existing.ActionID == rec.ActionID {
			return errors.New("duplicate action id")
		}
	}
	s.actions = append(s.actions, rec)
	return nil
}

func (s *memActions) Get(ctx context.Context, actionID string) (*ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.actions {
		if rec.ActionID == actionID {
			out := rec
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memActions) List(ctx context.Context, communityID string, f ActionFilter) ([]ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []ActionRecord
	for _, rec := range s.actions {
		if rec.CommunityID != communityID {
			continue
		}
		if f.ActorID != "" && rec.ActorID != f.ActorID {
			continue
		}
		if f.TargetID != "" && rec.TargetID != f.TargetID {
			continue
		}
		if f.ActionType != "" && rec.ActionType != f.ActionType {
			continue
		}
		if !f.Since.IsZero() && rec.CreatedAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && rec.CreatedAt.After(f.Until) {
			continue
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

// --- appeals ---

type memAppeals MemStore

func (s *memAppeals) Create(ctx context.Context, ap Appeal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.appeals {
		if existing.ActionID == ap.ActionID && existing.AppealerID == ap.AppealerID {
			return errors.New("appeal already exists for this action and appealer")
		}
	}
	cp := ap
	s.appeals[ap.AppealID] = &cp
	return nil
}

func (s *memAppeals) Get(ctx context.Context, appealID string) (*Appeal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ap, ok := s.appeals[appealID]
	if !ok {
		return nil, nil
	}
	out := *ap
	return &out, nil
}

func (s *memAppeals) ByActionAndAppealer(ctx context.Context, actionID, appealerID string) (*Appeal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ap := range s.appeals {
		if ap.ActionID == actionID && ap.AppealerID == appealerID {
			out := *ap
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memAppeals) Transition(ctx context.Context, appealID string, from []AppealStatus, to AppealStatus, resolverID, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ap, ok := s.appeals[appealID]
	if !ok {
		return false, nil
	}
	eligible := false
	for _, st := range from {
		if ap.Status == st {
			eligible = true
			break
		}
	}
	if !eligible {
		return false, nil
	}
	ap.Status = to
	if to.Terminal() {
		ap.ResolverID = resolverID
		ap.ResolutionReason = reason
		resolvedAt := at
		ap.ResolvedAt = &resolvedAt
	}
	return true, nil
}

// --- feature flags ---

type memFlags MemStore

func flagKey(communityID string, f Feature) string {
	return communityID + "/" + string(f)
}

func (s *memFlags) Upsert(ctx context.Context, flag FeatureFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[flagKey(flag.CommunityID, flag.Feature)] = flag
	return nil
}

func (s *memFlags) Get(ctx context.Context, communityID string, feature Feature) (*FeatureFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flag, ok := s.flags[flagKey(communityID, feature)]
	if !ok {
		return nil, nil
	}
	out := flag
	return &out, nil
}

func (s *memFlags) All(ctx context.Context, communityID string) ([]FeatureFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []FeatureFlag
	for _, flag := range s.flags {
		if flag.CommunityID == communityID {
			out = append(out, flag)
		}
	}
	return out, nil
}
