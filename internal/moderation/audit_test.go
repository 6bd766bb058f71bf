package moderation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/snailscoop/modauthority/internal/ids"
)

func TestRecordAssignsIDAndTimestamp(t *testing.T) {
	trail := NewAuditTrail(NewMemStore().Actions(), nil, nil)

	rec, err := trail.Record(context.Background(), ActionRecord{
		ActionType: ActionWarn, ActorID: "admin-1", TargetID: "user-7",
		CommunityID: "chat-1", Reason: "spam",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !ids.HasPrefix(rec.ActionID, ids.PrefixAction) {
		t.Errorf("action id %q lacks prefix", rec.ActionID)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("created_at must be stamped")
	}

	got, err := trail.Get(context.Background(), rec.ActionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Reason != "spam" || got.ActorID != "admin-1" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestRecordUsesInjectedClock(t *testing.T) {
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trail := NewAuditTrail(NewMemStore().Actions(), nil, nil,
		WithAuditClock(func() time.Time { return frozen }))

	rec, err := trail.Record(context.Background(), ActionRecord{
		ActionType: ActionWarn, ActorID: "admin-1", CommunityID: "chat-1",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !rec.CreatedAt.Equal(frozen) {
		t.Errorf("created_at = %v, want %v", rec.CreatedAt, frozen)
	}
}

func TestRecordValidatesRequiredFields(t *testing.T) {
	trail := NewAuditTrail(NewMemStore().Actions(), nil, nil)

	_, err := trail.Record(context.Background(), ActionRecord{ActionType: ActionWarn})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestRecordSurvivesHistoryMirrorFailure(t *testing.T) {
	store := NewMemStore()
	trail := NewAuditTrail(store.Actions(), brokenRecorder{}, nil)

	rec, err := trail.Record(context.Background(), ActionRecord{
		ActionType: ActionWarn, ActorID: "admin-1", CommunityID: "chat-1",
	})
	if err != nil {
		t.Fatalf("mirror failure must not fail the record: %v", err)
	}
	if got, _ := store.Actions().Get(context.Background(), rec.ActionID); got == nil {
		t.Error("primary record missing")
	}
}

type brokenRecorder struct{}

func (brokenRecorder) Append(ctx context.Context, rec ActionRecord) error {
	return errors.New("redis gone")
}

func TestGetRejectsMalformedID(t *testing.T) {
	trail := NewAuditTrail(NewMemStore().Actions(), nil, nil)

	if _, err := trail.Get(context.Background(), "apl_123"); !errors.Is(err, ErrValidation) {
		t.Errorf("appeal id accepted as action id: %v", err)
	}
	if _, err := trail.Get(context.Background(), "act_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id: err = %v, want ErrNotFound", err)
	}
}

func TestQueryFiltersAndOrders(t *testing.T) {
	store := NewMemStore()
	trail := NewAuditTrail(store.Actions(), nil, nil)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, typ := range []ActionType{ActionWarn, ActionBan, ActionWarn} {
		_ = store.Actions().Append(ctx, ActionRecord{
			ActionID:    ids.NewAction(),
			ActionType:  typ,
			ActorID:     "admin-1",
			TargetID:    "user-7",
			CommunityID: "chat-1",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
	}

	recs, err := trail.Query(ctx, "chat-1", ActionFilter{ActionType: ActionWarn})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].CreatedAt.Before(recs[1].CreatedAt) {
		t.Error("results must be newest first")
	}

	recs, err = trail.Query(ctx, "chat-1", ActionFilter{Since: base.Add(90 * time.Second)})
	if err != nil {
		t.Fatalf("query since: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("since filter returned %d records, want 1", len(recs))
	}

	if _, err := trail.Query(ctx, "", ActionFilter{}); !errors.Is(err, ErrValidation) {
		t.Error("empty community must fail")
	}
	if _, err := trail.Query(ctx, "chat-1", ActionFilter{ActionType: "bogus"}); !errors.Is(err, ErrValidation) {
		t.Error("unknown action type must fail")
	}
}

func TestQueryClampsLimit(t *testing.T) {
	store := NewMemStore()
	trail := NewAuditTrail(store.Actions(), nil, nil)
	ctx := context.Background()

	for i := 0; i < defaultQueryLimit+10; i++ {
		_ = store.Actions().Append(ctx, ActionRecord{
			ActionID:    ids.NewAction(),
			ActionType:  ActionWarn,
			ActorID:     "admin-1",
			CommunityID: "chat-1",
			CreatedAt:   time.Now(),
		})
	}

	recs, err := trail.Query(ctx, "chat-1", ActionFilter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(recs) != defaultQueryLimit {
		t.Errorf("default limit not applied: got %d", len(recs))
	}
}

func TestRecordIsImmutableInTrail(t *testing.T) {
	trail := NewAuditTrail(NewMemStore().Actions(), nil, nil)
	ctx := context.Background()

	rec, err := trail.Record(ctx, ActionRecord{
		ActionType: ActionWarn, ActorID: "admin-1", CommunityID: "chat-1",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	got, _ := trail.Get(ctx, rec.ActionID)
	got.Reason = "tampered"

	again, _ := trail.Get(ctx, rec.ActionID)
	if again.Reason != "" {
		t.Error("stored record was mutated through a returned copy")
	}
}
