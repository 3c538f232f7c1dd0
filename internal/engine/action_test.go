package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/degraphmalizer/internal/ir"
)

func TestRequest_Validate(t *testing.T) {
	id := ir.NewID("idx", "type", "1", 3)
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"document", Request{Type: ir.RequestUpdate, Scope: ir.ScopeDocument, ID: id}, false},
		{"delete", Request{Type: ir.RequestDelete, Scope: ir.ScopeDocument, ID: id}, false},
		{"index", Request{Type: ir.RequestUpdate, Scope: ir.ScopeIndex, ID: ir.ID{Index: "idx"}}, false},
		{"missing type", Request{Type: ir.RequestUpdate, Scope: ir.ScopeDocument, ID: ir.ID{Index: "idx"}}, true},
		{"missing index", Request{Type: ir.RequestUpdate, Scope: ir.ScopeIndex}, true},
		{"zero type", Request{Scope: ir.ScopeDocument, ID: id}, true},
		{"zero scope", Request{Type: ir.RequestUpdate, ID: id}, true},
		{"negative version", Request{Type: ir.RequestUpdate, Scope: ir.ScopeDocument, ID: id.WithVersion(-1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequest_KeyIgnoresVersionAndConfigs(t *testing.T) {
	a := Request{Type: ir.RequestUpdate, Scope: ir.ScopeDocument, ID: ir.NewID("i", "t", "k", 1)}
	b := a
	b.ID.Version = 9
	b.Configs = []ir.TypeConfig{{Name: "x"}}
	assert.Equal(t, a.Key(), b.Key())

	c := a
	c.Type = ir.RequestDelete
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestRequest_String(t *testing.T) {
	doc := Request{Type: ir.RequestUpdate, Scope: ir.ScopeDocument, ID: ir.NewID("i", "t", "k", 2)}
	assert.Equal(t, "update/document /i/t/k/2", doc.String())

	idx := Request{Type: ir.RequestDelete, Scope: ir.ScopeIndex, ID: ir.ID{Index: "i"}}
	assert.Equal(t, "delete/index /i", idx.String())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "PENDING", StatePending.String())
	assert.Equal(t, "RUNNING", StateRunning.String())
	assert.Equal(t, "COMPLETE", StateComplete.String())
	assert.Equal(t, "FAILED", StateFailed.String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateRunning.Terminal())
}

func TestAction_ResolvesExactlyOnce(t *testing.T) {
	rec := &RecordingStatus{}
	a := newAction(context.Background(), "a-1", 1, Request{}, rec)

	followers, ok := a.resolve(&Result{ActionID: "a-1", Success: true})
	require.True(t, ok)
	assert.Empty(t, followers)

	_, ok = a.resolve(&Result{ActionID: "a-1", Err: &RuntimeError{Code: ErrCodeCancelled}})
	assert.False(t, ok)

	res, err := a.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, StateComplete, a.State())
	assert.Len(t, rec.Completed(), 1)
	assert.Empty(t, rec.Failures())
}

func TestAction_CallbackRunsBeforeDone(t *testing.T) {
	var doneAtCallback bool
	var a *Action
	a = newAction(context.Background(), "a-1", 1, Request{}, StatusFuncs{
		OnFailed: func(*Result) {
			select {
			case <-a.Done():
				doneAtCallback = true
			default:
			}
		},
	})

	a.resolve(&Result{Err: &RuntimeError{Code: ErrCodeCancelled}})
	<-a.Done()
	assert.False(t, doneAtCallback)
	assert.Equal(t, StateFailed, a.State())
}

func TestAction_WaitTimeoutLeavesActionRunning(t *testing.T) {
	a := newAction(context.Background(), "a-1", 1, Request{}, NopStatus{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res, err := a.Wait(ctx)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatePending, a.State())
}

func TestAction_FollowAfterResolveFails(t *testing.T) {
	leader := newAction(context.Background(), "a-1", 1, Request{}, NopStatus{})
	f1 := newAction(context.Background(), "a-2", 2, Request{}, NopStatus{})
	f2 := newAction(context.Background(), "a-3", 3, Request{}, NopStatus{})

	require.True(t, leader.follow(f1))
	followers, ok := leader.resolve(&Result{Success: true})
	require.True(t, ok)
	assert.Equal(t, []*Action{f1}, followers)
	assert.False(t, leader.follow(f2))
}

func TestAction_PanickingCallbackStillResolves(t *testing.T) {
	a := newAction(context.Background(), "a-1", 1, Request{}, StatusFuncs{
		OnComplete: func(*Result) { panic("boom") },
	})
	_, ok := a.resolve(&Result{Success: true})
	require.True(t, ok)

	select {
	case <-a.Done():
	default:
		t.Fatal("action did not resolve")
	}
}

func TestResult_FollowedBy(t *testing.T) {
	leaderErr := &RuntimeError{Code: ErrCodeStoreUnavailable, ActionID: "a-1"}
	res := &Result{ActionID: "a-1", Err: leaderErr}
	f := newAction(context.Background(), "a-2", 2, Request{Type: ir.RequestUpdate}, NopStatus{})

	out := res.followedBy(f)
	assert.Equal(t, "a-2", out.ActionID)
	assert.Equal(t, "a-1", out.FollowerOf)
	assert.Equal(t, ir.RequestUpdate, out.Request.Type)
	assert.Equal(t, "a-2", out.Err.(*RuntimeError).ActionID)
	assert.Equal(t, "a-1", leaderErr.ActionID, "leader error untouched")
}

func TestStaticConfigs(t *testing.T) {
	cfgs := StaticConfigs{
		{Name: "a", SourceIndex: "i", SourceType: "t"},
		{Name: "b", SourceIndex: "i", SourceType: "u"},
		{Name: "c", SourceIndex: "i", SourceType: "t"},
	}
	got := cfgs.ConfigurationsFor("i", "t")
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "c", got[1].Name)
	assert.Empty(t, cfgs.ConfigurationsFor("x", "t"))
}

func TestSequenceGenerator(t *testing.T) {
	g := NewSequenceGenerator("act")
	assert.Equal(t, "act-1", g.Generate())
	assert.Equal(t, "act-2", g.Generate())

	id := UUIDv7Generator{}.Generate()
	assert.Len(t, id, 36)
}
