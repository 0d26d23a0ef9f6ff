package capability

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/supportmesh/core"
	"github.com/hupe1980/supportmesh/logging"
)

func newActionContext(sc *core.SupportContext, handler string) *core.ActionContext {
	turn := core.NewTurnContext(context.Background(), core.NewTurnID(), "", sc, 8, nil, logging.NoOpLogger{})
	return core.NewActionContext(turn.WithHandler(handler), core.NewID())
}

func newBuiltinRegistry(t *testing.T) *Registry {
	t.Helper()

	r := NewRegistry()
	require.NoError(t, r.Register(Builtins()...))

	return r
}

func names(caps []*Capability) []string {
	out := make([]string, 0, len(caps))
	for _, c := range caps {
		out = append(out, c.Name())
	}
	return out
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := newBuiltinRegistry(t)

	err := r.Register(Must(NewTyped(FAQ, "dup", faq)))
	assert.ErrorIs(t, err, ErrDuplicateCapability)
}

func TestRegistry_BindUnknown(t *testing.T) {
	r := newBuiltinRegistry(t)

	err := r.Bind("billing", "does_not_exist")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "does_not_exist", nf.Capability)
}

func TestRegistry_BindDeduplicates(t *testing.T) {
	r := newBuiltinRegistry(t)

	require.NoError(t, r.Bind("general", FAQ, FAQ))
	require.NoError(t, r.Bind("general", FAQ))

	assert.Equal(t, []string{FAQ}, names(r.Bound("general")))
}

func TestRegistry_ListAvailable_RefundIffPremium(t *testing.T) {
	r := newBuiltinRegistry(t)
	require.NoError(t, r.Bind("billing", Refund, InvoiceStatus))

	cases := []struct {
		premium bool
		want    []string
	}{
		{premium: false, want: []string{InvoiceStatus}},
		{premium: true, want: []string{Refund, InvoiceStatus}},
	}

	for _, tc := range cases {
		got := names(r.ListAvailable("billing", core.SupportFields{IsPremiumUser: tc.premium}))
		assert.Equal(t, tc.want, got, "premium=%v", tc.premium)
	}
}

func TestRegistry_ListAvailable_RestartIffTechnical(t *testing.T) {
	r := newBuiltinRegistry(t)

	handlers := []string{"billing", "technical", "general"}
	for _, h := range handlers {
		require.NoError(t, r.Bind(h, RestartService))
	}

	issueTypes := []*core.IssueType{
		nil,
		core.IssueTypeBilling.Ptr(),
		core.IssueTypeTechnical.Ptr(),
		core.IssueTypeGeneral.Ptr(),
	}

	for _, h := range handlers {
		for _, it := range issueTypes {
			fields := core.SupportFields{IssueType: it, IsPremiumUser: true}
			got := names(r.ListAvailable(h, fields))

			if it != nil && *it == core.IssueTypeTechnical {
				assert.Equal(t, []string{RestartService}, got, "handler=%s", h)
			} else {
				assert.Empty(t, got, "handler=%s issue=%v", h, it)
			}
		}
	}
}

func TestRegistry_ListAvailable_IsPure(t *testing.T) {
	r := newBuiltinRegistry(t)
	require.NoError(t, r.Bind("billing", Refund, InvoiceStatus, FAQ))

	fields := core.SupportFields{IsPremiumUser: true, IssueType: core.IssueTypeBilling.Ptr()}

	first := names(r.ListAvailable("billing", fields))
	for range 10 {
		assert.Equal(t, first, names(r.ListAvailable("billing", fields)))
	}
}

func TestRegistry_ListAvailable_ObservesLatestState(t *testing.T) {
	r := newBuiltinRegistry(t)
	require.NoError(t, r.Bind("technical", RestartService, CheckServiceStatus))

	sc := core.NewSupportContext(core.SupportFields{})
	assert.Equal(t, []string{CheckServiceStatus}, names(r.ListAvailable("technical", sc.Snapshot())))

	sc.Update(func(f *core.SupportFields) { f.IssueType = core.IssueTypeTechnical.Ptr() })
	assert.Equal(t, []string{RestartService, CheckServiceStatus}, names(r.ListAvailable("technical", sc.Snapshot())))
}

func TestRegistry_Invoke_NotFound(t *testing.T) {
	r := newBuiltinRegistry(t)
	actx := newActionContext(core.NewSupportContext(core.SupportFields{}), "general")

	_, err := r.Invoke(actx, "nope", nil)

	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestRegistry_Invoke_NotBound(t *testing.T) {
	r := newBuiltinRegistry(t)
	require.NoError(t, r.Bind("general", FAQ))

	actx := newActionContext(core.NewSupportContext(core.SupportFields{IsPremiumUser: true}), "general")

	_, err := r.Invoke(actx, Refund, map[string]any{"order_id": "A1", "amount": 10})

	var de *CapabilityDisabledError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ReasonNotBound, de.Reason)
	assert.Equal(t, "general", de.Handler)
}

func TestRegistry_Invoke_ValidationErrorSkipsExecution(t *testing.T) {
	var calls atomic.Int32

	c := Must(NewTyped("echo", "echo", func(_ *core.ActionContext, args FAQArgs) (string, error) {
		calls.Add(1)
		return args.Query, nil
	}))

	r := NewRegistry()
	require.NoError(t, r.Register(c))
	require.NoError(t, r.Bind("general", "echo"))

	actx := newActionContext(core.NewSupportContext(core.SupportFields{}), "general")

	cases := []map[string]any{
		nil,
		{"query": 42},
		{"query": "ok", "extra": true},
	}

	for _, args := range cases {
		_, err := r.Invoke(actx, "echo", args)

		var ve *ValidationError
		assert.ErrorAs(t, err, &ve, "args=%v", args)
	}

	assert.Equal(t, int32(0), calls.Load())

	out, err := r.Invoke(actx, "echo", map[string]any{"query": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRegistry_Invoke_RechecksPredicate(t *testing.T) {
	r := newBuiltinRegistry(t)
	require.NoError(t, r.Bind("technical", RestartService))

	sc := core.NewSupportContext(core.SupportFields{IssueType: core.IssueTypeTechnical.Ptr()})
	actx := newActionContext(sc, "technical")

	// offered while technical, then reclassified before the call lands
	require.Len(t, r.ListAvailable("technical", sc.Snapshot()), 1)
	sc.Update(func(f *core.SupportFields) { f.IssueType = core.IssueTypeBilling.Ptr() })

	_, err := r.Invoke(actx, RestartService, map[string]any{"service_name": "payments"})

	var de *CapabilityDisabledError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ReasonPredicateFalse, de.Reason)
}

func TestRegistry_Invoke_ExecutionError(t *testing.T) {
	boom := errors.New("boom")

	c := Must(New("fail", "always fails", nil, func(_ *core.ActionContext, _ map[string]any) (string, error) {
		return "", boom
	}))

	r := NewRegistry(func(o *RegistryOptions) { o.Logger = logging.NoOpLogger{} })
	require.NoError(t, r.Register(c))
	require.NoError(t, r.Bind("general", "fail"))

	_, err := r.Invoke(newActionContext(core.NewSupportContext(core.SupportFields{}), "general"), "fail", map[string]any{})

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "fail", ee.Capability)
}

func TestRegistry_Invoke_ReadOnlyCapabilityCannotWrite(t *testing.T) {
	c := Must(New("sneaky", "tries to write", nil, func(actx *core.ActionContext, _ map[string]any) (string, error) {
		return "", actx.Update(func(f *core.SupportFields) { f.IsPremiumUser = true })
	}))

	r := NewRegistry()
	require.NoError(t, r.Register(c))
	require.NoError(t, r.Bind("general", "sneaky"))

	sc := core.NewSupportContext(core.SupportFields{})

	_, err := r.Invoke(newActionContext(sc, "general"), "sneaky", map[string]any{})
	assert.ErrorIs(t, err, core.ErrReadOnlyContext)
	assert.False(t, sc.Snapshot().IsPremiumUser)
	assert.Equal(t, uint64(0), sc.Revision())
}

func TestPredicates_All(t *testing.T) {
	p := All(PremiumOnly(), WhenIssueType(core.IssueTypeBilling), nil)

	assert.False(t, p(core.SupportFields{}, "billing"))
	assert.False(t, p(core.SupportFields{IsPremiumUser: true}, "billing"))
	assert.True(t, p(core.SupportFields{IsPremiumUser: true, IssueType: core.IssueTypeBilling.Ptr()}, "billing"))
}
