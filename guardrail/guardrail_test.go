package guardrail

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/supportmesh/core"
)

func TestNoApologies_BannedSetIsExhaustive(t *testing.T) {
	g := NoApologies()

	for _, phrase := range BannedApologies() {
		variants := []string{
			phrase,
			strings.ToUpper(phrase),
			strings.ToUpper(phrase[:1]) + phrase[1:],
			"We " + phrase + " for the delay.",
			"prefix" + phrase + "suffix",
		}

		for _, text := range variants {
			v, err := g.Check(context.Background(), text, core.SupportFields{}, "billing")
			require.NoError(t, err)
			assert.True(t, v.Tripped, "text=%q", text)
			assert.Equal(t, RuleNoApologies, v.Rule)
		}
	}
}

func TestNoApologies_AcceptsCleanText(t *testing.T) {
	g := NoApologies()

	for _, text := range []string{
		"",
		"Refund issued for order A1001, amount $49.50.",
		"Thanks for waiting. The service was restarted.",
		"Sor ry, apolog ize",
	} {
		v, err := g.Check(context.Background(), text, core.SupportFields{}, "general")
		require.NoError(t, err)
		assert.False(t, v.Tripped, "text=%q", text)
		assert.Empty(t, v.Matched)
	}
}

func TestNoApologies_ReportsMatchedPhrase(t *testing.T) {
	v, err := NoApologies().Check(context.Background(), "Our APOLOGIES.", core.SupportFields{}, "general")
	require.NoError(t, err)
	assert.Equal(t, "apologies", v.Matched)
}

func TestBannedApologies_ReturnsCopy(t *testing.T) {
	b := BannedApologies()
	b[0] = "changed"
	assert.Equal(t, []string{"sorry", "apologize", "apologies", "apologise"}, BannedApologies())
}

func TestChain(t *testing.T) {
	boom := errors.New("boom")
	pass := Func(func(context.Context, string, core.SupportFields, string) (Verdict, error) {
		return Verdict{Rule: "pass"}, nil
	})
	fail := Func(func(context.Context, string, core.SupportFields, string) (Verdict, error) {
		return Verdict{}, boom
	})

	v, err := Chain(pass, nil, NoApologies()).Check(context.Background(), "sorry", core.SupportFields{}, "general")
	require.NoError(t, err)
	assert.True(t, v.Tripped)

	v, err = Chain(pass).Check(context.Background(), "fine", core.SupportFields{}, "general")
	require.NoError(t, err)
	assert.False(t, v.Tripped)
	assert.Equal(t, "pass", v.Rule)

	_, err = Chain(fail, NoApologies()).Check(context.Background(), "sorry", core.SupportFields{}, "general")
	assert.ErrorIs(t, err, boom)
}
