package symtab_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dressupgeekout/mrubyc/symtab"
)

func TestInternSeedScenario(t *testing.T) {
	for _, strategy := range []symtab.Strategy{symtab.Linear, symtab.BST} {
		t.Run(fmt.Sprintf("strategy=%d", strategy), func(t *testing.T) {
			tbl := symtab.New(strategy, 16, nil)

			foo, err := tbl.StrToSymID("foo")
			require.NoError(t, err)
			bar, err := tbl.StrToSymID("bar")
			require.NoError(t, err)
			fooAgain, err := tbl.StrToSymID("foo")
			require.NoError(t, err)

			require.Equal(t, symtab.ID(0), foo)
			require.Equal(t, symtab.ID(1), bar)
			require.Equal(t, symtab.ID(0), fooAgain)

			s, ok := tbl.SymIDToStr(1)
			require.True(t, ok)
			require.Equal(t, "bar", s)
		})
	}
}

func TestSymIDToStrOutOfRange(t *testing.T) {
	tbl := symtab.New(symtab.Linear, 4, nil)
	_, ok := tbl.SymIDToStr(99)
	require.False(t, ok)
}

func TestRoundTrip(t *testing.T) {
	for _, strategy := range []symtab.Strategy{symtab.Linear, symtab.BST} {
		tbl := symtab.New(strategy, 64, nil)
		names := []string{"initialize", "to_s", "new", "each", "puts", "p", "+", "-", "<=>", "!="}
		for _, n := range names {
			id, err := tbl.StrToSymID(n)
			require.NoError(t, err)
			got, ok := tbl.SymIDToStr(id)
			require.True(t, ok)
			require.Equal(t, n, got)
		}
	}
}

func TestTableFull(t *testing.T) {
	tbl := symtab.New(symtab.BST, 2, nil)
	_, err := tbl.StrToSymID("a")
	require.NoError(t, err)
	_, err = tbl.StrToSymID("b")
	require.NoError(t, err)
	_, err = tbl.StrToSymID("c")
	require.ErrorIs(t, err, symtab.ErrTableFull)
}
