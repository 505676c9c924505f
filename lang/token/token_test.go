package token_test

import (
	"testing"

	"github.com/mna/lovm/lang/token"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	require.Equal(t, "+", token.PLUS.String())
	require.Equal(t, "while", token.WHILE.String())
	require.Equal(t, "end of file", token.EOF.String())
}

func TestKindGoString(t *testing.T) {
	require.Equal(t, "'+'", token.PLUS.GoString())
	require.Equal(t, "while", token.WHILE.GoString())
}

func TestKeywords(t *testing.T) {
	for word, kind := range token.Keywords {
		require.Equal(t, word, kind.String())
	}
}
