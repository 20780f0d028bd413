package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestLogSetArgRange(t *testing.T) {
	l := NewLog(Info, "hello {0}", 100)

	require.NoError(t, l.SetArg(0, strp("world")))
	err := l.SetArg(10, strp("oops"))
	require.ErrorIs(t, err, ErrArgumentIndexOutOfRange)

	err = l.SetArg(-1, strp("oops"))
	require.ErrorIs(t, err, ErrArgumentIndexOutOfRange)
}

func TestLogContentSubstitution(t *testing.T) {
	l := NewLog(Info, "hello {0}, you are {1}", 1)
	require.NoError(t, l.SetArg(0, strp("world")))
	require.NoError(t, l.SetArg(1, strp("welcome")))

	assert.Equal(t, "hello world, you are welcome", l.Content())
	assert.Equal(t, "hello <tag>world</tag>, you are <tag>welcome</tag>", l.TagContent())
}

func TestLogContentNullArgumentRendersEmpty(t *testing.T) {
	l := NewLog(Info, "value={0}", 1)
	assert.Equal(t, "value=", l.Content())
	assert.Equal(t, "value=<tag></tag>", l.TagContent())
}

func TestLogContentArgumentValueContainingPlaceholderTokenIsNotReSubstituted(t *testing.T) {
	l := NewLog(Info, "echo {0} and {1}", 1)
	require.NoError(t, l.SetArg(0, strp("{1}")))
	require.NoError(t, l.SetArg(1, strp("Z")))

	assert.Equal(t, "echo {1} and Z", l.Content())
}

func TestLogContentNoPlaceholders(t *testing.T) {
	l := NewLog(Info, "static message", 1)
	assert.Equal(t, "static message", l.Content())
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "Debug", Debug.String())
	assert.Equal(t, "Critical", Critical.String())
	assert.Equal(t, "Unknown", Level(99).String())
}
