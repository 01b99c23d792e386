package analyzer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePathURIRoundTrip(t *testing.T) {
	uri := FilePathToURI("/workspace/src/main.rs")
	assert.Equal(t, DocumentURI("file:///workspace/src/main.rs"), uri)
	assert.Equal(t, "/workspace/src/main.rs", URIToFilePath(uri))

	assert.Equal(t, DocumentURI(""), FilePathToURI(""))
	assert.Equal(t, "", URIToFilePath(""))
}

func TestURIToFilePathNonFileScheme(t *testing.T) {
	assert.Equal(t, "untitled:Untitled-1", URIToFilePath("untitled:Untitled-1"))
}

func TestParseLocationResult(t *testing.T) {
	t.Run("null", func(t *testing.T) {
		locs, err := ParseLocationResult(json.RawMessage("null"))
		require.NoError(t, err)
		assert.Empty(t, locs)
	})

	t.Run("single location", func(t *testing.T) {
		locs, err := ParseLocationResult(json.RawMessage(
			`{"uri":"file:///lib.rs","range":{"start":{"line":1,"character":0},"end":{"line":1,"character":4}}}`))
		require.NoError(t, err)
		require.Len(t, locs, 1)
		assert.Equal(t, DocumentURI("file:///lib.rs"), locs[0].URI)
		assert.Equal(t, 1, locs[0].Range.Start.Line)
	})

	t.Run("location array", func(t *testing.T) {
		locs, err := ParseLocationResult(json.RawMessage(
			`[{"uri":"file:///a.rs","range":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}}},
			  {"uri":"file:///b.rs","range":{"start":{"line":5,"character":2},"end":{"line":5,"character":9}}}]`))
		require.NoError(t, err)
		require.Len(t, locs, 2)
		assert.Equal(t, DocumentURI("file:///b.rs"), locs[1].URI)
	})

	t.Run("location links", func(t *testing.T) {
		locs, err := ParseLocationResult(json.RawMessage(
			`[{"targetUri":"file:///c.rs",
			   "targetRange":{"start":{"line":0,"character":0},"end":{"line":10,"character":0}},
			   "targetSelectionRange":{"start":{"line":3,"character":7},"end":{"line":3,"character":12}}}]`))
		require.NoError(t, err)
		require.Len(t, locs, 1)
		assert.Equal(t, DocumentURI("file:///c.rs"), locs[0].URI)
		assert.Equal(t, 3, locs[0].Range.Start.Line)
		assert.Equal(t, 7, locs[0].Range.Start.Character)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseLocationResult(json.RawMessage(`42`))
		assert.ErrorIs(t, err, ErrMalformedMessage)
	})
}

func TestCodeActionKindMatches(t *testing.T) {
	assert.True(t, CodeActionRefactor.Matches(CodeActionRefactor))
	assert.True(t, CodeActionRefactor.Matches(CodeActionExtract))
	assert.True(t, CodeActionSource.Matches(CodeActionOrganizeImports))
	assert.False(t, CodeActionExtract.Matches(CodeActionRefactor))
	assert.False(t, CodeActionQuickFix.Matches(CodeActionRefactor))
}

func TestHasCapability(t *testing.T) {
	assert.False(t, HasCapability(nil))
	assert.False(t, HasCapability(false))
	assert.True(t, HasCapability(true))
	assert.True(t, HasCapability(map[string]any{"workDoneProgress": true}))
}

func TestDiagnosticCodeString(t *testing.T) {
	assert.Equal(t, "E0308", Diagnostic{Code: "E0308"}.CodeString())
	assert.Equal(t, "308", Diagnostic{Code: float64(308)}.CodeString())
	assert.Equal(t, "", Diagnostic{}.CodeString())
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "error", SeverityError.String())
	assert.Equal(t, "warning", SeverityWarning.String())
	assert.Equal(t, "info", SeverityInformation.String())
	assert.Equal(t, "hint", SeverityHint.String())
}
