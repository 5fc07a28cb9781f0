package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/commentmail/pkg/core"
)

func TestParseDocumentReference(t *testing.T) {
	tests := []struct {
		in   string
		want core.DocumentReference
	}{
		{"dev:Sandbox.Page1", core.DocumentReference{Wiki: "dev", Space: "Sandbox", Name: "Page1"}},
		{"XWiki.alice", core.DocumentReference{Wiki: "xwiki", Space: "XWiki", Name: "alice"}},
		{"Page1", core.DocumentReference{Wiki: "xwiki", Space: "Main", Name: "Page1"}},
		{"dev:A.B.C", core.DocumentReference{Wiki: "dev", Space: "A.B", Name: "C"}},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := core.ParseDocumentReference(tc.in, "xwiki")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseDocumentReference_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", ":Space.Page", "dev:", "Space.", ".Page", "A..B.C"} {
		_, err := core.ParseDocumentReference(in, "xwiki")
		assert.ErrorIs(t, err, core.ErrInvalidReference, "input %q", in)
	}
}

func TestObjectReference_RoundTrip(t *testing.T) {
	ref := core.ObjectReference{
		Document: core.DocumentReference{Wiki: "dev", Space: "Sandbox", Name: "Page1"},
		Class:    core.CommentClass,
		Number:   3,
	}
	assert.Equal(t, "dev:Sandbox.Page1^XWiki.XWikiComments[3]", ref.String())
	assert.Equal(t, "dev/Sandbox/Page1/XWiki.XWikiComments/3", ref.Path())

	parsed, err := core.ParseObjectReference(ref.String(), "xwiki")
	require.NoError(t, err)
	assert.Equal(t, ref, parsed)
}

func TestParseObjectReference_Invalid(t *testing.T) {
	for _, in := range []string{
		"dev:Sandbox.Page1",
		"dev:Sandbox.Page1^XWiki.XWikiComments",
		"dev:Sandbox.Page1^XWiki.XWikiComments[x]",
		"dev:Sandbox.Page1^XWiki.XWikiComments[-1]",
		"dev:Sandbox.Page1^[2]",
	} {
		_, err := core.ParseObjectReference(in, "xwiki")
		assert.ErrorIs(t, err, core.ErrInvalidReference, "input %q", in)
	}
}
