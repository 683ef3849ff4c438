package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainOrder struct{}

type namedInvoice struct{}

func (namedInvoice) DocumentType() string { return "invoices" }

type pointerNamed struct{}

func (*pointerNamed) DocumentType() string { return "ptr" }

func TestTypeName(t *testing.T) {
	assert.Equal(t, "plainorder", TypeName[plainOrder]())
	assert.Equal(t, "plainorder", TypeName[*plainOrder]())
	assert.Equal(t, "invoices", TypeName[namedInvoice]())
	assert.Equal(t, "ptr", TypeName[pointerNamed]())
}

type filterFunc func([]byte) (bool, error)

func (f filterFunc) Match(p []byte) (bool, error) { return f(p) }

func TestMatches(t *testing.T) {
	ok, err := Matches(nil, []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Matches(filterFunc(func([]byte) (bool, error) { return false, nil }), nil)
	require.NoError(t, err)
	assert.False(t, ok)

	boom := errors.New("boom")
	_, err = Matches(filterFunc(func([]byte) (bool, error) { return false, boom }), nil)
	assert.ErrorIs(t, err, boom)
}

func TestChangeSetEmpty(t *testing.T) {
	assert.True(t, ChangeSet{}.Empty())
	assert.False(t, ChangeSet{Deletes: []DocumentRef{{Type: "a", ID: "1"}}}.Empty())
	doc := Document{Type: "a", ID: "1", Payload: []byte(`{}`)}
	assert.Equal(t, DocumentRef{Type: "a", ID: "1"}, doc.Ref())
	assert.False(t, ChangeSet{Upserts: []Document{doc}}.Empty())
}
