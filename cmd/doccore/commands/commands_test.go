package commands_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"doccore/cmd/doccore/commands"
	"doccore/internal/core"
	"doccore/internal/infra/persistence/memory"
	"doccore/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	svc    *core.Service
	opened int
	traced bool
}

func newHarness() *harness {
	return &harness{svc: core.NewService(memory.NewStore())}
}

func (h *harness) open(_ context.Context, opts commands.OpenOptions) (*core.Service, error) {
	h.opened++
	h.traced = h.traced || opts.Trace != nil
	return h.svc, nil
}

func (h *harness) exec(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cli := commands.New(h.open)
	var out, errOut bytes.Buffer
	cli.SetArgs(args)
	cli.SetOutput(&out, &errOut)
	err := cli.Execute(context.Background())
	return out.String(), err
}

func TestCommands_PutGetDelete(t *testing.T) {
	h := newHarness()

	out, err := h.exec(t, "put", `{"id":"a","value":1}`)
	require.NoError(t, err)
	assert.Equal(t, "a\n", out)

	out, err = h.exec(t, "put", `{"value":2}`)
	require.NoError(t, err)
	generated := strings.TrimSpace(out)
	assert.Len(t, generated, 36, "uuid assigned")

	out, err = h.exec(t, "get", "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a","value":1}`, out)

	_, err = h.exec(t, "delete", "a")
	require.NoError(t, err)
	_, err = h.exec(t, "get", "a")
	require.ErrorIs(t, err, commands.ErrNotFound)
	assert.Equal(t, 5, h.opened)
}

func TestCommands_FirstStrictAndLenient(t *testing.T) {
	h := newHarness()
	for i, v := range []string{"1", "2", "2", "4"} {
		_, err := h.exec(t, "put", "--id", string(rune('a'+i)), `{"value":`+v+`}`)
		require.NoError(t, err)
	}

	out, err := h.exec(t, "first", "--expr", "value == 2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"b","value":2}`, out)

	out, err = h.exec(t, "first", "--or-default", "--cel", "doc.value == 2.0")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"b","value":2}`, out)

	_, err = h.exec(t, "first", "--field", "value=11")
	require.ErrorIs(t, err, domain.ErrNoMatch)

	out, err = h.exec(t, "first", "--or-default", "--field", "value=11")
	require.NoError(t, err)
	assert.Equal(t, "null\n", out)
}

func TestCommands_List(t *testing.T) {
	h := newHarness()
	for _, doc := range []string{`{"id":"x","kind":"a"}`, `{"id":"y","kind":"b"}`, `{"id":"z","kind":"a"}`} {
		_, err := h.exec(t, "put", doc)
		require.NoError(t, err)
	}
	out, err := h.exec(t, "--trace", "list", "--field", "kind=a")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"id":"x","kind":"a"}`, lines[0])
	assert.JSONEq(t, `{"id":"z","kind":"a"}`, lines[1])
	assert.True(t, h.traced)
}

func TestCommands_InvalidInput(t *testing.T) {
	h := newHarness()
	_, err := h.exec(t, "put", `{"id":7}`)
	require.ErrorContains(t, err, "record id must be a string")
	_, err = h.exec(t, "put", `not json`)
	require.ErrorContains(t, err, "parse record")
	_, err = h.exec(t, "first", "--expr", "value ==")
	require.Error(t, err)
	_, err = h.exec(t, "list", "--field", "novalue")
	require.ErrorContains(t, err, "want name=value")
	_, err = h.exec(t, "list", "--expr", "a", "--cel", "b")
	require.Error(t, err)
	assert.Zero(t, h.opened, "invalid input never opens the store")
}
