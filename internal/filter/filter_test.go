package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	two    = []byte(`{"value":2,"name":"b","tags":["x","y"]}`)
	four   = []byte(`{"value":4,"name":"d","tags":[]}`)
	broken = []byte(`{"value":`)
)

func TestAll(t *testing.T) {
	ok, err := All().Match(broken)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFieldEquals(t *testing.T) {
	f, err := FieldEquals("value", 2)
	require.NoError(t, err)
	ok, err := f.Match(two)
	require.NoError(t, err)
	assert.True(t, ok, "int matches JSON number")
	ok, err = f.Match(four)
	require.NoError(t, err)
	assert.False(t, ok)

	tags, err := FieldEquals("tags", []string{"x", "y"})
	require.NoError(t, err)
	ok, err = tags.Match(two)
	require.NoError(t, err)
	assert.True(t, ok)

	missing, err := FieldEquals("absent", nil)
	require.NoError(t, err)
	ok, err = missing.Match(two)
	require.NoError(t, err)
	assert.False(t, ok, "missing fields never match")

	_, err = f.Match(broken)
	require.Error(t, err)

	_, err = FieldEquals("bad", make(chan int))
	require.Error(t, err)
}

func TestExpr(t *testing.T) {
	f, err := Expr(`value == 2 && "x" in tags`)
	require.NoError(t, err)
	ok, err := f.Match(two)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.Match(four)
	require.NoError(t, err)
	assert.False(t, ok)

	undefined, err := Expr(`missing == nil`)
	require.NoError(t, err)
	ok, err = undefined.Match(two)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Expr("")
	require.Error(t, err)
	_, err = Expr("value ==")
	require.Error(t, err)
	_, err = f.Match(broken)
	require.Error(t, err)
}

func TestCEL(t *testing.T) {
	f, err := CEL(`doc.value > 3.0 || doc.tags.exists(t, t == "x")`)
	require.NoError(t, err)
	for _, payload := range [][]byte{two, four} {
		ok, err := f.Match(payload)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	none, err := CEL(`doc.name == "z"`)
	require.NoError(t, err)
	ok, err := none.Match(two)
	require.NoError(t, err)
	assert.False(t, ok)

	notBool, err := CEL(`doc.name`)
	require.NoError(t, err)
	_, err = notBool.Match(two)
	require.Error(t, err)

	_, err = CEL("")
	require.Error(t, err)
	_, err = CEL("doc.(")
	require.Error(t, err)
}

type item struct {
	Value int    `json:"value"`
	Name  string `json:"name"`
}

func TestFunc(t *testing.T) {
	f := Func(func(it *item) bool { return it.Value%2 == 0 && it.Name != "d" })
	ok, err := f.Match(two)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.Match(four)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = f.Match(broken)
	require.Error(t, err)
}

func TestAnd(t *testing.T) {
	isTwo, err := FieldEquals("value", 2)
	require.NoError(t, err)
	named, err := FieldEquals("name", "b")
	require.NoError(t, err)

	ok, err := And(isTwo, named).Match(two)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = And(isTwo, named).Match(four)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = And().Match(four)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = And(isTwo).Match(broken)
	require.Error(t, err)
}
