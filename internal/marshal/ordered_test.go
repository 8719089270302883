package marshal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObjectPreservesInsertionOrder(t *testing.T) {
	obj := NewObject()
	obj.Set("zeta", 1)
	obj.Set("alpha", 2)
	obj.Set("mid", 3)

	require.Equal(t, []string{"zeta", "alpha", "mid"}, obj.Keys())

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	require.Equal(t, `{"zeta":1,"alpha":2,"mid":3}`, string(data))
}

func TestObjectSetReplacesKeepingPosition(t *testing.T) {
	obj := NewObject()
	obj.Set("a", 1)
	obj.Set("b", 2)
	obj.Set("a", 3)

	require.Equal(t, []string{"a", "b"}, obj.Keys())
	v, ok := obj.GetInt64("a")
	require.True(t, ok)
	require.EqualValues(t, 3, v)
}

func TestObjectRename(t *testing.T) {
	obj := NewObject()
	obj.Set("uri", "http://example.com")
	obj.Set("name", "Example")

	obj.Rename("uri", "url")

	require.Equal(t, []string{"url", "name"}, obj.Keys())
	require.Equal(t, "http://example.com", obj.GetString("url"))
	require.False(t, obj.Has("uri"))
}

func TestObjectDelete(t *testing.T) {
	obj := NewObject()
	obj.Set("a", 1)
	obj.Set("b", 2)
	obj.Set("c", 3)

	obj.Delete("b")

	require.Equal(t, []string{"a", "c"}, obj.Keys())
	require.False(t, obj.Has("b"))
	obj.Delete("missing")
	require.Equal(t, 2, obj.Len())
}

func TestObjectUnmarshalKeepsOrderAndNumbers(t *testing.T) {
	raw := `{"date_added":1714000000000,"title":"Bookmark","nested":{"inner":true},"tags":["a","b"]}`

	obj := NewObject()
	require.NoError(t, json.Unmarshal([]byte(raw), obj))

	require.Equal(t, []string{"date_added", "title", "nested", "tags"}, obj.Keys())

	// Epoch millisecond timestamps must survive without float rounding.
	added, ok := obj.GetInt64("date_added")
	require.True(t, ok)
	require.EqualValues(t, 1714000000000, added)

	nested := obj.GetObject("nested")
	require.NotNil(t, nested)
	require.True(t, nested.GetBool("inner"))

	out, err := json.Marshal(obj)
	require.NoError(t, err)
	require.Equal(t, raw, string(out))
}

func TestObjectReorder(t *testing.T) {
	obj := NewObject()
	obj.Set("custom", 1)
	obj.Set("title", "t")
	obj.Set("uuid", "A")
	obj.Set("type", "bookmark")

	obj.Reorder([]string{"type", "uuid", "title", "url"})

	require.Equal(t, []string{"type", "uuid", "title", "custom"}, obj.Keys())
}

func TestObjectClone(t *testing.T) {
	obj := NewObject()
	obj.Set("a", 1)
	obj.Set("b", 2)

	clone := obj.Clone()
	clone.Set("c", 3)
	clone.Delete("a")

	require.Equal(t, []string{"a", "b"}, obj.Keys())
	require.Equal(t, []string{"b", "c"}, clone.Keys())
}

func TestSanitizeNodeStripsUnknownAttributes(t *testing.T) {
	obj := NewObject()
	obj.Set("uuid", "ABCDEF")
	obj.Set("name", "kept")
	obj.Set("libra_id", "dropped")
	obj.Set("date_added", int64(1714000000000))

	clean := SanitizedNode(obj)
	require.Equal(t, []string{"uuid", "name", "date_added"}, clean.Keys())
	require.True(t, obj.Has("libra_id"), "sanitized copy must not touch the original")

	SanitizeNode(obj)
	require.False(t, obj.Has("libra_id"))
	require.Equal(t, "kept", obj.GetString("name"))
}
