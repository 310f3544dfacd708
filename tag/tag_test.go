package tag_test

import (
	"testing"

	"github.com/MartenCatcher/mongo-go-driver/tag"
	"github.com/stretchr/testify/require"
)

func TestTagSets_NewTagSetFromMap(t *testing.T) {
	t.Parallel()

	ts := tag.NewTagSetFromMap(map[string]string{"a": "1"})

	require.True(t, ts.Contains("a", "1"))
	require.False(t, ts.Contains("1", "a"))
	require.False(t, ts.Contains("A", "1"))
	require.False(t, ts.Contains("a", "10"))
}

func TestTagSets_NewTagSetsFromMaps(t *testing.T) {
	t.Parallel()

	tss := tag.NewTagSetsFromMaps([]map[string]string{{"a": "1"}, {"b": "1"}})

	require.Len(t, tss, 2)

	ts := tss[0]
	require.True(t, ts.Contains("a", "1"))
	require.False(t, ts.Contains("1", "a"))

	ts = tss[1]
	require.True(t, ts.Contains("b", "1"))
	require.False(t, ts.Contains("1", "b"))
}

func TestTagSets_ContainsAll(t *testing.T) {
	t.Parallel()

	ts := tag.Set{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}}

	require.True(t, ts.ContainsAll(tag.Set{{Name: "a", Value: "1"}}))
	require.True(t, ts.ContainsAll(tag.Set{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}}))
	require.True(t, ts.ContainsAll(nil))

	require.False(t, ts.ContainsAll(tag.Set{{Name: "a", Value: "2"}}))
	require.False(t, ts.ContainsAll(tag.Set{{Name: "a", Value: "1"}, {Name: "c", Value: "3"}}))
}
