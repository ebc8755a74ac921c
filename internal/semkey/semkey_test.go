package semkey

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive_Deterministic(t *testing.T) {
	k1 := Derive("how does photosynthesis work", Options{})
	k2 := Derive("how does photosynthesis work", Options{})
	assert.Equal(t, k1, k2)
}

func TestDerive_KeyFormat(t *testing.T) {
	key := Derive("how does photosynthesis work", Options{})
	require.True(t, strings.HasPrefix(key, "sem_"), "semantic keys use the sem prefix: %s", key)
	assert.Len(t, key, len("sem_")+16)
}

func TestDerive_WhitespaceAndCaseCollapse(t *testing.T) {
	k1 := Derive("  How does   photosynthesis WORK  ", Options{})
	k2 := Derive("how does photosynthesis work", Options{})
	assert.Equal(t, k1, k2)
}

func TestDerive_ParaphraseCollapse(t *testing.T) {
	// Same bag of tokens, different order: the sorted feature lists must
	// collapse both phrasings to one key.
	k1 := Derive("where is the reactor core located", Options{})
	k2 := Derive("where located is the core reactor", Options{})
	assert.Equal(t, k1, k2)
}

func TestDerive_DifferentQueriesDiffer(t *testing.T) {
	k1 := Derive("how does photosynthesis work", Options{})
	k2 := Derive("why do volcanoes erupt", Options{})
	assert.NotEqual(t, k1, k2)
}

func TestDerive_NegationChangesKey(t *testing.T) {
	k1 := Derive("which metals conduct electricity", Options{})
	k2 := Derive("which metals do not conduct electricity", Options{})
	assert.NotEqual(t, k1, k2)
}

func TestDerive_PlainMode(t *testing.T) {
	key := Derive("how does photosynthesis work", Options{Plain: true})
	require.True(t, strings.HasPrefix(key, "txt_"))

	// Plain mode hashes the normalized text directly, so reordering the
	// words produces a different key.
	other := Derive("photosynthesis how does work", Options{Plain: true})
	assert.NotEqual(t, key, other)
}

func TestDerive_ContextSuffix(t *testing.T) {
	opts := Options{Context: &Context{UserID: "u-1"}}
	key := Derive("how does photosynthesis work", opts)
	require.Contains(t, key, "_ctx")

	parts := strings.Split(key, "_ctx")
	require.Len(t, parts, 2)
	assert.Len(t, parts[1], 8)

	// Without context, no suffix.
	bare := Derive("how does photosynthesis work", Options{})
	assert.Equal(t, bare, parts[0])
}

func TestDerive_ContextDefaults(t *testing.T) {
	// Empty language/domain default to en/general, so supplying them
	// explicitly yields the same key.
	k1 := Derive("q", Options{Context: &Context{UserID: "u-1"}})
	k2 := Derive("q", Options{Context: &Context{UserID: "u-1", Language: "en", Domain: "general"}})
	assert.Equal(t, k1, k2)
}

func TestDerive_ContextFiltersOrderIndependent(t *testing.T) {
	f1 := map[string]string{"site": "example.org", "year": "2024"}
	f2 := map[string]string{"year": "2024", "site": "example.org"}
	k1 := Derive("q", Options{Context: &Context{Filters: f1}})
	k2 := Derive("q", Options{Context: &Context{Filters: f2}})
	assert.Equal(t, k1, k2)
}

func TestDerive_TimeWindowBucketedToDay(t *testing.T) {
	morning := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 14, 22, 30, 0, 0, time.UTC)
	nextDay := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)

	k1 := Derive("q", Options{Context: &Context{TimeWindow: morning}})
	k2 := Derive("q", Options{Context: &Context{TimeWindow: evening}})
	k3 := Derive("q", Options{Context: &Context{TimeWindow: nextDay}})

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestDerive_VersionChangesKey(t *testing.T) {
	k1 := Derive("how does photosynthesis work", Options{})
	k2 := Derive("how does photosynthesis work", Options{Version: "v2"})
	assert.NotEqual(t, k1, k2)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b c", Normalize("  A   b \t C "))
	assert.Equal(t, "", Normalize("   "))
}

func TestExtract_QuestionType(t *testing.T) {
	sig := extract("Why is the sky blue", Normalize("Why is the sky blue"))
	assert.Equal(t, "why", sig.Question)

	sig = extract("the sky is blue", Normalize("the sky is blue"))
	assert.Equal(t, "none", sig.Question)
}

func TestExtract_EntitiesFromCapitalization(t *testing.T) {
	q := "When did Apollo land on the Moon"
	sig := extract(q, Normalize(q))
	assert.Equal(t, []string{"apollo", "moon"}, sig.Entities)
}

func TestExtract_ListsSorted(t *testing.T) {
	q := "zebra otter aardvark walrus"
	sig := extract(q, Normalize(q))
	for i := 1; i < len(sig.Nouns); i++ {
		assert.LessOrEqual(t, sig.Nouns[i-1], sig.Nouns[i])
	}
}
