package descriptor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqweebloid/seedbank/internal/common"
)

func TestEncodeDecode_Roundtrip(t *testing.T) {
	d := Descriptor{
		ID:          "a1b2c3d4e5f60718",
		FileCount:   42,
		TreeHash:    strings.Repeat("ab", 32),
		Description: "family photos 2019",
	}

	text, err := Encode(d)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(text), MaxLen)

	got, err := Decode(text)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestEncode_NoDescription(t *testing.T) {
	text, err := Encode(Descriptor{ID: "abc", FileCount: 1, TreeHash: "ff"})
	require.NoError(t, err)
	assert.Equal(t, "sb1 id=abc n=1 th=ff", text)
}

func TestEncode_RequiresID(t *testing.T) {
	_, err := Encode(Descriptor{Description: "no id"})
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestEncode_TruncatesLongDescription(t *testing.T) {
	d := Descriptor{
		ID:          "a1b2c3d4e5f60718",
		FileCount:   3,
		TreeHash:    strings.Repeat("cd", 32),
		Description: strings.Repeat("x", 2000),
	}

	text, err := Encode(d)
	require.NoError(t, err)
	assert.Equal(t, MaxLen, len(text))

	got, err := Decode(text)
	require.NoError(t, err)

	// Structural fields survive intact; only the description shrank.
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, d.FileCount, got.FileCount)
	assert.Equal(t, d.TreeHash, got.TreeHash)
	assert.True(t, Truncated(got.Description))
	assert.True(t, strings.HasPrefix(d.Description, strings.TrimSuffix(got.Description, TruncationMarker)))
}

func TestEncode_SanitizesDescription(t *testing.T) {
	text, err := Encode(Descriptor{ID: "abc", Description: "line one\nline two\ttab\x01"})
	require.NoError(t, err)

	got, err := Decode(text)
	require.NoError(t, err)
	assert.Equal(t, "line one line two tab?", got.Description)
}

func TestDecode_IgnoresUnknownTags(t *testing.T) {
	got, err := Decode("sb2 id=abc zz=9 n=3 extra th=beef d=hello world")
	require.NoError(t, err)
	assert.Equal(t, Descriptor{ID: "abc", FileCount: 3, TreeHash: "beef", Description: "hello world"}, got)
}

func TestDecode_RequiresID(t *testing.T) {
	_, err := Decode("sb1 n=3 th=beef")
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestDecode_DescriptionKeepsEquals(t *testing.T) {
	got, err := Decode("sb1 id=abc d=a=b and c=d")
	require.NoError(t, err)
	assert.Equal(t, "a=b and c=d", got.Description)
}
