package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncatePostShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "hello world", TruncatePost("hello world"))
	assert.Equal(t, "", TruncatePost(""))
}

func TestTruncatePostExactLimitUnchanged(t *testing.T) {
	text := strings.Repeat("a", MaxPostLength)
	assert.Equal(t, text, TruncatePost(text))
}

func TestTruncatePostOverLimit(t *testing.T) {
	text := strings.Repeat("a", 300)
	got := TruncatePost(text)

	assert.Len(t, []rune(got), MaxPostLength)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, text[:277], strings.TrimSuffix(got, "..."))
}

func TestTruncatePostIdempotent(t *testing.T) {
	text := strings.Repeat("b", 500)
	once := TruncatePost(text)
	twice := TruncatePost(once)

	assert.Equal(t, once, twice)
}

func TestTruncatePostCountsRunes(t *testing.T) {
	text := strings.Repeat("é", 300)
	got := TruncatePost(text)

	assert.Len(t, []rune(got), MaxPostLength)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, strings.Repeat("é", 277), strings.TrimSuffix(got, "..."))
}
