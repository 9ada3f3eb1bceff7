package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupe(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: []string{},
		},
		{
			name:     "removes duplicates preserving first occurrence",
			input:    []string{"a@x.com", "b@x.com", "a@x.com"},
			expected: []string{"a@x.com", "b@x.com"},
		},
		{
			name:     "removes empty strings",
			input:    []string{"", "1", ""},
			expected: []string{"1"},
		},
		{
			name:     "case sensitive",
			input:    []string{"A@x.com", "a@x.com"},
			expected: []string{"A@x.com", "a@x.com"},
		},
		{
			name:     "whitespace is significant",
			input:    []string{"1", " 1"},
			expected: []string{"1", " 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Dedupe(tt.input))
		})
	}
}

func TestDedupeAndTrim(t *testing.T) {
	assert.Nil(t, DedupeAndTrim(nil))
	assert.Equal(t, []string{"foo", "bar"}, DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  ", "bar"}))
	assert.Equal(t, []string{"Foo", "foo"}, DedupeAndTrim([]string{"Foo", "foo"}))
}

func TestTrimToNil(t *testing.T) {
	s := func(v string) *string { return &v }

	assert.Nil(t, TrimToNil(nil))
	assert.Nil(t, TrimToNil(s("")))
	assert.Nil(t, TrimToNil(s("   ")))
	assert.Equal(t, "a@x.com", *TrimToNil(s(" a@x.com ")))
}
