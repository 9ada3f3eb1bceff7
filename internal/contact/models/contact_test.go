package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestAnchorID(t *testing.T) {
	t.Run("primary anchors to itself", func(t *testing.T) {
		c := &Contact{ID: 4, LinkPrecedence: LinkPrecedencePrimary}
		got, err := c.AnchorID()
		require.NoError(t, err)
		assert.Equal(t, int64(4), got)
	})

	t.Run("secondary anchors to linked id", func(t *testing.T) {
		c := &Contact{ID: 5, LinkPrecedence: LinkPrecedenceSecondary, LinkedID: ptr(int64(4))}
		got, err := c.AnchorID()
		require.NoError(t, err)
		assert.Equal(t, int64(4), got)
	})

	t.Run("secondary without link is rejected", func(t *testing.T) {
		c := &Contact{ID: 5, LinkPrecedence: LinkPrecedenceSecondary}
		_, err := c.AnchorID()
		assert.Error(t, err)
	})

	t.Run("self link is rejected", func(t *testing.T) {
		c := &Contact{ID: 5, LinkPrecedence: LinkPrecedenceSecondary, LinkedID: ptr(int64(5))}
		_, err := c.AnchorID()
		assert.Error(t, err)
	})

	t.Run("primary with link is rejected", func(t *testing.T) {
		c := &Contact{ID: 5, LinkPrecedence: LinkPrecedencePrimary, LinkedID: ptr(int64(2))}
		_, err := c.AnchorID()
		assert.Error(t, err)
	})

	t.Run("unknown precedence is rejected", func(t *testing.T) {
		c := &Contact{ID: 5, LinkPrecedence: "tertiary"}
		_, err := c.AnchorID()
		assert.Error(t, err)
		assert.False(t, c.LinkPrecedence.IsValid())
	})
}

func TestCreatedBefore(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &Contact{ID: 9, CreatedAt: t0}
	b := &Contact{ID: 2, CreatedAt: t0.Add(time.Second)}
	c := &Contact{ID: 3, CreatedAt: t0}

	assert.True(t, a.CreatedBefore(b))
	assert.False(t, b.CreatedBefore(a))
	assert.True(t, c.CreatedBefore(a), "equal timestamps tie-break on id")
}

func TestCloneIsDeep(t *testing.T) {
	orig := &Contact{ID: 1, Email: ptr("a@x.com"), LinkedID: ptr(int64(7))}
	cp := orig.Clone()
	*cp.Email = "b@x.com"
	*cp.LinkedID = 8

	assert.Equal(t, "a@x.com", *orig.Email)
	assert.Equal(t, int64(7), *orig.LinkedID)
	assert.Nil(t, (*Contact)(nil).Clone())
}
