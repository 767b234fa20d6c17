package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	c := &Client{prefix: "metaquote:"}
	assert.Equal(t, "metaquote:quotes:999:0xb8:0x00", c.Key(SnapshotKey("999:0xb8:0x00")))
	assert.Equal(t, "metaquote:ratelimit:api:10.0.0.1", c.Key(rateLimitKey("api:10.0.0.1")))
	assert.Equal(t, "ch:quotes", (&Client{}).Key("ch:quotes"))
}

func TestHasPattern(t *testing.T) {
	assert.False(t, hasPattern("ch:quotes"))
	assert.True(t, hasPattern("ch:quotes:*"))
	assert.True(t, hasPattern("ch:[ab]"))
}

func TestOfferDropsOldest(t *testing.T) {
	out := make(chan []byte, 2)
	offer(out, []byte("a"))
	offer(out, []byte("b"))
	offer(out, []byte("c"))

	assert.Equal(t, "b", string(<-out))
	assert.Equal(t, "c", string(<-out))
}
