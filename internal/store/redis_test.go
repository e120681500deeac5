package store

import "testing"

func TestCacheKeyNoAliasing(t *testing.T) {
	// An owner containing the separator must never collide with another
	// group's key.
	if fillsKey("a:b", "c") == fillsKey("a", "b:c") {
		t.Error("fills keys alias across owner/asset boundaries")
	}
	if fillsKey("user1", "WIFUSDT") == fillsKey("user1", "WIFUSDT2") {
		t.Error("distinct assets must map to distinct keys")
	}
	if eventsKey("user1") == eventsKey("user10") {
		t.Error("distinct owners must map to distinct keys")
	}
	// Same inputs always produce the same key so invalidation hits the
	// entry written by the read-through path.
	if fillsKey("user1", "WIFUSDT") != fillsKey("user1", "WIFUSDT") {
		t.Error("key derivation must be deterministic")
	}
}
