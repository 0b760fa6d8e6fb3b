// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package validate

import (
	"sync"

	"github.com/ManuGH/mediaops/internal/media/asset"
	"github.com/ManuGH/mediaops/internal/media/op"
)

// Claims detects two batch items writing the same output. The first claimant
// by index wins.
type Claims struct {
	mu    sync.Mutex
	owner map[string]int
}

// NewClaims returns an empty claim set.
func NewClaims() *Claims {
	return &Claims{owner: make(map[string]int)}
}

// Claim registers path for item index.
func (c *Claims) Claim(path string, index int) error {
	if path == "" {
		return nil
	}
	key := Normalize(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.owner[key]; ok && prev != index {
		return op.Fail(op.FailPathConflict, path, "output already claimed by batch item %d", prev)
	}
	c.owner[key] = index
	return nil
}

// Normalize returns the comparison key for an output path. It matches the
// key the local store locks on.
func Normalize(path string) string { return asset.PathKey(path) }
