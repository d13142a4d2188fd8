// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisabledProgressIsNoop(t *testing.T) {
	t.Parallel()

	for _, p := range []*Progress{New("extract", 3, false), New("extract", 0, true), nil} {
		assert.NotPanics(t, func() {
			p.Increment("a.txt")
			p.Finish()
		})
	}

	p := New("extract", 3, false)
	assert.Nil(t, p.bar)
	assert.Nil(t, p.container)
}
