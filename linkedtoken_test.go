// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkTokenFiresOnFirstParent(t *testing.T) {
	p1, p2 := NewToken(), NewToken()
	child := LinkToken(p1, p2)

	assert.False(t, child.IsCancelled())

	p1.Cancel(ReasonTimeout, "slow")

	require.True(t, child.IsCancelled())
	assert.Equal(t, ReasonTimeout, child.Reason())
	assert.Contains(t, child.Message(), "parent[0]")
	assert.Contains(t, child.Message(), "slow")
}

func TestLinkTokenSecondParentIsNoop(t *testing.T) {
	p1, p2 := NewToken(), NewToken()
	child := LinkToken(p1, p2)

	p1.Cancel(ReasonManual, "first")
	p2.Cancel(ReasonTimeout, "second")

	assert.Equal(t, ReasonManual, child.Reason())
}

func TestLinkTokenNoParentsNeverFires(t *testing.T) {
	child := LinkToken()
	assert.False(t, child.IsCancelled())
}
