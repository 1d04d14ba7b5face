// Copyright 2018 The Kura Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package zus_test

import (
	"testing"

	"github.com/kurafs/zus/pkg/zufs"
	"github.com/kurafs/zus/pkg/zus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMountIDRoundTrip(t *testing.T) {
	for _, id := range []zus.MountID{1, 2, 0xdeadbeef} {
		got, err := zus.ParseMountID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
	assert.Equal(t, "babab-babad", zus.MountID(1).String())

	_, err := zus.ParseMountID("12")
	assert.Error(t, err)
}

func TestMountTableLookups(t *testing.T) {
	h := newHarness(t)
	sbiHandle, root := h.mount(t)

	sbi, err := h.mounts.Get(zus.MountID(sbiHandle))
	require.NoError(t, err)
	assert.Equal(t, zus.MountID(sbiHandle), sbi.ID)
	assert.Equal(t, 1, h.mounts.Len())
	require.Len(t, h.mounts.Snapshot(), 1)
	assert.Same(t, sbi, h.mounts.Snapshot()[0])

	owner, ii, err := h.mounts.Inode(zus.Handle(root))
	require.NoError(t, err)
	assert.Same(t, sbi, owner)
	assert.Same(t, sbi.Root, ii)
	assert.Equal(t, zus.Handle(root).Mount(), sbi.ID)

	_, err = h.mounts.Get(sbi.ID + 1)
	assert.ErrorIs(t, err, zufs.ESTALE)
	_, _, err = h.mounts.Inode(zus.Handle(root) + 1000)
	assert.ErrorIs(t, err, zufs.ESTALE)
}
