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

package admin_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/kurafs/zus/pkg/admin"
	"github.com/kurafs/zus/pkg/foofs"
	"github.com/kurafs/zus/pkg/log"
	"github.com/kurafs/zus/pkg/pmem"
	"github.com/kurafs/zus/pkg/zufs"
	"github.com/kurafs/zus/pkg/zus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type server struct {
	addr    string
	modules *zus.Registry
	mounts  *zus.MountTable
	lc      *zus.Lifecycle
	fsID    zus.FsID
}

func startServer(t *testing.T) *server {
	t.Helper()
	s := &server{
		modules: zus.NewRegistry(),
		mounts:  zus.NewMountTable(),
	}
	m, err := s.modules.Register(foofs.Capabilities, foofs.New(log.Discarder(), foofs.Config{}))
	require.NoError(t, err)
	s.fsID = m.ID

	metrics := zus.NewMetrics()
	binder := pmem.Emulated{Geometry: pmem.Geometry{T1Blocks: 32}}
	s.lc = zus.NewLifecycle(log.Discarder(), s.modules, s.mounts, binder, metrics)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s.addr = lis.Addr().String()
	wait, shutdown := admin.Serve(log.Discarder(), lis, admin.Source{Modules: s.modules, Mounts: s.mounts}, metrics.Registry)
	t.Cleanup(func() {
		shutdown()
		wait()
	})
	return s
}

func (s *server) mount(t *testing.T, sbID uint64) {
	t.Helper()
	env, p := zufs.NewEnvelope(uint32(zufs.MountOpMount), zufs.MountInfoSize)
	mi, err := zufs.AsMountInfo(p)
	require.NoError(t, err)
	mi.SetFsID(uint32(s.fsID))
	mi.SetPmemID(9)
	mi.SetSbID(sbID)
	require.NoError(t, s.lc.Do(context.Background(), env))
}

func dial(t *testing.T, addr string) *admin.Client {
	t.Helper()
	c, err := admin.Dial(addr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestListFilesystems(t *testing.T) {
	s := startServer(t)
	c := dial(t, s.addr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fss, err := c.ListFilesystems(ctx)
	require.NoError(t, err)
	require.Len(t, fss, 1)
	assert.Equal(t, "foofs", fss[0].Name)
	assert.Equal(t, uint32(s.fsID), fss[0].ID)
	assert.Equal(t, foofs.Capabilities.Magic, fss[0].Magic)
}

func TestListMounts(t *testing.T) {
	s := startServer(t)
	c := dial(t, s.addr)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mounts, err := c.ListMounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, mounts)

	s.mount(t, 0x77)
	mounts, err = c.ListMounts(ctx)
	require.NoError(t, err)
	require.Len(t, mounts, 1)

	m := mounts[0]
	assert.Equal(t, zus.MountID(1).String(), m.ID)
	assert.EqualValues(t, 1, m.Handle)
	assert.EqualValues(t, 0x77, m.KernSbID)
	assert.Equal(t, "foofs", m.Filesystem)
	assert.EqualValues(t, 9, m.Region)
	assert.EqualValues(t, 32, m.T1Blocks)
	assert.EqualValues(t, 1, m.Inodes, "only the root is published")
	require.NotNil(t, m.MountedAt)
	assert.WithinDuration(t, time.Now(), m.MountedAt.AsTime(), time.Minute)
	require.NotNil(t, m.Statfs)
	// 32 blocks: superblock, 2 inode blocks, 29 data blocks.
	assert.EqualValues(t, 29, m.Statfs.Blocks)
	assert.EqualValues(t, 29, m.Statfs.BlocksFree)
}

func TestMetricsEndpoint(t *testing.T) {
	s := startServer(t)
	s.mount(t, 1)

	resp, err := http.Get("http://" + s.addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "zus_mounts 1")
	assert.Contains(t, string(body), `zus_commands_total{errno="OK",op="MOUNT"} 1`)
}

func TestUnknownPathIsNotFound(t *testing.T) {
	s := startServer(t)
	resp, err := http.Get("http://" + s.addr + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMountWireFormat(t *testing.T) {
	// Field numbers follow admin.proto: kern_sb_id is 3, statfs is 9.
	b, err := proto.Marshal(&admin.Mount{KernSbID: 0x77, Statfs: &admin.Statfs{BlocksFree: 5}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x18, 0x77, 0x4a, 0x02, 0x10, 0x05}, b)

	var m admin.Mount
	require.NoError(t, proto.Unmarshal(b, &m))
	assert.EqualValues(t, 0x77, m.KernSbID)
	assert.EqualValues(t, 5, m.Statfs.BlocksFree)
}
