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

// Package admin exposes a read-only view of a running server: the
// registered file system types and the live mounts. It is served over gRPC
// with the protobuf messages of admin.proto, over grpc-web, and as a
// Prometheus /metrics endpoint, all on one listener.
package admin

import (
	"context"

	"github.com/kurafs/zus/pkg/log"
	"github.com/kurafs/zus/pkg/zus"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const serviceName = "zus.admin.Admin"

// AdminServer is the server API of the admin service.
type AdminServer interface {
	ListFilesystems(context.Context, *emptypb.Empty) (*ListFilesystemsResponse, error)
	ListMounts(context.Context, *emptypb.Empty) (*ListMountsResponse, error)
}

// Source is the server state the admin service reports on.
type Source struct {
	Modules *zus.Registry
	Mounts  *zus.MountTable
}

type adminServer struct {
	logger *log.Logger
	src    Source
}

var _ AdminServer = (*adminServer)(nil)

func newAdminServer(logger *log.Logger, src Source) *adminServer {
	return &adminServer{logger: logger, src: src}
}

func (s *adminServer) ListFilesystems(ctx context.Context, req *emptypb.Empty) (*ListFilesystemsResponse, error) {
	resp := &ListFilesystemsResponse{}
	for _, fs := range s.src.Modules.Modules() {
		resp.Filesystems = append(resp.Filesystems, &Filesystem{
			ID:      uint32(fs.ID),
			Name:    fs.Caps.Name,
			Magic:   fs.Caps.Magic,
			Version: fs.Caps.Version,
		})
	}
	return resp, nil
}

func (s *adminServer) ListMounts(ctx context.Context, req *emptypb.Empty) (*ListMountsResponse, error) {
	resp := &ListMountsResponse{}
	for _, sbi := range s.src.Mounts.Snapshot() {
		m := &Mount{
			ID:         sbi.ID.String(),
			Handle:     uint32(sbi.ID),
			KernSbID:   sbi.KernSbID,
			Filesystem: sbi.Module.Caps.Name,
			Inodes:     uint32(sbi.Inodes()),
			MountedAt:  timestamppb.New(sbi.Mounted),
		}
		if sbi.Region != nil {
			geo := sbi.Region.Geometry()
			m.Region = sbi.Region.ID()
			m.T1Blocks, m.T2Blocks = geo.T1Blocks, geo.T2Blocks
		}
		if st, err := sbi.Ops.Statfs(ctx, sbi); err != nil {
			s.logger.Debugf("statfs on mount %s: %v", sbi.ID, err)
		} else {
			m.Statfs = &Statfs{
				Blocks:     st.Blocks,
				BlocksFree: st.BlocksFree,
				Files:      st.Files,
				FilesFree:  st.FilesFree,
			}
		}
		resp.Mounts = append(resp.Mounts, m)
	}
	return resp, nil
}

// RegisterAdminServer registers srv with s.
func RegisterAdminServer(s *grpc.Server, srv AdminServer) {
	s.RegisterService(&adminServiceDesc, srv)
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListFilesystems", Handler: listFilesystemsHandler},
		{MethodName: "ListMounts", Handler: listMountsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "admin.proto",
}

func listFilesystemsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).ListFilesystems(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ListFilesystems"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServer).ListFilesystems(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func listMountsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).ListMounts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ListMounts"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServer).ListMounts(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
