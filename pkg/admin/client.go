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

package admin

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Client talks to the admin service of a running server.
type Client struct {
	cc *grpc.ClientConn
}

// Dial connects to the admin service at addr. The connection is plaintext;
// the server listens on localhost by default.
func Dial(addr string) (*Client, error) {
	cc, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc}, nil
}

func (c *Client) ListFilesystems(ctx context.Context) ([]*Filesystem, error) {
	out := new(ListFilesystemsResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/ListFilesystems", &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.Filesystems, nil
}

func (c *Client) ListMounts(ctx context.Context) ([]*Mount, error) {
	out := new(ListMountsResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/ListMounts", &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.Mounts, nil
}

func (c *Client) Close() error {
	return c.cc.Close()
}
