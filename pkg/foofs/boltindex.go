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

package foofs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/boltdb/bolt"
	"github.com/kurafs/zus/pkg/zufs"
)

var (
	dentriesBucket = []byte("dentries")
	blocksBucket   = []byte("blocks")
)

// BoltIndexes keeps the index of each region in its own bucket of db, so a
// region can be mounted again with its namespace intact.
func BoltIndexes(db *bolt.DB) IndexOpener {
	return func(regionID uint32) (Index, error) {
		name := []byte(fmt.Sprintf("region-%d", regionID))
		err := db.Update(func(tx *bolt.Tx) error {
			root, err := tx.CreateBucketIfNotExists(name)
			if err != nil {
				return err
			}
			if _, err := root.CreateBucketIfNotExists(dentriesBucket); err != nil {
				return err
			}
			_, err = root.CreateBucketIfNotExists(blocksBucket)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("foofs: create buckets for region %d: %w", regionID, err)
		}
		return &boltIndex{db: db, bucket: name}, nil
	}
}

type boltIndex struct {
	db     *bolt.DB
	bucket []byte
}

var _ Index = (*boltIndex)(nil)

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Keys sort by directory first so a directory is one contiguous range.
func dentKey(dir uint64, name string) []byte {
	return append(u64(dir), name...)
}

func (b *boltIndex) sub(tx *bolt.Tx, name []byte) *bolt.Bucket {
	return tx.Bucket(b.bucket).Bucket(name)
}

func (b *boltIndex) Lookup(dir uint64, name string) (uint64, error) {
	var ino uint64
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := b.sub(tx, dentriesBucket).Get(dentKey(dir, name)); v != nil {
			ino = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	return ino, err
}

func (b *boltIndex) Link(dir uint64, name string, ino uint64) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := b.sub(tx, dentriesBucket)
		key := dentKey(dir, name)
		if bk.Get(key) != nil {
			return fmt.Errorf("foofs: %q exists in directory %d: %w", name, dir, zufs.EEXIST)
		}
		return bk.Put(key, u64(ino))
	})
}

func (b *boltIndex) Unlink(dir uint64, name string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := b.sub(tx, dentriesBucket)
		key := dentKey(dir, name)
		if bk.Get(key) == nil {
			return fmt.Errorf("foofs: no %q in directory %d: %w", name, dir, zufs.ENOENT)
		}
		return bk.Delete(key)
	})
}

func (b *boltIndex) Entries(dir uint64) ([]Dirent, error) {
	var out []Dirent
	prefix := u64(dir)
	err := b.db.View(func(tx *bolt.Tx) error {
		c := b.sub(tx, dentriesBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			out = append(out, Dirent{Name: string(k[8:]), Ino: binary.BigEndian.Uint64(v)})
		}
		return nil
	})
	return out, err
}

func (b *boltIndex) Blocks(ino uint64) ([]uint64, error) {
	var out []uint64
	err := b.db.View(func(tx *bolt.Tx) error {
		v := b.sub(tx, blocksBucket).Get(u64(ino))
		for i := 0; i+8 <= len(v); i += 8 {
			out = append(out, binary.BigEndian.Uint64(v[i:]))
		}
		return nil
	})
	return out, err
}

func (b *boltIndex) SetBlocks(ino uint64, bns []uint64) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := b.sub(tx, blocksBucket)
		if len(bns) == 0 {
			return bk.Delete(u64(ino))
		}
		v := make([]byte, 0, 8*len(bns))
		for _, bn := range bns {
			v = append(v, u64(bn)...)
		}
		return bk.Put(u64(ino), v)
	})
}

func (b *boltIndex) ForEachBlock(fn func(ino, bn uint64)) error {
	return b.db.View(func(tx *bolt.Tx) error {
		return b.sub(tx, blocksBucket).ForEach(func(k, v []byte) error {
			ino := binary.BigEndian.Uint64(k)
			for i := 0; i+8 <= len(v); i += 8 {
				fn(ino, binary.BigEndian.Uint64(v[i:]))
			}
			return nil
		})
	})
}

func (b *boltIndex) Reset() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(b.bucket)
		for _, name := range [][]byte{dentriesBucket, blocksBucket} {
			if err := root.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := root.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *boltIndex) Persistent() bool { return true }

// Close leaves the shared db open; its owner closes it.
func (b *boltIndex) Close() error { return nil }
