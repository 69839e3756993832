// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/reviewrag/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, varint.Uint64.Size(uint64(id)))
	varint.Uint64.Marshal(uint64(id), buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	v, _, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return core.ID(v), nil
}

func metadataSize(m core.Metadata) int {
	return ord.String.Size(m.ProductName) +
		raw.Float64.Size(m.ProductRating) +
		ord.String.Size(m.ProductSummary)
}

func marshalMetadata(m core.Metadata, bs []byte) int {
	n := ord.String.Marshal(m.ProductName, bs)
	n += raw.Float64.Marshal(m.ProductRating, bs[n:])
	n += ord.String.Marshal(m.ProductSummary, bs[n:])
	return n
}

func unmarshalMetadata(bs []byte) (m core.Metadata, n int, err error) {
	var n1 int
	if m.ProductName, n1, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	n += n1
	if m.ProductRating, n1, err = raw.Float64.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if m.ProductSummary, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	return
}

func vectorSize(v []float32) int {
	size := varint.Int.Size(len(v))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return size
}

func marshalVector(v []float32, bs []byte) int {
	n := varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func unmarshalVector(bs []byte) ([]float32, int, error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 || length > len(bs)-n {
		return nil, n, ErrTruncatedData
	}
	v := make([]float32, length)
	for i := range v {
		f, n1, err := raw.Float32.Unmarshal(bs[n:])
		if err != nil {
			return nil, n, err
		}
		v[i] = f
		n += n1
	}
	return v, n, nil
}

// MarshalIndexEntry serializes an IndexEntry to bytes.
func MarshalIndexEntry(entry *core.IndexEntry) []byte {
	size := varint.Uint64.Size(uint64(entry.ID)) +
		ord.String.Size(entry.Content) +
		metadataSize(entry.Metadata) +
		vectorSize(entry.Vector)
	buf := make([]byte, size)
	n := varint.Uint64.Marshal(uint64(entry.ID), buf)
	n += ord.String.Marshal(entry.Content, buf[n:])
	n += marshalMetadata(entry.Metadata, buf[n:])
	marshalVector(entry.Vector, buf[n:])
	return buf
}

// UnmarshalIndexEntry deserializes an IndexEntry from bytes.
func UnmarshalIndexEntry(data []byte) (*core.IndexEntry, error) {
	entry, err := unmarshalIndexEntry(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return entry, nil
}

func unmarshalIndexEntry(data []byte) (*core.IndexEntry, error) {
	var entry core.IndexEntry
	id, n, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	entry.ID = core.ID(id)

	content, n1, err := ord.String.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	entry.Content = content
	n += n1

	metadata, n1, err := unmarshalMetadata(data[n:])
	if err != nil {
		return nil, err
	}
	entry.Metadata = metadata
	n += n1

	vector, _, err := unmarshalVector(data[n:])
	if err != nil {
		return nil, err
	}
	entry.Vector = vector
	return &entry, nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *core.Checkpoint) []byte {
	updated := checkpoint.UpdatedAt.UnixMicro()
	size := ord.String.Size(checkpoint.Key) +
		varint.Uint64.Size(checkpoint.Fingerprint) +
		varint.Int.Size(checkpoint.BatchSize) +
		varint.Int.Size(checkpoint.CompletedBatch) +
		varint.Int64.Size(updated)
	buf := make([]byte, size)
	n := ord.String.Marshal(checkpoint.Key, buf)
	n += varint.Uint64.Marshal(checkpoint.Fingerprint, buf[n:])
	n += varint.Int.Marshal(checkpoint.BatchSize, buf[n:])
	n += varint.Int.Marshal(checkpoint.CompletedBatch, buf[n:])
	varint.Int64.Marshal(updated, buf[n:])
	return buf
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	checkpoint, err := unmarshalCheckpoint(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return checkpoint, nil
}

func unmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	var c core.Checkpoint
	var n, n1 int
	var err error
	if c.Key, n1, err = ord.String.Unmarshal(data); err != nil {
		return nil, err
	}
	n += n1
	if c.Fingerprint, n1, err = varint.Uint64.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += n1
	if c.BatchSize, n1, err = varint.Int.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += n1
	if c.CompletedBatch, n1, err = varint.Int.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += n1
	updated, _, err := varint.Int64.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	c.UpdatedAt = time.UnixMicro(updated).UTC()
	return &c, nil
}
