package snapshot

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/guestbox/guestbox/wasienv"
)

// record is the serialized form of a continuation snapshot.
type record struct {
	MemoryStack []byte `cbor:"1,keyasint"`
	RewindStack []byte `cbor:"2,keyasint"`
	StoreData   []byte `cbor:"3,keyasint"`
	Is64Bit     bool   `cbor:"4,keyasint"`
}

var (
	zenc, _ = zstd.NewWriter(nil)
	zdec, _ = zstd.NewReader(nil)
)

// encode serializes and compresses a continuation and derives its content
// address.
func encode(rs wasienv.RewindState) (id string, data []byte, err error) {
	raw, err := cbor.Marshal(record{
		MemoryStack: rs.MemoryStack,
		RewindStack: rs.RewindStack,
		StoreData:   rs.StoreData,
		Is64Bit:     rs.Is64Bit,
	})
	if err != nil {
		return "", nil, fmt.Errorf("encode snapshot: %w", err)
	}
	data = zenc.EncodeAll(raw, nil)
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:]), data, nil
}

// decode reverses encode.
func decode(data []byte) (wasienv.RewindState, error) {
	raw, err := zdec.DecodeAll(data, nil)
	if err != nil {
		return wasienv.RewindState{}, fmt.Errorf("decompress snapshot: %w", err)
	}
	var r record
	if err := cbor.Unmarshal(raw, &r); err != nil {
		return wasienv.RewindState{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return wasienv.RewindState{
		MemoryStack: r.MemoryStack,
		RewindStack: r.RewindStack,
		StoreData:   r.StoreData,
		Is64Bit:     r.Is64Bit,
	}, nil
}
