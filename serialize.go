/*
 * phpserialize-go, (C) 2024 sokojh
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package phpserialize

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Serializer converts decoded value trees to a compact binary form and reads
// them back, so pipelines can cache or ship parse results without keeping
// the PHP payload around. The output is a private format, not PHP syntax.
// A Serializer can be reused, but not used concurrently.
type Serializer struct {
	// Structure stream: one tag byte per value plus varint scalars.
	structBuf []byte
	// Deduplicated string payloads.
	stringBuf    []byte
	stringsTable [stringSize]uint32

	comp         byte
	fasterComp   bool
	maxBlockSize uint64
}

const (
	stringBits        = 14
	stringSize        = 1 << stringBits
	stringmask        = stringSize - 1
	serializedVersion = 1
)

// NewSerializer will create and initialize a Serializer.
func NewSerializer() *Serializer {
	initSerializerOnce.Do(initSerializer)
	var s Serializer
	s.CompressMode(CompressDefault)
	s.maxBlockSize = 1 << 31
	return &s
}

// CompressMode controls how much effort is spent shrinking serialized trees.
type CompressMode uint8

const (
	// CompressNone no compression whatsoever.
	CompressNone CompressMode = iota

	// CompressFast will apply light compression,
	// but will not deduplicate strings.
	CompressFast

	// CompressDefault applies light compression and deduplicates strings.
	CompressDefault

	// CompressBest applies zstd and deduplicates strings.
	CompressBest
)

// CompressMode sets the active mode.
func (s *Serializer) CompressMode(c CompressMode) {
	switch c {
	case CompressNone:
		s.comp = blockTypeUncompressed
	case CompressFast:
		s.comp = blockTypeS2
		s.fasterComp = true
	case CompressDefault:
		s.comp = blockTypeS2
		s.fasterComp = false
	case CompressBest:
		s.comp = blockTypeZstd
		s.fasterComp = false
	default:
		panic("unknown compression mode")
	}
}

// Serialize appends the binary form of v to dst and returns the result.
//
// Layout:
//   - Version (byte)
//   - Uncompressed structure size (varuint)
//   - Structure block: compressed size plus one (varuint), block type
//     (byte), data.
//   - Uncompressed strings size (varuint)
//   - Strings block: same framing.
//
// The structure stream is a preorder walk: a tag byte per value, followed by
// the scalars that tag needs. Strings live in the strings block and are
// referenced by offset and length, deduplicated unless CompressFast.
func (s *Serializer) Serialize(dst []byte, v Value) []byte {
	for i := range s.stringsTable[:] {
		s.stringsTable[i] = 0
	}
	s.structBuf = s.structBuf[:0]
	s.stringBuf = s.stringBuf[:0]

	s.writeValue(v)

	var tmp [binary.MaxVarintLen64]byte
	dst = append(dst, serializedVersion)

	n := binary.PutUvarint(tmp[:], uint64(len(s.structBuf)))
	dst = append(dst, tmp[:n]...)
	dst = appendBlock(dst, s.comp, s.structBuf, s.fasterComp)

	n = binary.PutUvarint(tmp[:], uint64(len(s.stringBuf)))
	dst = append(dst, tmp[:n]...)
	dst = appendBlock(dst, s.comp, s.stringBuf, s.fasterComp)
	return dst
}

// Deserialize reads a tree written by Serialize.
// Only basic sanity checks are performed; slight corruption will likely go
// through unnoticed.
func (s *Serializer) Deserialize(src []byte) (Value, error) {
	initSerializerOnce.Do(initSerializer)
	br := bytes.NewBuffer(src)

	if v, err := br.ReadByte(); err != nil {
		return Value{}, err
	} else if v != serializedVersion {
		return Value{}, errors.New("unknown version")
	}

	structBuf, err := s.readBlock(br)
	if err != nil {
		return Value{}, fmt.Errorf("structure block: %w", err)
	}
	stringBuf, err := s.readBlock(br)
	if err != nil {
		return Value{}, fmt.Errorf("strings block: %w", err)
	}

	d := tapeReader{structs: structBuf, strings: stringBuf}
	v, err := d.readValue(0)
	if err != nil {
		return Value{}, err
	}
	if len(d.structs) != 0 {
		return Value{}, errors.New("trailing structure data")
	}
	return v, nil
}

// Structure stream tags.
const (
	tapeNull = iota
	tapeFalse
	tapeTrue
	tapeInt
	tapeFloat
	tapeString
	tapeArray
	tapeObject
	tapeEnum
	tapeRef
	tapePrivateProp // property framing: visibility encoded in the tag
	tapeProtectedProp
	tapePublicProp
)

func (s *Serializer) writeValue(v Value) {
	var tmp [binary.MaxVarintLen64]byte
	switch v.kind {
	case KindNull:
		s.structBuf = append(s.structBuf, tapeNull)
	case KindBool:
		if v.boolv {
			s.structBuf = append(s.structBuf, tapeTrue)
		} else {
			s.structBuf = append(s.structBuf, tapeFalse)
		}
	case KindInt:
		s.structBuf = append(s.structBuf, tapeInt)
		n := binary.PutVarint(tmp[:], v.intv)
		s.structBuf = append(s.structBuf, tmp[:n]...)
	case KindFloat:
		s.structBuf = append(s.structBuf, tapeFloat)
		binary.LittleEndian.PutUint64(tmp[:8], math.Float64bits(v.num))
		s.structBuf = append(s.structBuf, tmp[:8]...)
	case KindString:
		s.structBuf = append(s.structBuf, tapeString)
		s.writeStringRef(v.bytes)
	case KindArray:
		s.structBuf = append(s.structBuf, tapeArray)
		n := binary.PutUvarint(tmp[:], uint64(len(v.elems)))
		s.structBuf = append(s.structBuf, tmp[:n]...)
		for _, e := range v.elems {
			s.writeValue(e.Key)
			s.writeValue(e.Value)
		}
	case KindObject:
		s.structBuf = append(s.structBuf, tapeObject)
		s.writeStringRef([]byte(v.class))
		n := binary.PutUvarint(tmp[:], uint64(len(v.props)))
		s.structBuf = append(s.structBuf, tmp[:n]...)
		for _, p := range v.props {
			switch p.Visibility {
			case Private:
				s.structBuf = append(s.structBuf, tapePrivateProp)
				s.writeStringRef([]byte(p.DeclaringClass))
			case Protected:
				s.structBuf = append(s.structBuf, tapeProtectedProp)
			default:
				s.structBuf = append(s.structBuf, tapePublicProp)
			}
			s.writeStringRef([]byte(p.Name))
			s.writeValue(p.Value)
		}
	case KindEnum:
		s.structBuf = append(s.structBuf, tapeEnum)
		s.writeStringRef([]byte(v.class))
		s.writeStringRef([]byte(v.enumCase))
	case KindReference:
		s.structBuf = append(s.structBuf, tapeRef)
		n := binary.PutUvarint(tmp[:], uint64(v.ref))
		s.structBuf = append(s.structBuf, tmp[:n]...)
	}
}

// writeStringRef emits offset and length of sb within the strings block,
// appending and deduplicating as needed.
func (s *Serializer) writeStringRef(sb []byte) {
	var tmp [2 * binary.MaxVarintLen64]byte
	off := s.indexString(sb)
	n := binary.PutUvarint(tmp[:], off)
	n += binary.PutUvarint(tmp[n:], uint64(len(sb)))
	s.structBuf = append(s.structBuf, tmp[:n]...)
}

// indexString deduplicates strings against the table and returns the offset
// of sb within the string buffer.
func (s *Serializer) indexString(sb []byte) (offset uint64) {
	if s.fasterComp || len(sb) == 0 {
		off := len(s.stringBuf)
		s.stringBuf = append(s.stringBuf, sb...)
		return uint64(off)
	}
	// Offsets are stored +1 so 0 means an unfilled entry.
	h := fnvHash(sb) & stringmask
	off := int(s.stringsTable[h]) - 1
	end := off + len(sb)
	if off >= 0 && end <= len(s.stringBuf) && bytes.Equal(s.stringBuf[off:end], sb) {
		return uint64(off)
	}
	off = len(s.stringBuf)
	s.stringBuf = append(s.stringBuf, sb...)
	if off <= math.MaxUint32 {
		s.stringsTable[h] = uint32(off) + 1
	}
	return uint64(off)
}

func fnvHash(b []byte) uint32 {
	const prime32 = 16777619
	h := uint32(2166136261)
	for _, c := range b {
		h = (h ^ uint32(c)) * prime32
	}
	return h
}

// tapeReader decodes the structure stream against the strings block.
type tapeReader struct {
	structs []byte
	strings []byte
}

func (d *tapeReader) readTag() (byte, error) {
	if len(d.structs) == 0 {
		return 0, errors.New("structure stream truncated")
	}
	t := d.structs[0]
	d.structs = d.structs[1:]
	return t, nil
}

func (d *tapeReader) readUvarint() (uint64, error) {
	v, n := binary.Uvarint(d.structs)
	if n <= 0 {
		return 0, errors.New("bad varint in structure stream")
	}
	d.structs = d.structs[n:]
	return v, nil
}

func (d *tapeReader) readVarint() (int64, error) {
	v, n := binary.Varint(d.structs)
	if n <= 0 {
		return 0, errors.New("bad varint in structure stream")
	}
	d.structs = d.structs[n:]
	return v, nil
}

func (d *tapeReader) readStringRef() ([]byte, error) {
	off, err := d.readUvarint()
	if err != nil {
		return nil, err
	}
	length, err := d.readUvarint()
	if err != nil {
		return nil, err
	}
	end := off + length
	if end < off || end > uint64(len(d.strings)) {
		return nil, fmt.Errorf("string ref %d+%d outside strings block (%d)", off, length, len(d.strings))
	}
	return d.strings[off:end], nil
}

const maxTapeDepth = 10000

// clampCap bounds pre-allocation from a count field read off the wire.
func clampCap(count uint64) int {
	if count > initialCapacityCap {
		return initialCapacityCap
	}
	return int(count)
}

func (d *tapeReader) readValue(depth int) (Value, error) {
	if depth > maxTapeDepth {
		return Value{}, errors.New("structure stream nests too deep")
	}
	tag, err := d.readTag()
	if err != nil {
		return Value{}, err
	}
	switch tag {
	case tapeNull:
		return Null(), nil
	case tapeFalse:
		return Bool(false), nil
	case tapeTrue:
		return Bool(true), nil
	case tapeInt:
		n, err := d.readVarint()
		if err != nil {
			return Value{}, err
		}
		return Int(n), nil
	case tapeFloat:
		if len(d.structs) < 8 {
			return Value{}, errors.New("structure stream truncated")
		}
		f := math.Float64frombits(binary.LittleEndian.Uint64(d.structs[:8]))
		d.structs = d.structs[8:]
		return Float(f), nil
	case tapeString:
		sb, err := d.readStringRef()
		if err != nil {
			return Value{}, err
		}
		b := make([]byte, len(sb))
		copy(b, sb)
		return Bytes(b), nil
	case tapeArray:
		count, err := d.readUvarint()
		if err != nil {
			return Value{}, err
		}
		elems := make([]Element, 0, clampCap(count))
		for i := uint64(0); i < count; i++ {
			key, err := d.readValue(depth + 1)
			if err != nil {
				return Value{}, err
			}
			val, err := d.readValue(depth + 1)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, Element{Key: key, Value: val})
		}
		return Array(elems), nil
	case tapeObject:
		class, err := d.readStringRef()
		if err != nil {
			return Value{}, err
		}
		count, err := d.readUvarint()
		if err != nil {
			return Value{}, err
		}
		props := make([]Property, 0, clampCap(count))
		for i := uint64(0); i < count; i++ {
			p, err := d.readProperty(depth + 1)
			if err != nil {
				return Value{}, err
			}
			props = append(props, p)
		}
		return Object(string(class), props), nil
	case tapeEnum:
		class, err := d.readStringRef()
		if err != nil {
			return Value{}, err
		}
		caseName, err := d.readStringRef()
		if err != nil {
			return Value{}, err
		}
		return Enum(string(class), string(caseName)), nil
	case tapeRef:
		idx, err := d.readUvarint()
		if err != nil {
			return Value{}, err
		}
		return Reference(int(idx)), nil
	}
	return Value{}, fmt.Errorf("unknown tag: %d", tag)
}

func (d *tapeReader) readProperty(depth int) (Property, error) {
	tag, err := d.readTag()
	if err != nil {
		return Property{}, err
	}
	var p Property
	switch tag {
	case tapePrivateProp:
		p.Visibility = Private
		class, err := d.readStringRef()
		if err != nil {
			return Property{}, err
		}
		p.DeclaringClass = string(class)
	case tapeProtectedProp:
		p.Visibility = Protected
	case tapePublicProp:
		p.Visibility = Public
	default:
		return Property{}, fmt.Errorf("unknown property tag: %d", tag)
	}
	name, err := d.readStringRef()
	if err != nil {
		return Property{}, err
	}
	p.Name = string(name)
	p.Value, err = d.readValue(depth)
	if err != nil {
		return Property{}, err
	}
	return p, nil
}

// Block framing shared by Serialize and Deserialize.

const (
	blockTypeUncompressed byte = 0
	blockTypeS2           byte = 1
	blockTypeZstd         byte = 2
)

var zDec *zstd.Decoder

var zEncFast = sync.Pool{New: func() interface{} {
	e, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderCRC(false))
	return e
}}

var initSerializerOnce sync.Once

func initSerializer() {
	zDec, _ = zstd.NewReader(nil)
}

// appendBlock appends the block framing for raw: compressed size plus one
// for the type byte (varuint), block type byte, data.
func appendBlock(dst []byte, mode byte, raw []byte, fast bool) []byte {
	var comp []byte
	switch mode {
	case blockTypeUncompressed:
		comp = raw
	case blockTypeS2:
		if fast {
			comp = s2.Encode(nil, raw)
		} else {
			comp = s2.EncodeBetter(nil, raw)
		}
	case blockTypeZstd:
		enc := zEncFast.Get().(*zstd.Encoder)
		comp = enc.EncodeAll(raw, nil)
		zEncFast.Put(enc)
	default:
		panic("unknown compression mode")
	}
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(comp)+1))
	dst = append(dst, tmp[:n]...)
	dst = append(dst, mode)
	return append(dst, comp...)
}

// readBlock reads one framed block, decompressing as needed. The leading
// varuint is the uncompressed size and bounds the allocation.
func (s *Serializer) readBlock(br *bytes.Buffer) ([]byte, error) {
	rawSize, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, err
	}
	if rawSize > s.maxBlockSize {
		return nil, errors.New("block too big")
	}
	size, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, err
	}
	if size < 1 || size > uint64(br.Len()) {
		return nil, fmt.Errorf("block size (%d) extends beyond input (%d)", size, br.Len())
	}
	typ, err := br.ReadByte()
	if err != nil {
		return nil, err
	}
	size--
	compressed := br.Next(int(size))
	if uint64(len(compressed)) != size {
		return nil, errors.New("short block section")
	}
	switch typ {
	case blockTypeUncompressed:
		if uint64(len(compressed)) != rawSize {
			return nil, fmt.Errorf("short uncompressed block: in (%d) != out (%d)", len(compressed), rawSize)
		}
		return compressed, nil
	case blockTypeS2:
		dst, err := s2.Decode(make([]byte, 0, rawSize), compressed)
		if err != nil {
			return nil, err
		}
		if uint64(len(dst)) != rawSize {
			return nil, errors.New("s2 decompressed size mismatch")
		}
		return dst, nil
	case blockTypeZstd:
		dst, err := zDec.DecodeAll(compressed, make([]byte, 0, rawSize))
		if err != nil {
			return nil, err
		}
		if uint64(len(dst)) != rawSize {
			return nil, errors.New("zstd decompressed size mismatch")
		}
		return dst, nil
	}
	return nil, fmt.Errorf("unknown compression type: %d", typ)
}
