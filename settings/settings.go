// Package settings implements a small persistent key-value store laid out
// backwards in a byte-addressed non-volatile memory, typically an EEPROM.
// Items grow downward from a fixed top address so the store can share the
// memory with data allocated from the bottom.
//
// Several items may carry the same key; an index selects among them in
// insertion order. Values are limited to 32KiB minus one.
package settings

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tinydisk/fat/checkpoint"
)

// EEPROM is the storage contract of the store: random access reads and
// writes of arbitrary length at byte granularity.
type EEPROM interface {
	Read(addr uint32, buf []byte) error
	Write(addr uint32, buf []byte) error
}

// Key identifies a setting. Keys are typically built from two ASCII
// characters, for example 'E'<<8|'I' for an EUI.
type Key uint16

// MaxValueSize is the largest storable value length.
const MaxValueSize = 0x7FFF

// headerSize is the per-item overhead: extra size byte, low size byte, its
// complement as a corruption check and the two key bytes.
const headerSize = 5

// erased is the value a fresh or wiped EEPROM cell holds.
const erased = 0xFF

// These errors may be returned by store operations.
var (
	ErrNotFound    = errors.New("no such setting")
	ErrValueTooBig = errors.New("value exceeds maximum size")
	ErrStoreFull   = errors.New("settings region is full")
)

// Store manages the settings region of an EEPROM. The region spans max
// bytes ending at the top address inclusive.
type Store struct {
	mem EEPROM
	top uint32
	max uint32
}

// NewStore returns a store over the region [top-max+1, top] of mem.
func NewStore(mem EEPROM, top, max uint32) *Store {
	return &Store{mem: mem, top: top, max: max}
}

// header is the decoded per-item header. Its five bytes end at the item's
// base address, with the value stored below it.
type header struct {
	sizeExtra byte
	sizeLow   byte
	sizeCheck byte
	key       Key
}

func (h header) valid() bool {
	return h.sizeCheck == ^h.sizeLow
}

func (h header) size() int {
	if h.sizeLow&0x80 != 0 {
		return int(h.sizeLow&0x7F)<<8 | int(h.sizeExtra)
	}
	return int(h.sizeLow)
}

func makeHeader(key Key, size int) (header, error) {
	h := header{key: key}
	switch {
	case size < 0x80:
		h.sizeLow = byte(size)
	case size <= MaxValueSize:
		h.sizeLow = 0x80 | byte(size>>8)
		h.sizeExtra = byte(size)
	default:
		return header{}, checkpoint.Wrap(fmt.Errorf("%d bytes", size), ErrValueTooBig)
	}
	h.sizeCheck = ^h.sizeLow
	return h, nil
}

// bottom is the lowest address belonging to the region.
func (s *Store) bottom() uint32 {
	return s.top - s.max + 1
}

// readHeader decodes the header of the item based at addr. ok is false when
// the bytes do not form a valid item, which also marks the end of the list.
func (s *Store) readHeader(addr uint32) (header, bool, error) {
	if addr < s.bottom()+headerSize-1 {
		return header{}, false, nil
	}
	var buf [headerSize]byte
	if err := s.mem.Read(addr-headerSize+1, buf[:]); err != nil {
		return header{}, false, checkpoint.From(err)
	}
	h := header{
		sizeExtra: buf[0],
		sizeLow:   buf[1],
		sizeCheck: buf[2],
		key:       Key(binary.LittleEndian.Uint16(buf[3:])),
	}
	if !h.valid() {
		return header{}, false, nil
	}
	return h, true, nil
}

// valueAddr returns the address of the first (lowest) value byte of the
// item based at addr. Values shorter than 128 bytes reuse the unused extra
// size byte of the header.
func valueAddr(addr uint32, h header) uint32 {
	size := uint32(h.size())
	if h.sizeLow&0x80 != 0 {
		return addr - headerSize + 1 - size
	}
	return addr - headerSize + 2 - size
}

// nextItem returns the base address of the item below the one at addr.
func nextItem(addr uint32, h header) uint32 {
	return valueAddr(addr, h) - 1
}

// find walks the list from the top looking for the index-th item with the
// given key. It returns the item's base address and header, or ErrNotFound.
// With key 0 and a negative index it returns the end of the list in addr
// with err set to ErrNotFound.
func (s *Store) find(key Key, index int) (uint32, header, error) {
	addr := s.top
	for {
		h, ok, err := s.readHeader(addr)
		if err != nil {
			return 0, header{}, err
		}
		if !ok {
			return addr, header{}, checkpoint.From(ErrNotFound)
		}
		if h.key == key && index >= 0 {
			if index == 0 {
				return addr, h, nil
			}
			index--
		}
		addr = nextItem(addr, h)
	}
}

// Check reports whether the index-th item with the given key exists.
func (s *Store) Check(key Key, index int) bool {
	_, _, err := s.find(key, index)
	return err == nil
}

// Get returns a copy of the index-th value stored under key.
func (s *Store) Get(key Key, index int) ([]byte, error) {
	addr, h, err := s.find(key, index)
	if err != nil {
		return nil, err
	}
	value := make([]byte, h.size())
	if err := s.mem.Read(valueAddr(addr, h), value); err != nil {
		return nil, checkpoint.From(err)
	}
	return value, nil
}

// Add appends a new item under key, after any existing items with the same
// key.
func (s *Store) Add(key Key, value []byte) error {
	end, _, err := s.find(0, -1)
	if !errors.Is(err, ErrNotFound) && err != nil {
		return err
	}

	h, err := makeHeader(key, len(value))
	if err != nil {
		return err
	}
	// Small values reuse the extra size byte of the header, so their
	// footprint is one byte less.
	span := uint32(len(value)) + headerSize
	if h.sizeLow&0x80 == 0 && len(value) > 0 {
		span--
	}
	if end < s.bottom() || end-s.bottom()+1 < span {
		return checkpoint.From(ErrStoreFull)
	}
	vaddr := valueAddr(end, h)

	buf := [headerSize]byte{h.sizeExtra, h.sizeLow, h.sizeCheck}
	binary.LittleEndian.PutUint16(buf[3:], uint16(h.key))
	if err := s.mem.Write(end-headerSize+1, buf[:]); err != nil {
		return checkpoint.From(err)
	}
	if err := s.mem.Write(vaddr, value); err != nil {
		return checkpoint.From(err)
	}
	return nil
}

// Set replaces the first value stored under key, creating the item if it
// does not exist. A value of the same length is overwritten in place; a
// different length rewrites the whole store, keeping item order.
func (s *Store) Set(key Key, value []byte) error {
	addr, h, err := s.find(key, 0)
	if errors.Is(err, ErrNotFound) {
		return s.Add(key, value)
	}
	if err != nil {
		return err
	}

	if len(value) == h.size() {
		if err := s.mem.Write(valueAddr(addr, h), value); err != nil {
			return checkpoint.From(err)
		}
		return nil
	}
	return s.rewrite(func(k Key, idx int, v []byte) ([]byte, bool) {
		if k == key && idx == 0 {
			return value, true
		}
		return v, true
	})
}

// Delete removes the index-th item stored under key and compacts the store.
func (s *Store) Delete(key Key, index int) error {
	if _, _, err := s.find(key, index); err != nil {
		return err
	}
	return s.rewrite(func(k Key, idx int, v []byte) ([]byte, bool) {
		if k == key && idx == index {
			return nil, false
		}
		return v, true
	})
}

// Wipe erases the whole settings region.
func (s *Store) Wipe() error {
	buf := make([]byte, s.max)
	for i := range buf {
		buf[i] = erased
	}
	if err := s.mem.Write(s.bottom(), buf); err != nil {
		return checkpoint.From(err)
	}
	return nil
}

// rewrite reads every item, applies fn to each (receiving the per-key index
// and deciding keep or drop), wipes the region and stores the result.
func (s *Store) rewrite(fn func(key Key, index int, value []byte) ([]byte, bool)) error {
	type entry struct {
		key   Key
		value []byte
	}
	var entries []entry
	perKey := map[Key]int{}

	addr := s.top
	for {
		h, ok, err := s.readHeader(addr)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		value := make([]byte, h.size())
		if err := s.mem.Read(valueAddr(addr, h), value); err != nil {
			return checkpoint.From(err)
		}
		idx := perKey[h.key]
		perKey[h.key]++
		if v, keep := fn(h.key, idx, value); keep {
			entries = append(entries, entry{key: h.key, value: v})
		}
		addr = nextItem(addr, h)
	}

	if err := s.Wipe(); err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.Add(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

// GetUint16 reads a little-endian uint16 value.
func (s *Store) GetUint16(key Key, index int) (uint16, error) {
	v, err := s.Get(key, index)
	if err != nil {
		return 0, err
	}
	if len(v) != 2 {
		return 0, checkpoint.From(fmt.Errorf("value under key %#x holds %d bytes, want 2", uint16(key), len(v)))
	}
	return binary.LittleEndian.Uint16(v), nil
}

// SetUint16 stores a little-endian uint16 value.
func (s *Store) SetUint16(key Key, value uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], value)
	return s.Set(key, buf[:])
}

// MemEEPROM is an EEPROM backed by a byte slice, initialized to the erased
// state. It is mainly useful for tests.
type MemEEPROM struct {
	buf []byte
}

// NewMemEEPROM returns an erased in-memory EEPROM of the given size.
func NewMemEEPROM(size int) *MemEEPROM {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = erased
	}
	return &MemEEPROM{buf: buf}
}

func (m *MemEEPROM) Read(addr uint32, buf []byte) error {
	if int(addr)+len(buf) > len(m.buf) {
		return fmt.Errorf("read of %d bytes at %#x is out of range", len(buf), addr)
	}
	copy(buf, m.buf[addr:])
	return nil
}

func (m *MemEEPROM) Write(addr uint32, buf []byte) error {
	if int(addr)+len(buf) > len(m.buf) {
		return fmt.Errorf("write of %d bytes at %#x is out of range", len(buf), addr)
	}
	copy(m.buf[addr:], buf)
	return nil
}
