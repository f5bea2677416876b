// Package fdt is the Flat Device Tree manager (§4.3): it validates,
// page-reserves, and maps the boot DTB, then exposes node-walk,
// compatible-string search, and typed property getters over the blob. No
// library in the retrieval pack parses FDT blobs, so this package decodes
// the structure block directly with encoding/binary — the wire format is a
// fixed, well-documented big-endian token stream and pulling in a general
// tree/serialization library would buy nothing a thin decoder doesn't
// already give for free (stdlib-only, justified in DESIGN.md).
package fdt

import (
	"encoding/binary"
	"sync"
	"unsafe"

	"arch"
	"defs"
	"klog"
	"mem"
	"memmap"
	"ustr"
	"vm"
)

func unsafeSlice(va uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(va)), n)
}

const (
	magic       = 0xd00dfeed
	maxDtbSize  = 2 << 20
	headerWords = 10
)

// FDTVirtBase is the fixed high VA the blob is remapped to once the VMM is
// live (§4.3: "maps the range read-only at a fixed high VA").
const FDTVirtBase uintptr = 0xffff_ffc0_0000_0000

// token values from the devicetree structure block (FDT_BEGIN_NODE..FDT_END).
const (
	tokBeginNode uint32 = 1
	tokEndNode   uint32 = 2
	tokProp      uint32 = 3
	tokNop       uint32 = 4
	tokEnd       uint32 = 9
)

type header struct {
	Magic         uint32
	TotalSize     uint32
	OffDtStruct   uint32
	OffDtStrings  uint32
	OffMemRsvmap  uint32
	Version       uint32
	LastCompVers  uint32
	BootCPUIDPhys uint32
	SizeDtStrings uint32
	SizeDtStruct  uint32
}

// Manager owns the single boot DTB the core was handed (§4.3).
type Manager struct {
	mu       sync.Mutex
	physBase uintptr
	size     uintptr
	va       uintptr // 0 until map_virtual has run
	hdr      header
}

// Boot is the global FDT manager instance.
var Boot = &Manager{}

func readHeader(base []byte) (header, bool) {
	if len(base) < 40 {
		return header{}, false
	}
	var h header
	h.Magic = binary.BigEndian.Uint32(base[0:4])
	h.TotalSize = binary.BigEndian.Uint32(base[4:8])
	h.OffDtStruct = binary.BigEndian.Uint32(base[8:12])
	h.OffDtStrings = binary.BigEndian.Uint32(base[12:16])
	h.OffMemRsvmap = binary.BigEndian.Uint32(base[16:20])
	h.Version = binary.BigEndian.Uint32(base[20:24])
	h.LastCompVers = binary.BigEndian.Uint32(base[24:28])
	h.BootCPUIDPhys = binary.BigEndian.Uint32(base[28:32])
	h.SizeDtStrings = binary.BigEndian.Uint32(base[32:36])
	h.SizeDtStruct = binary.BigEndian.Uint32(base[36:40])
	return h, h.Magic == magic
}

func bytesAt(va uintptr, n int) []byte {
	return unsafeSlice(va, n)
}

// Init validates the magic and total size at dtbPhys (§4.3 init). Over-size
// blobs are accepted with a warning; bad magic is fatal to the caller.
func (m *Manager) Init(dtbPhys uintptr) defs.Err_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw := bytesAt(dtbPhys, 40)
	h, ok := readHeader(raw)
	if !ok {
		return defs.EINVAL
	}
	if h.TotalSize > maxDtbSize {
		klog.Warnf("fdt: oversize blob (%d bytes), continuing anyway", h.TotalSize)
	}
	m.physBase = dtbPhys
	m.size = uintptr(h.TotalSize)
	m.hdr = h
	return 0
}

// ReservePages reserves the page-aligned [start,end) covering the blob in
// the PMM before any general allocation runs (§4.3 reserve_pages).
func (m *Manager) ReservePages() {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := m.physBase &^ (uintptr(mem.PGSIZE) - 1)
	end := (m.physBase + m.size + uintptr(mem.PGSIZE) - 1) &^ (uintptr(mem.PGSIZE) - 1)
	mem.Physmem.Reserve_region(mem.Pa_t(start), end-start, "fdt")
	memmap.Global.Add(start, end-start, memmap.TypeBootData, 0, "fdt")
}

// MapVirtual maps the blob read-only at FDTVirtBase and re-validates the
// magic from the new mapping (§4.3 map_virtual, verify_integrity).
func (m *Manager) MapVirtual() defs.Err_t {
	m.mu.Lock()
	start := m.physBase &^ (uintptr(mem.PGSIZE) - 1)
	off := m.physBase - start
	end := (m.physBase + m.size + uintptr(mem.PGSIZE) - 1) &^ (uintptr(mem.PGSIZE) - 1)
	size := end - start
	m.mu.Unlock()

	if err := vm.MapRange(FDTVirtBase, mem.Pa_t(start), size, arch.Read); err != 0 {
		return err
	}
	m.mu.Lock()
	m.va = FDTVirtBase + off
	m.mu.Unlock()
	if !m.VerifyIntegrity() {
		return defs.ESTATE
	}
	return 0
}

func (m *Manager) blobBytes(n int) []byte {
	if m.va != 0 {
		return bytesAt(m.va, n)
	}
	return bytesAt(m.physBase, n)
}

// GetBlob returns the current addressable base of the blob: physical
// before MapVirtual, the mapped VA afterward (§4.3 get_blob).
func (m *Manager) GetBlob() uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.va != 0 {
		return m.va
	}
	return m.physBase
}

// GetPhys returns the blob's physical base address.
func (m *Manager) GetPhys() uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.physBase
}

// GetSize returns the blob's total size in bytes.
func (m *Manager) GetSize() uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// VerifyIntegrity re-checks magic, size, and that the struct/strings blocks
// fit inside totalsize (§4.3 verify_integrity).
func (m *Manager) VerifyIntegrity() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw := m.blobBytes(40)
	h, ok := readHeader(raw)
	if !ok || h.TotalSize != uint32(m.size) {
		return false
	}
	if uint64(h.OffDtStruct)+uint64(h.SizeDtStruct) > uint64(h.TotalSize) {
		return false
	}
	if uint64(h.OffDtStrings)+uint64(h.SizeDtStrings) > uint64(h.TotalSize) {
		return false
	}
	return true
}

// Node is one struct-block node surfaced to a walk callback.
type Node struct {
	Path       ustr.Ustr
	Name       ustr.Ustr
	Depth      int
	structOff  int // offset of FDT_BEGIN_NODE in the struct block
}

// Prop is one property surfaced to a walk callback.
type Prop struct {
	Name  ustr.Ustr
	Value []byte
}

func align4(off int) int { return (off + 3) &^ 3 }

// Walk performs a depth-first traversal of the struct block, calling
// onNode for every node (with its accumulated path) and onProp for every
// property belonging to the most recently entered node. Either callback
// may be nil.
func (m *Manager) Walk(onNode func(Node), onProp func(Node, Prop)) {
	m.mu.Lock()
	h := m.hdr
	blob := m.blobBytes(int(m.size))
	m.mu.Unlock()

	structBase := int(h.OffDtStruct)
	strings := blob[h.OffDtStrings : h.OffDtStrings+h.SizeDtStrings]
	off := structBase
	end := structBase + int(h.SizeDtStruct)

	var stack []ustr.Ustr
	var cur Node

	for off < end {
		tok := binary.BigEndian.Uint32(blob[off : off+4])
		off += 4
		switch tok {
		case tokBeginNode:
			name := ustr.MkUstrSlice(blob[off:])
			off = align4(off + len(name) + 1)
			var path ustr.Ustr
			if len(stack) == 0 {
				path = ustr.MkUstrRoot()
			} else {
				path = stack[len(stack)-1].Extend(name)
			}
			cur = Node{Path: path, Name: name, Depth: len(stack)}
			stack = append(stack, path)
			if onNode != nil {
				onNode(cur)
			}
		case tokEndNode:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case tokProp:
			length := binary.BigEndian.Uint32(blob[off : off+4])
			nameOff := binary.BigEndian.Uint32(blob[off+4 : off+8])
			off += 8
			value := blob[off : off+int(length)]
			off = align4(off + int(length))
			if onProp != nil {
				pname := ustr.MkUstrSlice(strings[nameOff:])
				onProp(cur, Prop{Name: pname, Value: value})
			}
		case tokNop:
			// no payload
		case tokEnd:
			return
		default:
			return
		}
	}
}

// FindCompatible returns the path of the first node whose "compatible"
// property contains a string matching pattern (which may end in '*'), or
// false if none matches.
func (m *Manager) FindCompatible(pattern string) (ustr.Ustr, bool) {
	var found ustr.Ustr
	var ok bool
	m.Walk(nil, func(n Node, p Prop) {
		if ok || !p.Name.Eq(ustr.Ustr("compatible")) {
			return
		}
		for _, c := range ustr.SplitNUL(p.Value) {
			if c.MatchGlob(pattern) {
				found = n.Path
				ok = true
				return
			}
		}
	})
	return found, ok
}

// GetProperty returns the raw value of property propName under nodePath.
func (m *Manager) GetProperty(nodePath ustr.Ustr, propName string) ([]byte, bool) {
	var value []byte
	var ok bool
	m.Walk(nil, func(n Node, p Prop) {
		if ok || !n.Path.Eq(nodePath) || !p.Name.Eq(ustr.Ustr(propName)) {
			return
		}
		value, ok = p.Value, true
	})
	return value, ok
}

// GetMemoryInfo walks the /memory node(s) and returns the RAM banks they
// describe, assuming #address-cells=2 #size-cells=2 (the common case for
// the arm64/riscv64 targets this core supports) (§4.3 get_memory_info).
func (m *Manager) GetMemoryInfo() defs.MemoryInfo {
	var info defs.MemoryInfo
	m.Walk(nil, func(n Node, p Prop) {
		if !p.Name.Eq(ustr.Ustr("reg")) {
			return
		}
		if n.Depth != 1 || len(n.Name) < 6 || string(n.Name[:6]) != "memory" {
			return
		}
		for i := 0; i+16 <= len(p.Value); i += 16 {
			base := binary.BigEndian.Uint64(p.Value[i : i+8])
			size := binary.BigEndian.Uint64(p.Value[i+8 : i+16])
			info.Banks = append(info.Banks, defs.MemBank{Base: uintptr(base), Size: uintptr(size)})
		}
	})
	return info
}
