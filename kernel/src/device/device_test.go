package device

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"defs"
	"fdt"
	"ustr"
)

func resetRegistry() {
	Reset()
}

func TestRegisterBuildsTree(t *testing.T) {
	resetRegistry()
	root := Register("/", ustr.MkUstrRoot(), nil, defs.DevBus, nil)
	child := Register("uart@9000000", root.Path.ExtendStr("uart@9000000"), nil, defs.DevUART, root)
	if len(root.Children) != 1 || root.Children[0] != child {
		t.Fatal("expected child to be linked under root")
	}
	if Root != root {
		t.Fatal("expected first parentless device to become Root")
	}
}

func TestFindByNameAndCompatible(t *testing.T) {
	resetRegistry()
	d := Register("uart@9000000", ustr.MkUstrRoot().ExtendStr("uart@9000000"), []ustr.Ustr{ustr.Ustr("arm,pl011")}, defs.DevUART, nil)
	if got, ok := FindByName("uart@9000000"); !ok || got != d {
		t.Fatal("expected to find device by name")
	}
	if got, ok := FindByCompatible("arm,pl*"); !ok || got != d {
		t.Fatal("expected glob compatible match")
	}
	if _, ok := FindByCompatible("no,such,device"); ok {
		t.Fatal("expected no match")
	}
}

func TestUnregisterRemovesFromParentAndRegistry(t *testing.T) {
	resetRegistry()
	root := Register("/", ustr.MkUstrRoot(), nil, defs.DevBus, nil)
	child := Register("timer", ustr.MkUstrRoot().ExtendStr("timer"), nil, defs.DevTimer, root)
	Unregister(child)
	if len(root.Children) != 0 {
		t.Fatal("expected child removed from parent")
	}
	if _, ok := FindByName("timer"); ok {
		t.Fatal("expected device gone from registry")
	}
}

func TestMigrateToPermanentPreservesTree(t *testing.T) {
	resetRegistry()
	root := Register("/", ustr.MkUstrRoot(), nil, defs.DevBus, nil)
	child := Register("uart@9000000", root.Path.ExtendStr("uart@9000000"), nil, defs.DevUART, root)
	MigrateToPermanent()
	if !IsMigrated() {
		t.Fatal("expected migrated flag set")
	}
	newRoot, ok := FindByName("/")
	if !ok {
		t.Fatal("expected root still findable after migration")
	}
	if len(newRoot.Children) != 1 {
		t.Fatalf("expected 1 child after migration, got %d", len(newRoot.Children))
	}
	if newRoot.Children[0].Name != child.Name {
		t.Fatalf("expected migrated child named %q, got %q", child.Name, newRoot.Children[0].Name)
	}
	if newRoot == root {
		t.Fatal("expected migration to copy into new storage")
	}
	MigrateToPermanent() // idempotent
}

func TestActivateDeactivateSuspendResume(t *testing.T) {
	resetRegistry()
	d := Register("timer", ustr.MkUstrRoot().ExtendStr("timer"), nil, defs.DevTimer, nil)
	if err := Activate(d); err != 0 {
		t.Fatalf("Activate: %v", err)
	}
	if err := Activate(d); err != defs.EEXIST {
		t.Fatalf("expected EEXIST on double activate, got %v", err)
	}
	if err := Suspend(d); err != 0 {
		t.Fatalf("Suspend: %v", err)
	}
	if err := Resume(d); err != 0 {
		t.Fatalf("Resume: %v", err)
	}
	if err := Deactivate(d); err != 0 {
		t.Fatalf("Deactivate: %v", err)
	}
}

func TestResourceOperations(t *testing.T) {
	resetRegistry()
	d := Register("uart@9000000", ustr.MkUstrRoot().ExtendStr("uart@9000000"), nil, defs.DevUART, nil)
	AddMemResource(d, "regs", 0x9000000, 0x1000, defs.ResFlagNone)
	AddIRQResource(d, "irq", 33, defs.TriggerLevelHigh, defs.ResFlagNone)

	r, ok := GetResource(d, defs.ResMem, 0)
	if !ok || r.Start != 0x9000000 {
		t.Fatalf("expected mem resource, got %+v ok=%v", r, ok)
	}
	r2, ok := GetResourceByName(d, "irq")
	if !ok || r2.IRQNum != 33 {
		t.Fatalf("expected irq resource, got %+v ok=%v", r2, ok)
	}
	if _, ok := GetResource(d, defs.ResDMA, 0); ok {
		t.Fatal("expected no DMA resource")
	}
}

func TestForEachChildAndPrintTree(t *testing.T) {
	resetRegistry()
	root := Register("/", ustr.MkUstrRoot(), nil, defs.DevBus, nil)
	Register("a", root.Path.ExtendStr("a"), nil, defs.DevMisc, root)
	Register("b", root.Path.ExtendStr("b"), nil, defs.DevMisc, root)

	var visited []string
	ForEachChild(root, func(c *Device) { visited = append(visited, c.Name) })
	if len(visited) != 2 {
		t.Fatalf("expected 2 children visited, got %d", len(visited))
	}

	var depths []int
	PrintTree(nil, 0, func(d *Device, depth int) { depths = append(depths, depth) })
	if len(depths) != 3 || depths[0] != 0 || depths[1] != 1 || depths[2] != 1 {
		t.Fatalf("unexpected depths %v", depths)
	}
}

// --- minimal synthetic FDT blob, built directly against the wire format
// (see fdt package's own blobBuilder for the canonical version) ---

const (
	fdtMagic     = 0xd00dfeed
	tokBeginNode = 1
	tokEndNode   = 2
	tokProp      = 3
	tokEnd       = 9
)

type blobBuilder struct {
	strings []byte
	strOff  map[string]uint32
	structB []byte
}

func newBlobBuilder() *blobBuilder { return &blobBuilder{strOff: map[string]uint32{}} }

func (b *blobBuilder) strIdx(name string) uint32 {
	if off, ok := b.strOff[name]; ok {
		return off
	}
	off := uint32(len(b.strings))
	b.strings = append(b.strings, []byte(name)...)
	b.strings = append(b.strings, 0)
	b.strOff[name] = off
	return off
}

func put32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func (b *blobBuilder) beginNode(name string) {
	b.structB = put32(b.structB, tokBeginNode)
	b.structB = append(b.structB, []byte(name)...)
	b.structB = append(b.structB, 0)
	for len(b.structB)%4 != 0 {
		b.structB = append(b.structB, 0)
	}
}

func (b *blobBuilder) endNode() { b.structB = put32(b.structB, tokEndNode) }

func (b *blobBuilder) prop(name string, value []byte) {
	b.structB = put32(b.structB, tokProp)
	b.structB = put32(b.structB, uint32(len(value)))
	b.structB = put32(b.structB, b.strIdx(name))
	b.structB = append(b.structB, value...)
	for len(b.structB)%4 != 0 {
		b.structB = append(b.structB, 0)
	}
}

func (b *blobBuilder) build() []byte {
	b.structB = put32(b.structB, tokEnd)
	const hdrSize = 40
	rsvOff := hdrSize
	rsvSize := 16
	structOff := rsvOff + rsvSize
	stringsOff := structOff + len(b.structB)
	total := stringsOff + len(b.strings)

	out := make([]byte, total)
	binary.BigEndian.PutUint32(out[0:4], fdtMagic)
	binary.BigEndian.PutUint32(out[4:8], uint32(total))
	binary.BigEndian.PutUint32(out[8:12], uint32(structOff))
	binary.BigEndian.PutUint32(out[12:16], uint32(stringsOff))
	binary.BigEndian.PutUint32(out[16:20], uint32(rsvOff))
	binary.BigEndian.PutUint32(out[20:24], 17)
	binary.BigEndian.PutUint32(out[24:28], 16)
	binary.BigEndian.PutUint32(out[28:32], 0)
	binary.BigEndian.PutUint32(out[32:36], uint32(len(b.strings)))
	binary.BigEndian.PutUint32(out[36:40], uint32(len(b.structB)))
	copy(out[structOff:], b.structB)
	copy(out[stringsOff:], b.strings)
	return out
}

func TestPopulateFromFDT(t *testing.T) {
	resetRegistry()
	b := newBlobBuilder()
	b.beginNode("")
	b.prop("compatible", []byte("test,board\x00"))
	b.beginNode("soc")
	b.beginNode("uart@9000000")
	b.prop("compatible", []byte("arm,pl011\x00"))
	reg := make([]byte, 16)
	binary.BigEndian.PutUint64(reg[0:8], 0x9000000)
	binary.BigEndian.PutUint64(reg[8:16], 0x1000)
	b.prop("reg", reg)
	irqs := make([]byte, 4)
	binary.BigEndian.PutUint32(irqs, 33)
	b.prop("interrupts", irqs)
	b.endNode()
	b.endNode()
	blob := b.build()

	va := uintptr(unsafe.Pointer(&blob[0]))
	mgr := &fdt.Manager{}
	if err := mgr.Init(va); err != 0 {
		t.Fatalf("fdt Init: %v", err)
	}

	PopulateFromFDT(mgr)

	d, ok := FindByCompatible("arm,pl011")
	if !ok {
		t.Fatal("expected uart node to be registered")
	}
	if d.Type != defs.DevUART {
		t.Fatalf("expected DevUART classification, got %v", d.Type)
	}
	r, ok := GetResource(d, defs.ResMem, 0)
	if !ok || r.Start != 0x9000000 || r.Size != 0x1000 {
		t.Fatalf("unexpected mem resource %+v ok=%v", r, ok)
	}
	irq, ok := GetResource(d, defs.ResIRQ, 0)
	if !ok || irq.IRQNum != 33 {
		t.Fatalf("unexpected irq resource %+v ok=%v", irq, ok)
	}
}
