// Command dtbinfo validates a flattened device-tree blob and prints the
// device tree package device would build from it at boot, so a DTB can be
// sanity-checked before it is burned into a QEMU invocation. It is a
// host-side tool only: it links against fdt and device directly and never
// runs as part of the kernel boot path.
package main

import (
	"fmt"
	"os"
	"strings"
	"unsafe"

	flags "github.com/jessevdk/go-flags"

	"defs"
	"device"
	"fdt"
)

type options struct {
	Verbose bool `short:"v" long:"verbose" description:"print every property under every node, not just the summary tree"`
	Args    struct {
		DTB string `positional-arg-name:"dtb" description:"path to the device-tree blob"`
	} `positional-args:"yes" required:"yes"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		os.Exit(1)
	}

	blob, err := os.ReadFile(opts.Args.DTB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dtbinfo: %v\n", err)
		os.Exit(1)
	}
	if len(blob) == 0 {
		fmt.Fprintln(os.Stderr, "dtbinfo: empty file")
		os.Exit(1)
	}

	mgr := &fdt.Manager{}
	// fdt.Manager.Init dereferences a "physical" address directly; on a
	// host this is simply the address of our own loaded buffer, which we
	// keep alive for mgr's entire lifetime.
	addr := uintptr(unsafe.Pointer(&blob[0]))
	if errno := mgr.Init(addr); errno != 0 {
		fmt.Fprintf(os.Stderr, "dtbinfo: invalid blob: %v\n", errno)
		os.Exit(1)
	}
	if !mgr.VerifyIntegrity() {
		fmt.Fprintln(os.Stderr, "dtbinfo: integrity check failed")
		os.Exit(1)
	}

	fmt.Printf("dtb: %d bytes, phys base reported as %#x\n", mgr.GetSize(), mgr.GetPhys())

	if opts.Verbose {
		dumpRaw(mgr)
	}

	device.Reset()
	device.PopulateFromFDT(mgr)
	fmt.Println("device tree:")
	device.PrintTree(nil, 0, func(d *device.Device, depth int) {
		fmt.Printf("%s%s [%s] compatible=%s\n", strings.Repeat("  ", depth), d.Name, devTypeName(d.Type), joinCompatible(d))
		for _, r := range d.Resources {
			if r.Type == defs.ResMem {
				fmt.Printf("%s  mem 0x%x..0x%x\n", strings.Repeat("  ", depth), r.Start, r.Start+r.Size)
			} else {
				fmt.Printf("%s  irq %d\n", strings.Repeat("  ", depth), r.IRQNum)
			}
		}
	})

	if mem, ok := findMemory(mgr); ok {
		fmt.Printf("memory: %+v\n", mem)
	}
}

func dumpRaw(mgr *fdt.Manager) {
	fmt.Println("raw nodes:")
	mgr.Walk(
		func(n fdt.Node) { fmt.Printf("  node %s\n", n.Path) },
		func(n fdt.Node, p fdt.Prop) { fmt.Printf("    %s = %v\n", p.Name, p.Value) },
	)
}

func joinCompatible(d *device.Device) string {
	parts := make([]string, len(d.Compatible))
	for i, c := range d.Compatible {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func devTypeName(t defs.DevType) string {
	switch t {
	case defs.DevCPU:
		return "cpu"
	case defs.DevIRQChip:
		return "irqchip"
	case defs.DevUART:
		return "uart"
	case defs.DevTimer:
		return "timer"
	case defs.DevBus:
		return "bus"
	default:
		return "unknown"
	}
}

func findMemory(mgr *fdt.Manager) (defs.MemoryInfo, bool) {
	mi := mgr.GetMemoryInfo()
	return mi, len(mi.Banks) > 0
}
