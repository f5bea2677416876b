package driver

import (
	"testing"

	"defs"
	"device"
	"ustr"
)

func TestInitClassRunsInPriorityOrder(t *testing.T) {
	Reset()
	RegisterEntry(ClassUART, Driver{Name: "low", Priority: 1, Probe: func(*device.Device) int { return 0 }})
	RegisterEntry(ClassUART, Driver{Name: "high", Priority: 10, Probe: func(*device.Device) int { return 0 }})

	var order []string
	InitClass(ClassUART, func(d Driver) {
		order = append(order, d.Name)
		dd := d
		Register(ClassUART, &dd)
	})
	if len(order) != 2 || order[0] != "high" || order[1] != "low" {
		t.Fatalf("expected high-priority entry first, got %v", order)
	}
}

func TestProbeDeviceKeepsHighestScore(t *testing.T) {
	Reset()
	device.Reset()
	dev := device.Register("uart@9000000", ustr.MkUstrRoot().ExtendStr("uart@9000000"),
		[]ustr.Ustr{ustr.Ustr("arm,pl011")}, defs.DevUART, nil)

	var attached string
	weak := &Driver{Name: "generic", Priority: 1, Probe: func(*device.Device) int { return 1 },
		Attach: func(*device.Device) defs.Err_t { attached = "generic"; return 0 }}
	strong := &Driver{Name: "pl011", Priority: 5, Probe: func(*device.Device) int { return 10 },
		Attach: func(*device.Device) defs.Err_t { attached = "pl011"; return 0 }}
	Register(ClassUART, weak)
	Register(ClassUART, strong)

	if err := ProbeDevice(ClassUART, dev); err != 0 {
		t.Fatalf("ProbeDevice: %v", err)
	}
	if attached != "pl011" {
		t.Fatalf("expected the higher-scoring driver to attach, got %q", attached)
	}
}

func TestProbeDeviceNoMatchReturnsENODEV(t *testing.T) {
	Reset()
	device.Reset()
	dev := device.Register("misc@0", ustr.MkUstrRoot().ExtendStr("misc@0"), nil, defs.DevMisc, nil)
	Register(ClassUART, &Driver{Name: "pl011", Priority: 1, Probe: func(*device.Device) int { return 0 }})
	if err := ProbeDevice(ClassUART, dev); err != defs.ENODEV {
		t.Fatalf("expected ENODEV, got %v", err)
	}
}
