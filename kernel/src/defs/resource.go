package defs

// ResType enumerates the kinds of resource a device node can carry (§3
// Resource, §4.10).
type ResType int

const (
	ResMem ResType = iota
	ResIO
	ResIRQ
	ResDMA
	ResBus
	ResClock
	ResPower
	ResReset
)

// ResFlag is a small attribute bitset carried alongside a resource, e.g.
// whether a MEM resource is prefetchable or an IRQ resource's trigger is
// already known from the reg entry rather than from the interrupts cells.
type ResFlag uint32

const (
	ResFlagNone       ResFlag = 0
	ResFlagReadOnly   ResFlag = 1 << 0
	ResFlagPrefetch   ResFlag = 1 << 1
	ResFlagSharedIRQ  ResFlag = 1 << 2
	ResFlagActiveLow  ResFlag = 1 << 3
)
