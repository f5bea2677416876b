package kmalloc

import "unsafe"

func ptrAt(va uintptr) unsafe.Pointer {
	return unsafe.Pointer(va)
}

func zero(va uintptr, n uintptr) {
	b := unsafe.Slice((*byte)(ptrAt(va)), int(n))
	for i := range b {
		b[i] = 0
	}
}

func copyBytes(dst, src uintptr, n uintptr) {
	d := unsafe.Slice((*byte)(ptrAt(dst)), int(n))
	s := unsafe.Slice((*byte)(ptrAt(src)), int(n))
	copy(d, s)
}
