package core

import "sync"

type oidEntry struct {
	tag string
	obj interface{}
}

// Object ids are assigned by the host. allocate_oids fixes the table size;
// until then the table grows on demand.
var (
	oidMu    sync.Mutex
	oidTable = map[uint8]oidEntry{}
	oidCount int // 0 = not yet allocated
)

func allocateOIDs(count uint8) {
	oidMu.Lock()
	allocated := oidCount != 0
	if !allocated {
		oidCount = int(count)
	}
	oidMu.Unlock()
	if allocated {
		Shutdown("oids already allocated")
	}
}

// AllocOID creates the object for oid with factory and records it under
// tag (oid_alloc). Reusing an oid, an oid outside the allocated range or
// allocating after finalize_config is fatal.
func AllocOID(oid uint8, tag string, factory func() interface{}) interface{} {
	oidMu.Lock()
	_, used := oidTable[oid]
	bad := used || (oidCount != 0 && int(oid) >= oidCount) || IsConfigured()
	oidMu.Unlock()
	if bad {
		Shutdown("Can't assign oid")
	}

	obj := factory()
	oidMu.Lock()
	oidTable[oid] = oidEntry{tag: tag, obj: obj}
	oidMu.Unlock()
	return obj
}

// LookupOID returns the object for oid; the tag must match (oid_lookup)
func LookupOID(oid uint8, tag string) interface{} {
	oidMu.Lock()
	e, ok := oidTable[oid]
	oidMu.Unlock()
	if !ok || e.tag != tag {
		Shutdown("Invalid oid type")
	}
	return e.obj
}

// ForEachOID calls fn for every object with tag, in oid order
func ForEachOID(tag string, fn func(oid uint8, obj interface{})) {
	oidMu.Lock()
	type item struct {
		oid uint8
		obj interface{}
	}
	var items []item
	for i := 0; i < 256; i++ {
		if e, ok := oidTable[uint8(i)]; ok && e.tag == tag {
			items = append(items, item{uint8(i), e.obj})
		}
	}
	oidMu.Unlock()
	for _, it := range items {
		fn(it.oid, it.obj)
	}
}

func resetOIDs() {
	oidMu.Lock()
	oidTable = map[uint8]oidEntry{}
	oidCount = 0
	oidMu.Unlock()
}
