package slots

// None is returned by SelectReadSlot when no slot holds a valid record.
const None = -1

// Entry is what the allocator needs to know about one slot.
type Entry struct {
	Valid   bool   // Header carries the magic number
	Edition uint32 // Edition stored in the slot, meaningful when Valid
}

// SelectWriteSlot picks the slot for the next edition: the first empty slot,
// otherwise the slot holding the oldest edition. Ties go to the lowest index.
func SelectWriteSlot(entries []Entry) int {
	best := 0
	for slot, e := range entries {
		if !e.Valid {
			return slot
		}
		if e.Edition < entries[best].Edition {
			best = slot
		}
	}
	return best
}

// SelectReadSlot returns the valid slot holding the newest edition, or None.
func SelectReadSlot(entries []Entry) int {
	newest := None
	for slot, e := range entries {
		if !e.Valid {
			continue
		}
		if newest == None || e.Edition > entries[newest].Edition {
			newest = slot
		}
	}
	return newest
}
