package binding

import (
	"slices"
	"unsafe"

	"fortio.org/safecast"

	"hdlbind/internal/errors"
	"hdlbind/internal/ports"
)

// readWide fills a fresh buffer of exactly the port's word count. Bits above
// the logical width in the last word are whatever the model left there.
func readWide(pa *portAccess, model unsafe.Pointer) ([]uint32, error) {
	buf := make([]uint32, pa.port.Class().Words())
	if err := readWideInto(pa, model, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// readWideInto requires len(buf) == word count; callers validate first.
func readWideInto(pa *portAccess, model unsafe.Pointer, buf []uint32) error {
	n, err := safecast.Conv[uintptr](len(buf))
	if err != nil {
		return err
	}
	pa.getWide(model, unsafe.SliceData(buf), n)
	return nil
}

// checkWideShape rejects word sequences that are not exactly the port's word count.
func checkWideShape(module string, pa *portAccess, n int) error {
	if want := pa.port.Class().Words(); n != want {
		return errors.ValueShape(module, pa.port.Name(), want, n)
	}
	return nil
}

// writeWide validates the length before invoking the set entry point; a
// mismatch is never truncated or padded. A last word with bits above the
// port's width is cleared on a copy, leaving the caller's words untouched.
func writeWide(module string, pa *portAccess, model unsafe.Pointer, words []uint32) error {
	if err := checkWideShape(module, pa, len(words)); err != nil {
		return err
	}
	if rem := pa.port.Width() % ports.WordBits; rem != 0 {
		last := len(words) - 1
		if clean := words[last] & (1<<rem - 1); clean != words[last] {
			words = slices.Clone(words)
			words[last] = clean
		}
	}
	n, err := safecast.Conv[uintptr](len(words))
	if err != nil {
		return err
	}
	pa.setWide(model, unsafe.SliceData(words), n)
	return nil
}
