// Package containerimage splits a multi-page container image (spec §4.3:
// "multi-page container images") into one image.Image per page. The
// standard library's image package, and golang.org/x/image/tiff, only ever
// decode the first IFD ("image file directory") of a TIFF; neither exposes
// the page count or a way to select page N. This package walks the TIFF IFD
// chain itself to find every page's offset, then hands a patched,
// single-IFD copy of the file to x/image/tiff for the actual pixel decode,
// so the real decode work still goes through the ecosystem codec rather
// than a hand-rolled one.
package containerimage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"

	"golang.org/x/image/tiff"
)

var (
	leHeader = []byte("II")
	beHeader = []byte("MM")
)

// Split decodes every page of a TIFF container image and returns them in
// page order (page 0 first). A zero-length result with a nil error never
// happens: an empty page list is always reported as an error so callers can
// treat "zero pages after decode" as the permanent failure spec §4.3 calls
// for.
func Split(data []byte) ([]image.Image, error) {
	offsets, order, err := ifdOffsets(data)
	if err != nil {
		return nil, err
	}
	if len(offsets) == 0 {
		return nil, fmt.Errorf("containerimage: no pages found")
	}
	pages := make([]image.Image, 0, len(offsets))
	for _, off := range offsets {
		img, err := decodePage(data, off, order)
		if err != nil {
			return nil, fmt.Errorf("containerimage: decode page at IFD offset %d: %w", off, err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}

// ifdOffsets walks the TIFF IFD chain starting at the header's first-IFD
// pointer, returning every IFD's byte offset in file order.
func ifdOffsets(data []byte) ([]uint32, binary.ByteOrder, error) {
	if len(data) < 8 {
		return nil, nil, fmt.Errorf("containerimage: file too short to be TIFF")
	}
	var order binary.ByteOrder
	switch {
	case bytes.Equal(data[0:2], leHeader):
		order = binary.LittleEndian
	case bytes.Equal(data[0:2], beHeader):
		order = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("containerimage: not a TIFF byte-order marker %q", data[0:2])
	}
	if magic := order.Uint16(data[2:4]); magic != 42 {
		return nil, nil, fmt.Errorf("containerimage: bad TIFF magic %d", magic)
	}

	var offsets []uint32
	next := order.Uint32(data[4:8])
	seen := make(map[uint32]bool)
	for next != 0 {
		if int(next)+2 > len(data) || seen[next] {
			return nil, nil, fmt.Errorf("containerimage: malformed or cyclic IFD chain at offset %d", next)
		}
		seen[next] = true
		offsets = append(offsets, next)

		entryCount := int(order.Uint16(data[next : next+2]))
		nextFieldOff := int(next) + 2 + entryCount*12
		if nextFieldOff+4 > len(data) {
			return nil, nil, fmt.Errorf("containerimage: IFD at offset %d runs past end of file", next)
		}
		next = order.Uint32(data[nextFieldOff : nextFieldOff+4])
	}
	return offsets, order, nil
}

// decodePage produces a self-contained single-page TIFF by pointing the
// header at ifdOffset and terminating that IFD's chain, then decodes it
// with the standard x/image/tiff codec. The original bytes are never
// mutated; decodePage works on a copy.
func decodePage(data []byte, ifdOffset uint32, order binary.ByteOrder) (image.Image, error) {
	patched := make([]byte, len(data))
	copy(patched, data)

	order.PutUint32(patched[4:8], ifdOffset)

	entryCount := int(order.Uint16(patched[ifdOffset : ifdOffset+2]))
	nextFieldOff := int(ifdOffset) + 2 + entryCount*12
	order.PutUint32(patched[nextFieldOff:nextFieldOff+4], 0)

	return tiff.Decode(bytes.NewReader(patched))
}
