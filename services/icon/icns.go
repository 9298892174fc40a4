package icon

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"slices"
	"sort"
)

var (
	ErrNotICNS   = errors.New("not an icns container")
	ErrNoVariant = errors.New("no decodable icon variant")

	errTruncated = errors.New("truncated icon data")
)

const (
	icnsMagic      = "icns"
	chunkHeaderLen = 8
	maxICNSSize    = 32 << 20
)

var (
	pngSignature  = []byte("\x89PNG\r\n\x1a\n")
	argbSignature = []byte("ARGB")
)

type chunkFormat int

const (
	// PNG, or JPEG 2000 which is skipped
	formatEncoded chunkFormat = iota
	// "ARGB" followed by four run-length encoded planes
	formatARGB
	// three run-length encoded planes, alpha comes from a separate mask chunk
	formatRGB
	// one uncompressed 8-bit alpha plane
	formatMask
)

type chunkType struct {
	size   int
	format chunkFormat
}

var chunkTypes = map[string]chunkType{
	"icp4": {size: 16, format: formatEncoded},
	"icp5": {size: 32, format: formatEncoded},
	"icp6": {size: 64, format: formatEncoded},
	"ic07": {size: 128, format: formatEncoded},
	"ic08": {size: 256, format: formatEncoded},
	"ic09": {size: 512, format: formatEncoded},
	"ic10": {size: 1024, format: formatEncoded},
	"ic11": {size: 64, format: formatEncoded},
	"ic12": {size: 128, format: formatEncoded},
	"ic13": {size: 512, format: formatEncoded},
	"ic14": {size: 1024, format: formatEncoded},
	"ic04": {size: 16, format: formatARGB},
	"ic05": {size: 32, format: formatARGB},
	"is32": {size: 16, format: formatRGB},
	"il32": {size: 32, format: formatRGB},
	"ih32": {size: 48, format: formatRGB},
	"it32": {size: 128, format: formatRGB},
	"s8mk": {size: 16, format: formatMask},
	"l8mk": {size: 32, format: formatMask},
	"h8mk": {size: 48, format: formatMask},
	"t8mk": {size: 128, format: formatMask},
}

// Family is the set of raster variants decoded from one icns container, keyed by pixel width.
type Family struct {
	variants map[int]variant
}

type variant struct {
	image   image.Image
	quality chunkFormat
}

// Best returns the first of sizes the family has a variant for.
func (f *Family) Best(sizes ...int) (image.Image, int, bool) {
	for _, size := range sizes {
		if v, ok := f.variants[size]; ok {
			return v.image, size, true
		}
	}
	return nil, 0, false
}

// Sizes lists the available variant widths in ascending order.
func (f *Family) Sizes() []int {
	sizes := make([]int, 0, len(f.variants))
	for size := range f.variants {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)
	return sizes
}

// add keeps the higher quality variant when two chunks decode to the same size.
// Lower chunkFormat values are preferred.
func (f *Family) add(img image.Image, quality chunkFormat) {
	bounds := img.Bounds()
	if bounds.Dx() != bounds.Dy() || bounds.Dx() == 0 {
		return
	}
	if existing, ok := f.variants[bounds.Dx()]; ok && existing.quality <= quality {
		return
	}
	f.variants[bounds.Dx()] = variant{image: img, quality: quality}
}

// DecodeICNS parses an icns container and decodes the raster variants it understands. When sizes
// are given, chunks of other pixel sizes are not decoded at all. Chunks that fail to decode are
// skipped; ErrNoVariant is returned when none are left.
func DecodeICNS(r io.Reader, sizes ...int) (*Family, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxICNSSize+1))
	if err != nil {
		return nil, fmt.Errorf("could not read icns data: %w", err)
	}
	if len(data) > maxICNSSize {
		return nil, fmt.Errorf("%w: container larger than %d bytes", ErrNotICNS, maxICNSSize)
	}
	if len(data) < chunkHeaderLen || string(data[:4]) != icnsMagic {
		return nil, ErrNotICNS
	}

	total := int(binary.BigEndian.Uint32(data[4:8]))
	if total < chunkHeaderLen || total > len(data) {
		return nil, fmt.Errorf("%w: declared length %d, have %d bytes", ErrNotICNS, total, len(data))
	}

	family := &Family{variants: make(map[int]variant)}
	rgb := make(map[int]*image.NRGBA)
	masks := make(map[int][]byte)

	for offset := chunkHeaderLen; offset+chunkHeaderLen <= total; {
		name := string(data[offset : offset+4])
		length := int(binary.BigEndian.Uint32(data[offset+4 : offset+8]))
		if length < chunkHeaderLen || offset+length > total {
			break
		}
		payload := data[offset+chunkHeaderLen : offset+length]
		offset += length

		chunk, known := chunkTypes[name]
		if !known || (len(sizes) > 0 && !slices.Contains(sizes, chunk.size)) {
			continue
		}

		switch chunk.format {
		case formatEncoded:
			if img, err := decodeEncoded(payload, chunk.size); err == nil {
				family.add(img, formatEncoded)
			}
		case formatARGB:
			if img, err := decodeEncoded(payload, chunk.size); err == nil {
				family.add(img, formatARGB)
			}
		case formatRGB:
			if name == "it32" && len(payload) >= 4 {
				payload = payload[4:]
			}
			if img, err := decodeRGB(payload, chunk.size); err == nil {
				rgb[chunk.size] = img
			}
		case formatMask:
			if len(payload) == chunk.size*chunk.size {
				masks[chunk.size] = payload
			}
		}
	}

	for size, img := range rgb {
		if mask, ok := masks[size]; ok {
			applyMask(img, mask)
		}
		family.add(img, formatRGB)
	}

	if len(family.variants) == 0 {
		return nil, ErrNoVariant
	}
	return family, nil
}

func decodeEncoded(payload []byte, size int) (image.Image, error) {
	switch {
	case bytes.HasPrefix(payload, pngSignature):
		return png.Decode(bytes.NewReader(payload))
	case bytes.HasPrefix(payload, argbSignature):
		return decodeARGB(payload[len(argbSignature):], size)
	default:
		return nil, errors.New("unsupported icon encoding")
	}
}

func decodeARGB(payload []byte, size int) (image.Image, error) {
	pixels := size * size
	planes, err := unpackBits(payload, 4*pixels)
	if err != nil {
		return nil, err
	}

	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < pixels; i++ {
		img.SetNRGBA(i%size, i/size, color.NRGBA{
			A: planes[i],
			R: planes[pixels+i],
			G: planes[2*pixels+i],
			B: planes[3*pixels+i],
		})
	}
	return img, nil
}

func decodeRGB(payload []byte, size int) (*image.NRGBA, error) {
	pixels := size * size
	planes, err := unpackBits(payload, 3*pixels)
	if err != nil {
		return nil, err
	}

	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < pixels; i++ {
		img.SetNRGBA(i%size, i/size, color.NRGBA{
			R: planes[i],
			G: planes[pixels+i],
			B: planes[2*pixels+i],
			A: 0xff,
		})
	}
	return img, nil
}

func applyMask(img *image.NRGBA, mask []byte) {
	for i, alpha := range mask {
		img.Pix[i*4+3] = alpha
	}
}

// unpackBits expands the icns flavour of PackBits until n bytes are produced. A header byte below
// 0x80 is followed by header+1 literal bytes; any other header repeats the next byte header-0x80+3
// times.
func unpackBits(data []byte, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for i := 0; len(out) < n; {
		if i >= len(data) {
			return nil, errTruncated
		}
		header := int(data[i])
		i++

		if header < 0x80 {
			count := header + 1
			if i+count > len(data) {
				return nil, errTruncated
			}
			out = append(out, data[i:i+count]...)
			i += count
			continue
		}

		if i >= len(data) {
			return nil, errTruncated
		}
		for count := header - 0x80 + 3; count > 0; count-- {
			out = append(out, data[i])
		}
		i++
	}
	return out[:n], nil
}
