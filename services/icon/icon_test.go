package icon

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/meghashyamc/aleph/db/kvdb"
	"github.com/meghashyamc/aleph/logger"
	"github.com/stretchr/testify/require"
)

type chunk struct {
	name string
	data []byte
}

func buildICNS(chunks ...chunk) []byte {
	var body bytes.Buffer
	for _, c := range chunks {
		body.WriteString(c.name)
		binary.Write(&body, binary.BigEndian, uint32(len(c.data)+chunkHeaderLen))
		body.Write(c.data)
	}

	var out bytes.Buffer
	out.WriteString(icnsMagic)
	binary.Write(&out, binary.BigEndian, uint32(body.Len()+chunkHeaderLen))
	out.Write(body.Bytes())
	return out.Bytes()
}

func pngBytes(assert *require.Assertions, size int, c color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	assert.NoError(png.Encode(&buf, img))
	return buf.Bytes()
}

// packRuns encodes each plane as runs of one repeated byte.
func packRuns(planes ...[]byte) []byte {
	var out []byte
	for _, plane := range planes {
		for i := 0; i < len(plane); {
			n := 1
			for i+n < len(plane) && plane[i+n] == plane[i] && n < 130 {
				n++
			}
			if n >= 3 {
				out = append(out, byte(0x80+n-3), plane[i])
			} else {
				out = append(out, byte(n-1))
				out = append(out, plane[i:i+n]...)
			}
			i += n
		}
	}
	return out
}

func filled(n int, b byte) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func TestUnpackBits(t *testing.T) {
	assert := require.New(t)

	testCases := []struct {
		name     string
		data     []byte
		n        int
		expected []byte
		err      error
	}{
		{name: "Literal", data: []byte{2, 'a', 'b', 'c'}, n: 3, expected: []byte("abc")},
		{name: "Run", data: []byte{0x81, 'z'}, n: 4, expected: []byte("zzzz")},
		{name: "Mixed", data: []byte{0, 'a', 0x80, 'b'}, n: 4, expected: []byte("abbb")},
		{name: "StopsAtN", data: []byte{0x85, 'x'}, n: 5, expected: []byte("xxxxx")},
		{name: "TruncatedLiteral", data: []byte{4, 'a'}, n: 5, err: errTruncated},
		{name: "TruncatedRun", data: []byte{0x81}, n: 4, err: errTruncated},
		{name: "Empty", data: nil, n: 1, err: errTruncated},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			out, err := unpackBits(testCase.data, testCase.n)
			if testCase.err != nil {
				assert.True(errors.Is(err, testCase.err))
				return
			}
			assert.NoError(err)
			assert.Equal(testCase.expected, out)
		})
	}
}

func TestDecodeICNSPNGVariants(t *testing.T) {
	assert := require.New(t)

	data := buildICNS(
		chunk{name: "TOC ", data: []byte{0, 0, 0, 0}},
		chunk{name: "icp4", data: pngBytes(assert, 16, color.NRGBA{R: 255, A: 255})},
		chunk{name: "ic07", data: pngBytes(assert, 128, color.NRGBA{G: 255, A: 255})},
		chunk{name: "ic09", data: []byte{0, 0, 0, 0x0c, 'j', 'P', ' ', ' '}},
	)

	family, err := DecodeICNS(bytes.NewReader(data))
	assert.NoError(err)
	assert.Equal([]int{16, 128}, family.Sizes(), "jpeg 2000 and unknown chunks are skipped")

	img, size, ok := family.Best(preferredSizes...)
	assert.True(ok)
	assert.Equal(128, size)
	assert.Equal(128, img.Bounds().Dx())
}

func TestDecodeICNSFollowsPreferenceOrder(t *testing.T) {
	assert := require.New(t)

	data := buildICNS(
		chunk{name: "icp4", data: pngBytes(assert, 16, color.NRGBA{A: 255})},
		chunk{name: "icp5", data: pngBytes(assert, 32, color.NRGBA{A: 255})},
		chunk{name: "ic08", data: pngBytes(assert, 256, color.NRGBA{A: 255})},
	)

	family, err := DecodeICNS(bytes.NewReader(data))
	assert.NoError(err)

	_, size, ok := family.Best(preferredSizes...)
	assert.True(ok)
	assert.Equal(32, size)

	_, _, ok = family.Best(48)
	assert.False(ok)

	preferred, err := DecodeICNS(bytes.NewReader(data), preferredSizes...)
	assert.NoError(err)
	assert.Equal([]int{16, 32}, preferred.Sizes(), "sizes that are never picked are not decoded")

	_, err = DecodeICNS(bytes.NewReader(buildICNS(
		chunk{name: "ic08", data: pngBytes(assert, 256, color.NRGBA{A: 255})},
		chunk{name: "ic10", data: pngBytes(assert, 1024, color.NRGBA{A: 255})},
	)), preferredSizes...)
	assert.ErrorIs(err, ErrNoVariant)
}

func TestDecodeICNSLegacyRGBWithMask(t *testing.T) {
	assert := require.New(t)

	pixels := 16 * 16
	data := buildICNS(
		chunk{name: "is32", data: packRuns(filled(pixels, 200), filled(pixels, 100), filled(pixels, 50))},
		chunk{name: "s8mk", data: filled(pixels, 0x80)},
		chunk{name: "it32", data: append([]byte{0, 0, 0, 0}, packRuns(filled(128*128, 10), filled(128*128, 20), filled(128*128, 30))...)},
	)

	family, err := DecodeICNS(bytes.NewReader(data))
	assert.NoError(err)
	assert.Equal([]int{16, 128}, family.Sizes())

	small, _, ok := family.Best(16)
	assert.True(ok)
	assert.Equal(color.NRGBA{R: 200, G: 100, B: 50, A: 0x80}, small.(*image.NRGBA).NRGBAAt(3, 7))

	large, _, ok := family.Best(128)
	assert.True(ok)
	assert.Equal(color.NRGBA{R: 10, G: 20, B: 30, A: 0xff}, large.(*image.NRGBA).NRGBAAt(127, 127), "no mask means opaque")
}

func TestDecodeICNSARGB(t *testing.T) {
	assert := require.New(t)

	pixels := 32 * 32
	payload := append([]byte("ARGB"), packRuns(filled(pixels, 0x40), filled(pixels, 1), filled(pixels, 2), filled(pixels, 3))...)
	legacy := packRuns(filled(pixels, 9), filled(pixels, 9), filled(pixels, 9))

	family, err := DecodeICNS(bytes.NewReader(buildICNS(
		chunk{name: "il32", data: legacy},
		chunk{name: "ic05", data: payload},
	)))
	assert.NoError(err)

	img, _, ok := family.Best(32)
	assert.True(ok)
	assert.Equal(color.NRGBA{R: 1, G: 2, B: 3, A: 0x40}, img.(*image.NRGBA).NRGBAAt(0, 0), "argb wins over legacy rgb")
}

func TestDecodeICNSRejectsInvalidInput(t *testing.T) {
	assert := require.New(t)

	oversized := buildICNS(chunk{name: "icp4", data: []byte{1, 2, 3}})
	binary.BigEndian.PutUint32(oversized[4:8], uint32(len(oversized)+10))

	testCases := []struct {
		name string
		data []byte
		err  error
	}{
		{name: "Empty", data: nil, err: ErrNotICNS},
		{name: "WrongMagic", data: []byte("icnx\x00\x00\x00\x08"), err: ErrNotICNS},
		{name: "DeclaredLengthTooLong", data: oversized, err: ErrNotICNS},
		{name: "NoVariants", data: buildICNS(chunk{name: "TOC ", data: []byte{0}}), err: ErrNoVariant},
		{name: "CorruptPNG", data: buildICNS(chunk{name: "ic07", data: append(append([]byte(nil), pngSignature...), 1, 2, 3)}), err: ErrNoVariant},
		{name: "TruncatedRGB", data: buildICNS(chunk{name: "is32", data: []byte{0x81, 1}}), err: ErrNoVariant},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := DecodeICNS(bytes.NewReader(testCase.data))
			assert.True(errors.Is(err, testCase.err), "got %v", err)
		})
	}
}

func writeBundleIcon(assert *require.Assertions, bundle string, name string, data []byte) string {
	resources := filepath.Join(bundle, "Contents", "Resources")
	assert.NoError(os.MkdirAll(resources, 0755))
	path := filepath.Join(resources, name)
	assert.NoError(os.WriteFile(path, data, 0644))
	return path
}

func TestFindBundleIcon(t *testing.T) {
	assert := require.New(t)

	root := t.TempDir()

	conventional := filepath.Join(root, "Conventional.app")
	writeBundleIcon(assert, conventional, "zzz.icns", []byte("x"))
	expected := writeBundleIcon(assert, conventional, "icon.icns", []byte("x"))
	writeBundleIcon(assert, conventional, "app.icns", []byte("x"))
	path, ok := FindBundleIcon(conventional)
	assert.True(ok)
	assert.Equal(filepath.Join(filepath.Dir(expected), "app.icns"), path, "app.icns comes before icon.icns")

	primary := filepath.Join(root, "Primary.app")
	writeBundleIcon(assert, primary, "app.icns", []byte("x"))
	expected = writeBundleIcon(assert, primary, "AppIcon.icns", []byte("x"))
	path, ok = FindBundleIcon(primary)
	assert.True(ok)
	assert.Equal(expected, path)

	scanned := filepath.Join(root, "Scanned.app")
	writeBundleIcon(assert, scanned, "Info.plist", []byte("x"))
	expected = writeBundleIcon(assert, scanned, "Spotify.ICNS", []byte("x"))
	path, ok = FindBundleIcon(scanned)
	assert.True(ok)
	assert.Equal(expected, path)

	_, ok = FindBundleIcon(filepath.Join(root, "Missing.app"))
	assert.False(ok)
}

func decodeDataURI(assert *require.Assertions, uri string) image.Image {
	prefix := "data:image/png;base64,"
	assert.True(strings.HasPrefix(uri, prefix), uri)
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, prefix))
	assert.NoError(err)
	img, err := png.Decode(bytes.NewReader(raw))
	assert.NoError(err)
	return img
}

func TestResolverCachesDecodedIcon(t *testing.T) {
	assert := require.New(t)

	base := t.TempDir()
	db, err := kvdb.Open(logger.Discard(), filepath.Join(base, "state.db"))
	assert.NoError(err)
	t.Cleanup(func() { db.Close() })

	bundle := filepath.Join(base, "Applications", "Spotify.app")
	source := writeBundleIcon(assert, bundle, "AppIcon.icns", buildICNS(
		chunk{name: "ic12", data: pngBytes(assert, 64, color.NRGBA{B: 255, A: 255})},
		chunk{name: "ic07", data: pngBytes(assert, 128, color.NRGBA{R: 30, A: 255})},
	))

	cache := NewCache(logger.Discard(), filepath.Join(base, "icons"), db)
	resolver := NewResolver(logger.Discard(), cache)

	uri, ok := resolver.Resolve(bundle)
	assert.True(ok)
	assert.Equal(128, decodeDataURI(assert, uri).Bounds().Dx())

	again, ok := resolver.Resolve(bundle)
	assert.True(ok)
	assert.Equal(uri, again)
	assert.Equal(int64(1), resolver.decodes.Load(), "the second resolution reads the cached blob")

	fresh := NewResolver(logger.Discard(), NewCache(logger.Discard(), filepath.Join(base, "icons"), db))
	_, ok = fresh.Resolve(bundle)
	assert.True(ok)
	assert.Equal(int64(0), fresh.decodes.Load(), "the cache survives the resolver")

	recorded, err := cache.Source(CacheKey(source))
	assert.NoError(err)
	assert.Equal(source, recorded)

	leftovers, err := filepath.Glob(filepath.Join(base, "icons", "*.tmp"))
	assert.NoError(err)
	assert.Empty(leftovers)
}

func TestResolverWithoutDecodableIcon(t *testing.T) {
	assert := require.New(t)

	base := t.TempDir()
	resolver := NewResolver(logger.Discard(), NewCache(logger.Discard(), filepath.Join(base, "icons"), nil))

	broken := filepath.Join(base, "Broken.app")
	writeBundleIcon(assert, broken, "AppIcon.icns", []byte("not an icon"))
	_, ok := resolver.Resolve(broken)
	assert.False(ok)
	assert.Equal(ApplicationIcon(), resolver.IconFor(broken))

	bare := filepath.Join(base, "Bare.app")
	assert.NoError(os.MkdirAll(bare, 0755))
	assert.Equal(ApplicationIcon(), resolver.IconFor(bare))
}

func TestIconForFiles(t *testing.T) {
	assert := require.New(t)

	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.TXT")
	assert.NoError(os.WriteFile(notes, []byte("x"), 0644))
	resolver := NewResolver(logger.Discard(), nil)

	assert.Equal(CategoryIcon("txt"), resolver.IconFor(notes))
	assert.Equal(CategoryIcon(""), resolver.IconFor(filepath.Join(dir, "missing")))
	assert.False(IsExecutable(notes))

	if runtime.GOOS != "windows" {
		script := filepath.Join(dir, "deploy.sh")
		assert.NoError(os.WriteFile(script, []byte("#!/bin/sh\n"), 0755))
		assert.True(IsExecutable(script))
		assert.Equal(CategoryIcon("sh"), resolver.IconFor(script))
		assert.False(IsExecutable(dir), "directories are not executables")
	}
}

func TestCategoryFor(t *testing.T) {
	assert := require.New(t)

	testCases := []struct {
		extension string
		expected  Category
	}{
		{extension: "JPG", expected: CategoryImage},
		{extension: ".mkv", expected: CategoryVideo},
		{extension: "flac", expected: CategoryAudio},
		{extension: "7z", expected: CategoryArchive},
		{extension: "go", expected: CategoryCode},
		{extension: "pdf", expected: CategoryPDF},
		{extension: "md", expected: CategoryText},
		{extension: "xyz", expected: CategoryDefault},
		{extension: "", expected: CategoryDefault},
	}
	for _, testCase := range testCases {
		assert.Equal(testCase.expected, CategoryFor(testCase.extension), testCase.extension)
		assert.True(strings.HasPrefix(CategoryIcon(testCase.extension), "data:image/svg+xml;base64,"))
	}
	assert.NotEqual(CategoryIcon("pdf"), CategoryIcon("txt"))
}

func TestCachePruneForgetsRemovedContainers(t *testing.T) {
	assert := require.New(t)

	base := t.TempDir()
	db, err := kvdb.Open(logger.Discard(), filepath.Join(base, "state.db"))
	assert.NoError(err)
	t.Cleanup(func() { db.Close() })

	icns := buildICNS(chunk{name: "ic07", data: pngBytes(assert, 128, color.NRGBA{G: 200, A: 255})})
	kept := filepath.Join(base, "Applications", "Zed.app")
	writeBundleIcon(assert, kept, "AppIcon.icns", icns)
	uninstalled := filepath.Join(base, "Applications", "Spotify.app")
	uninstalledSource := writeBundleIcon(assert, uninstalled, "AppIcon.icns", icns)

	cache := NewCache(logger.Discard(), filepath.Join(base, "icons"), db)
	resolver := NewResolver(logger.Discard(), cache)
	for _, bundle := range []string{kept, uninstalled} {
		_, ok := resolver.Resolve(bundle)
		assert.True(ok)
	}

	assert.NoError(os.RemoveAll(uninstalled))
	removed, err := resolver.PruneCache()
	assert.NoError(err)
	assert.Equal(1, removed)

	_, ok := cache.Load(CacheKey(uninstalledSource))
	assert.False(ok)
	_, err = cache.Source(CacheKey(uninstalledSource))
	assert.True(errors.Is(err, kvdb.ErrNotFound))

	keys, err := db.GetAllKeys(kvdb.IconsBucket)
	assert.NoError(err)
	assert.Len(keys, 1)
}
