package raster

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/tiff/lzw"

	"go.ngs.io/antgrid/internal/grid"
)

// TIFF and GeoTIFF tags used by the reader.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagPredictor       = 317
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	tagGDALNoData      = 42113

	geoKeyRasterType = 1025
	rasterPixelPoint = 2
)

const (
	compressionNone        = 1
	compressionLZW         = 5
	compressionDeflate     = 8
	compressionDeflateOld  = 32946
	predictorNone          = 1
	predictorHorizontal    = 2
	predictorFloatingPoint = 3
	sampleUint             = 1
	sampleInt              = 2
	sampleFloat            = 3
)

var errNotTIFF = errors.New("not a TIFF file")

type tiffEntry struct {
	typ   uint16
	count uint32
	data  []byte
}

// tiffImage is the decoded layout of the first IFD.
type tiffImage struct {
	bo            binary.ByteOrder
	width, height int
	bps, spp      int
	format        int
	compression   int
	predictor     int
	chunkW        int
	chunkH        int
	tiled         bool
	offsets       []uint64
	counts        []uint64
}

// ReadGeoTIFF loads band 1 of a single-image GeoTIFF. Rows are flipped so Y
// ascends and node coordinates are pixel centres for area rasters.
func ReadGeoTIFF(path string) (*grid.Grid, error) {
	//nolint:gosec // G304: path comes from the dataset cache.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoTIFF: %w", err)
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat GeoTIFF: %w", err)
	}
	return DecodeGeoTIFF(f, st.Size())
}

// DecodeGeoTIFF reads a GeoTIFF of the given size from r.
func DecodeGeoTIFF(r io.ReaderAt, size int64) (*grid.Grid, error) {
	hdr := make([]byte, 8)
	if _, err := r.ReadAt(hdr, 0); err != nil {
		return nil, fmt.Errorf("read TIFF header: %w", err)
	}

	var bo binary.ByteOrder
	switch string(hdr[:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, errNotTIFF
	}
	switch bo.Uint16(hdr[2:4]) {
	case 42:
	case 43:
		return nil, errors.New("BigTIFF is not supported")
	default:
		return nil, errNotTIFF
	}

	tags, err := readIFD(r, bo, int64(bo.Uint32(hdr[4:8])), size)
	if err != nil {
		return nil, err
	}

	img, err := layout(tags, bo)
	if err != nil {
		return nil, err
	}
	pixels, err := img.decode(r, size)
	if err != nil {
		return nil, err
	}

	xs, ys, err := georeference(tags, bo, img.width, img.height)
	if err != nil {
		return nil, err
	}

	nodata, hasNodata := noData(tags)
	g := &grid.Grid{CRS: grid.EPSG3031, X: xs, Y: ys, Values: make([][]float64, img.height)}
	if hasNodata {
		for k, v := range pixels {
			if isNoData(v, nodata, img) {
				pixels[k] = math.NaN()
			}
		}
	}
	// Rows share the decoded buffer. Row 0 of the image is the northern edge.
	for i := range g.Values {
		lo := (img.height - 1 - i) * img.width
		g.Values[i] = pixels[lo : lo+img.width : lo+img.width]
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid: %w", err)
	}
	return g, nil
}

func readIFD(r io.ReaderAt, bo binary.ByteOrder, off, size int64) (map[uint16]tiffEntry, error) {
	if off <= 0 || off+2 > size {
		return nil, fmt.Errorf("IFD offset %d out of range", off)
	}
	buf := make([]byte, 2)
	if _, err := r.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("read IFD: %w", err)
	}
	n := int64(bo.Uint16(buf))
	raw := make([]byte, 12*n)
	if _, err := r.ReadAt(raw, off+2); err != nil {
		return nil, fmt.Errorf("read IFD entries: %w", err)
	}

	tags := make(map[uint16]tiffEntry, n)
	for i := int64(0); i < n; i++ {
		e := raw[i*12 : (i+1)*12]
		tag := bo.Uint16(e[0:2])
		typ := bo.Uint16(e[2:4])
		count := bo.Uint32(e[4:8])

		width := typeSize(typ)
		if width == 0 {
			continue
		}
		length := int64(width) * int64(count)
		var data []byte
		if length <= 4 {
			data = append([]byte(nil), e[8:8+length]...)
		} else {
			at := int64(bo.Uint32(e[8:12]))
			if at+length > size {
				return nil, fmt.Errorf("tag %d data out of range", tag)
			}
			data = make([]byte, length)
			if _, err := r.ReadAt(data, at); err != nil {
				return nil, fmt.Errorf("read tag %d: %w", tag, err)
			}
		}
		tags[tag] = tiffEntry{typ: typ, count: count, data: data}
	}
	return tags, nil
}

func typeSize(typ uint16) int {
	switch typ {
	case 1, 2, 6, 7: // BYTE, ASCII, SBYTE, UNDEFINED
		return 1
	case 3, 8: // SHORT, SSHORT
		return 2
	case 4, 9, 11: // LONG, SLONG, FLOAT
		return 4
	case 5, 10, 12, 16: // RATIONAL, SRATIONAL, DOUBLE, LONG8
		return 8
	}
	return 0
}

func (e tiffEntry) uints(bo binary.ByteOrder) []uint64 {
	out := make([]uint64, 0, e.count)
	for i := 0; i < int(e.count); i++ {
		switch e.typ {
		case 1, 7:
			out = append(out, uint64(e.data[i]))
		case 3:
			out = append(out, uint64(bo.Uint16(e.data[2*i:])))
		case 4:
			out = append(out, uint64(bo.Uint32(e.data[4*i:])))
		case 16:
			out = append(out, bo.Uint64(e.data[8*i:]))
		}
	}
	return out
}

func (e tiffEntry) floats(bo binary.ByteOrder) []float64 {
	if e.typ == 12 {
		out := make([]float64, e.count)
		for i := range out {
			out[i] = math.Float64frombits(bo.Uint64(e.data[8*i:]))
		}
		return out
	}
	if e.typ == 11 {
		out := make([]float64, e.count)
		for i := range out {
			out[i] = float64(math.Float32frombits(bo.Uint32(e.data[4*i:])))
		}
		return out
	}
	u := e.uints(bo)
	out := make([]float64, len(u))
	for i, v := range u {
		out[i] = float64(v)
	}
	return out
}

func first(tags map[uint16]tiffEntry, bo binary.ByteOrder, tag uint16, def int) int {
	e, ok := tags[tag]
	if !ok {
		return def
	}
	v := e.uints(bo)
	if len(v) == 0 {
		return def
	}
	return int(v[0])
}

//nolint:gocyclo // One check per tag.
func layout(tags map[uint16]tiffEntry, bo binary.ByteOrder) (*tiffImage, error) {
	img := &tiffImage{
		bo:          bo,
		width:       first(tags, bo, tagImageWidth, 0),
		height:      first(tags, bo, tagImageLength, 0),
		bps:         first(tags, bo, tagBitsPerSample, 1),
		spp:         first(tags, bo, tagSamplesPerPixel, 1),
		format:      first(tags, bo, tagSampleFormat, sampleUint),
		compression: first(tags, bo, tagCompression, compressionNone),
		predictor:   first(tags, bo, tagPredictor, predictorNone),
	}
	if img.width <= 0 || img.height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", img.width, img.height)
	}

	switch img.bps {
	case 8, 16, 32, 64:
	default:
		return nil, fmt.Errorf("unsupported bits per sample %d", img.bps)
	}
	if img.format == sampleFloat && img.bps != 32 && img.bps != 64 {
		return nil, fmt.Errorf("unsupported float width %d", img.bps)
	}
	switch img.compression {
	case compressionNone, compressionLZW, compressionDeflate, compressionDeflateOld:
	default:
		return nil, fmt.Errorf("unsupported compression %d", img.compression)
	}

	if _, ok := tags[tagTileWidth]; ok {
		img.tiled = true
		img.chunkW = first(tags, bo, tagTileWidth, 0)
		img.chunkH = first(tags, bo, tagTileLength, 0)
		img.offsets = tags[tagTileOffsets].uints(bo)
		img.counts = tags[tagTileByteCounts].uints(bo)
	} else {
		img.chunkW = img.width
		img.chunkH = first(tags, bo, tagRowsPerStrip, img.height)
		if img.chunkH > img.height {
			img.chunkH = img.height
		}
		img.offsets = tags[tagStripOffsets].uints(bo)
		img.counts = tags[tagStripByteCounts].uints(bo)
	}
	if img.chunkW <= 0 || img.chunkH <= 0 {
		return nil, fmt.Errorf("invalid chunk size %dx%d", img.chunkW, img.chunkH)
	}

	// Separate planes store band 1 in the leading chunks.
	if first(tags, bo, tagPlanarConfig, 1) == 2 {
		img.spp = 1
	}

	n := img.chunksAcross() * img.chunksDown()
	if len(img.offsets) < n || len(img.counts) < n {
		return nil, fmt.Errorf("expected %d chunks, have %d offsets and %d byte counts", n, len(img.offsets), len(img.counts))
	}
	return img, nil
}

func (img *tiffImage) chunksAcross() int { return (img.width + img.chunkW - 1) / img.chunkW }
func (img *tiffImage) chunksDown() int   { return (img.height + img.chunkH - 1) / img.chunkH }

// decode returns band 1 in image row order.
func (img *tiffImage) decode(r io.ReaderAt, size int64) ([]float64, error) {
	sampleBytes := img.bps / 8
	pixelBytes := sampleBytes * img.spp
	rowBytes := img.chunkW * pixelBytes
	across := img.chunksAcross()

	out := make([]float64, img.width*img.height)
	for c := 0; c < across*img.chunksDown(); c++ {
		off, n := int64(img.offsets[c]), int64(img.counts[c])
		if off+n > size {
			return nil, fmt.Errorf("chunk %d out of range", c)
		}
		raw := make([]byte, n)
		if _, err := r.ReadAt(raw, off); err != nil {
			return nil, fmt.Errorf("read chunk %d: %w", c, err)
		}
		data, err := img.decompress(raw)
		if err != nil {
			return nil, fmt.Errorf("decompress chunk %d: %w", c, err)
		}

		cx, cy := (c%across)*img.chunkW, (c/across)*img.chunkH
		rows := img.chunkH
		if !img.tiled && cy+rows > img.height {
			rows = img.height - cy
		}
		if len(data) < rows*rowBytes {
			return nil, fmt.Errorf("chunk %d truncated: %d bytes, want %d", c, len(data), rows*rowBytes)
		}
		data = data[:rows*rowBytes]

		switch img.predictor {
		case predictorNone:
		case predictorHorizontal:
			undoHorizontal(data, rowBytes, sampleBytes, img.spp, img.bo)
		case predictorFloatingPoint:
			undoFloatingPoint(data, rowBytes, sampleBytes, img.spp, img.bo)
		default:
			return nil, fmt.Errorf("unsupported predictor %d", img.predictor)
		}

		for y := 0; y < rows && cy+y < img.height; y++ {
			for x := 0; x < img.chunkW && cx+x < img.width; x++ {
				at := y*rowBytes + x*pixelBytes
				out[(cy+y)*img.width+cx+x] = img.sample(data[at : at+sampleBytes])
			}
		}
	}
	return out, nil
}

func (img *tiffImage) decompress(raw []byte) ([]byte, error) {
	switch img.compression {
	case compressionLZW:
		rc := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		defer func() { _ = rc.Close() }()
		return io.ReadAll(rc)
	case compressionDeflate, compressionDeflateOld:
		rc, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer func() { _ = rc.Close() }()
		return io.ReadAll(rc)
	default:
		return raw, nil
	}
}

func (img *tiffImage) sample(b []byte) float64 {
	bo := img.bo
	switch img.format {
	case sampleFloat:
		if img.bps == 32 {
			return float64(math.Float32frombits(bo.Uint32(b)))
		}
		return math.Float64frombits(bo.Uint64(b))
	case sampleInt:
		switch img.bps {
		case 8:
			return float64(int8(b[0]))
		case 16:
			return float64(int16(bo.Uint16(b)))
		case 32:
			return float64(int32(bo.Uint32(b)))
		default:
			return float64(int64(bo.Uint64(b)))
		}
	default:
		switch img.bps {
		case 8:
			return float64(b[0])
		case 16:
			return float64(bo.Uint16(b))
		case 32:
			return float64(bo.Uint32(b))
		default:
			return float64(bo.Uint64(b))
		}
	}
}

// undoHorizontal reverses TIFF predictor 2 in place.
func undoHorizontal(data []byte, rowBytes, size, spp int, bo binary.ByteOrder) {
	stride := size * spp
	for start := 0; start+rowBytes <= len(data); start += rowBytes {
		line := data[start : start+rowBytes]
		for i := stride; i+size <= len(line); i += size {
			switch size {
			case 1:
				line[i] += line[i-stride]
			case 2:
				bo.PutUint16(line[i:], bo.Uint16(line[i:])+bo.Uint16(line[i-stride:]))
			case 4:
				bo.PutUint32(line[i:], bo.Uint32(line[i:])+bo.Uint32(line[i-stride:]))
			case 8:
				bo.PutUint64(line[i:], bo.Uint64(line[i:])+bo.Uint64(line[i-stride:]))
			}
		}
	}
}

// undoFloatingPoint reverses TIFF predictor 3: bytes are delta coded across
// the row and stored most significant plane first.
func undoFloatingPoint(data []byte, rowBytes, size, spp int, bo binary.ByteOrder) {
	tmp := make([]byte, rowBytes)
	samples := rowBytes / size
	for start := 0; start+rowBytes <= len(data); start += rowBytes {
		line := data[start : start+rowBytes]
		for i := spp; i < len(line); i++ {
			line[i] += line[i-spp]
		}
		copy(tmp, line)
		for s := 0; s < samples; s++ {
			for b := 0; b < size; b++ {
				plane := tmp[b*samples+s]
				if bo == binary.ByteOrder(binary.LittleEndian) {
					line[s*size+size-1-b] = plane
				} else {
					line[s*size+b] = plane
				}
			}
		}
	}
}

func georeference(tags map[uint16]tiffEntry, bo binary.ByteOrder, w, h int) (xs, ys []float64, err error) {
	scaleTag, ok1 := tags[tagModelPixelScale]
	tieTag, ok2 := tags[tagModelTiepoint]
	if !ok1 || !ok2 {
		return nil, nil, errors.New("missing GeoTIFF pixel scale or tiepoint")
	}
	scale := scaleTag.floats(bo)
	tie := tieTag.floats(bo)
	if len(scale) < 2 || len(tie) < 6 {
		return nil, nil, errors.New("malformed GeoTIFF pixel scale or tiepoint")
	}
	sx, sy := scale[0], scale[1]
	if sx <= 0 || sy <= 0 {
		return nil, nil, fmt.Errorf("invalid pixel scale (%g, %g)", sx, sy)
	}

	left := tie[3] - tie[0]*sx
	top := tie[4] + tie[1]*sy
	if !pixelIsPoint(tags, bo) {
		left += sx / 2
		top -= sy / 2
	}

	xs = make([]float64, w)
	for j := range xs {
		xs[j] = left + float64(j)*sx
	}
	ys = make([]float64, h)
	for i := range ys {
		ys[i] = top - float64(h-1-i)*sy
	}
	return xs, ys, nil
}

func pixelIsPoint(tags map[uint16]tiffEntry, bo binary.ByteOrder) bool {
	e, ok := tags[tagGeoKeyDirectory]
	if !ok {
		return false
	}
	keys := e.uints(bo)
	if len(keys) < 4 {
		return false
	}
	n := int(keys[3])
	for k := 0; k < n && 4+4*k+3 < len(keys); k++ {
		entry := keys[4+4*k : 8+4*k]
		if entry[0] == geoKeyRasterType && entry[1] == 0 {
			return entry[3] == rasterPixelPoint
		}
	}
	return false
}

func noData(tags map[uint16]tiffEntry) (float64, bool) {
	e, ok := tags[tagGDALNoData]
	if !ok {
		return 0, false
	}
	s := strings.TrimSpace(strings.TrimRight(string(e.data), "\x00"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isNoData(v, nodata float64, img *tiffImage) bool {
	if v == nodata {
		return true
	}
	if img.format == sampleFloat && img.bps == 32 {
		return v == float64(float32(nodata))
	}
	return false
}
