// Package nifti reads and writes single-file NIfTI-1 volumes (.nii and
// .nii.gz). It covers exactly what the frequency-map pipeline needs:
// scalar volumes in the common datatypes, and 5-D vector volumes used to
// store voxel displacement fields.
//
// Header layout follows the official nifti1.h definition,
// https://nifti.nimh.nih.gov/pub/dist/src/niftilib/nifti1.h
package nifti

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/yw7/sc-lesion-frequency-map/pkg/volume"
)

// NIfTI-1 datatype codes (DT_* in nifti1.h).
const (
	dtUint8   = 2
	dtInt16   = 4
	dtInt32   = 8
	dtFloat32 = 16
	dtFloat64 = 64
)

const (
	headerSize    = 348
	dataOffset    = 352 // header + 4-byte empty extension field
	magicSingle   = "n+1\x00"
	vectorNDim    = 5
	vectorNVector = 3
)

// Header is the fixed 348-byte NIfTI-1 header.
//
// Type translation from the C header: int -> int32, float -> float32,
// short -> int16, char -> int8.
type Header struct {
	SizeOfHdr          int32
	UnusedDataType     [10]int8
	UnusedDbName       [18]int8
	UnusedExtents      int32
	UnusedSessionError int16
	UnusedRegular      int8
	DimInfo            int8

	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	DataType      int16
	BitPix        int16
	SliceStart    int16
	PixDim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     int8
	XYZTUnits     int8
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	TOffset       float32
	UnusedGlmax   int32
	UnusedGlmin   int32

	Descrip [80]int8
	AuxFile [24]int8

	QFormCode int16
	SFormCode int16

	QuaternB float32
	QuaternC float32
	QuaternD float32
	QOffsetX float32
	QOffsetY float32
	QOffsetZ float32

	SRowX [4]float32
	SRowY [4]float32
	SRowZ [4]float32

	IntentName [16]int8

	Magic [4]int8
}

// decodeHeader parses the header from raw bytes, inferring the byte
// order from dim[0], which must land in [1, 7] under the correct order.
func decodeHeader(raw []byte) (Header, binary.ByteOrder, error) {
	if len(raw) < headerSize {
		return Header{}, nil, fmt.Errorf("nifti: file shorter than header (%d bytes)", len(raw))
	}

	var h Header
	var order binary.ByteOrder = binary.LittleEndian
	if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
		return Header{}, nil, fmt.Errorf("nifti: decoding header: %w", err)
	}

	if h.Dim[0] < 1 || h.Dim[0] > 7 {
		h = Header{}
		order = binary.BigEndian
		if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
			return Header{}, nil, fmt.Errorf("nifti: decoding header: %w", err)
		}
	}
	if h.Dim[0] < 1 || h.Dim[0] > 7 {
		return Header{}, nil, fmt.Errorf("nifti: cannot infer byte order, dim[0] not in [1, 7]")
	}

	if h.SizeOfHdr != headerSize {
		return Header{}, nil, fmt.Errorf("nifti: invalid header size %d", h.SizeOfHdr)
	}
	magic := string([]byte{byte(h.Magic[0]), byte(h.Magic[1]), byte(h.Magic[2]), byte(h.Magic[3])})
	if magic != magicSingle {
		return Header{}, nil, fmt.Errorf("nifti: unsupported magic %q, need single-file n+1", magic)
	}

	log.WithFields(log.Fields{
		"byteOrder": fmt.Sprintf("%v", order),
		"dim":       h.Dim,
		"dataType":  h.DataType,
	}).Debug("nifti: header read")

	return h, order, nil
}

// readAll reads the whole file, transparently decompressing .gz.
func readAll(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("nifti: opening gzip stream of %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	return io.ReadAll(r)
}

// decodeVoxels converts the raw voxel bytes to float64, applying the
// header's scaling slope and intercept when the slope is nonzero.
func decodeVoxels(h Header, order binary.ByteOrder, raw []byte, n int) ([]float64, error) {
	byPer := int(h.BitPix) / 8
	offset := int(h.VoxOffset)
	if offset < headerSize {
		offset = dataOffset
	}
	if len(raw) < offset+n*byPer {
		return nil, fmt.Errorf("nifti: truncated data, need %d bytes past offset %d", n*byPer, offset)
	}
	data := raw[offset : offset+n*byPer]

	out := make([]float64, n)
	switch h.DataType {
	case dtUint8:
		for i := 0; i < n; i++ {
			out[i] = float64(data[i])
		}
	case dtInt16:
		for i := 0; i < n; i++ {
			out[i] = float64(int16(order.Uint16(data[i*2:])))
		}
	case dtInt32:
		for i := 0; i < n; i++ {
			out[i] = float64(int32(order.Uint32(data[i*4:])))
		}
	case dtFloat32:
		for i := 0; i < n; i++ {
			out[i] = float64(math.Float32frombits(order.Uint32(data[i*4:])))
		}
	case dtFloat64:
		for i := 0; i < n; i++ {
			out[i] = math.Float64frombits(order.Uint64(data[i*8:]))
		}
	default:
		return nil, fmt.Errorf("nifti: unsupported datatype code %d", h.DataType)
	}

	if h.SclSlope != 0 && (h.SclSlope != 1 || h.SclInter != 0) {
		slope := float64(h.SclSlope)
		inter := float64(h.SclInter)
		for i := range out {
			out[i] = out[i]*slope + inter
		}
	}
	return out, nil
}

// dim returns dimension i of the header, clamped to at least 1 so that
// unused trailing dimensions behave as singletons.
func dim(h Header, i int) int {
	if int(h.Dim[0]) < i || h.Dim[i] < 1 {
		return 1
	}
	return int(h.Dim[i])
}

// Read loads a scalar volume. Trailing singleton dimensions are
// accepted; any non-singleton dimension past the third is an error.
func Read(path string) (*volume.Volume, error) {
	raw, err := readAll(path)
	if err != nil {
		return nil, fmt.Errorf("nifti: reading %s: %w", path, err)
	}
	h, order, err := decodeHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("nifti: %s: %w", path, err)
	}

	nx, ny, nz := dim(h, 1), dim(h, 2), dim(h, 3)
	for i := 4; i <= 7; i++ {
		if dim(h, i) != 1 {
			return nil, fmt.Errorf("nifti: %s: volume is %d-dimensional, expected scalar 3-D", path, h.Dim[0])
		}
	}

	data, err := decodeVoxels(h, order, raw, nx*ny*nz)
	if err != nil {
		return nil, fmt.Errorf("nifti: %s: %w", path, err)
	}
	return &volume.Volume{Data: data, Width: nx, Height: ny, Depth: nz}, nil
}

// ReadVector loads a 5-D vector volume (dim[0]==5, dim[5]==3) as three
// scalar component volumes in x, y, z order. This is the layout used by
// displacement-field warps.
func ReadVector(path string) ([3]*volume.Volume, error) {
	var comps [3]*volume.Volume

	raw, err := readAll(path)
	if err != nil {
		return comps, fmt.Errorf("nifti: reading %s: %w", path, err)
	}
	h, order, err := decodeHeader(raw)
	if err != nil {
		return comps, fmt.Errorf("nifti: %s: %w", path, err)
	}

	nx, ny, nz := dim(h, 1), dim(h, 2), dim(h, 3)
	if int(h.Dim[0]) != vectorNDim || dim(h, 4) != 1 || dim(h, 5) != vectorNVector {
		return comps, fmt.Errorf("nifti: %s: not a displacement field (dim %v)", path, h.Dim)
	}

	nvox := nx * ny * nz
	data, err := decodeVoxels(h, order, raw, nvox*vectorNVector)
	if err != nil {
		return comps, fmt.Errorf("nifti: %s: %w", path, err)
	}
	for c := 0; c < vectorNVector; c++ {
		comp := volume.New(nx, ny, nz)
		copy(comp.Data, data[c*nvox:(c+1)*nvox])
		comps[c] = comp
	}
	return comps, nil
}

// Write stores a volume as a little-endian float32 single-file NIfTI-1
// image, gzip-compressed when the path ends in .gz.
func Write(path string, v *volume.Volume) error {
	h := Header{
		SizeOfHdr: headerSize,
		DataType:  dtFloat32,
		BitPix:    32,
		VoxOffset: dataOffset,
		SclSlope:  1,
	}
	h.Dim[0] = 3
	h.Dim[1] = int16(v.Width)
	h.Dim[2] = int16(v.Height)
	h.Dim[3] = int16(v.Depth)
	for i := 4; i < 8; i++ {
		h.Dim[i] = 1
	}
	h.PixDim[1], h.PixDim[2], h.PixDim[3] = 1, 1, 1
	copy(h.Magic[:], []int8{'n', '+', '1', 0})

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("nifti: encoding header: %w", err)
	}
	// 4-byte extension indicator, all zero: no extensions follow.
	buf.Write([]byte{0, 0, 0, 0})

	vox := make([]byte, 4*len(v.Data))
	for i, val := range v.Data {
		binary.LittleEndian.PutUint32(vox[i*4:], math.Float32bits(float32(val)))
	}
	buf.Write(vox)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("nifti: creating %s: %w", path, err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("nifti: writing %s: %w", path, err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("nifti: closing gzip stream of %s: %w", path, err)
		}
	}

	log.WithFields(log.Fields{
		"path": path,
		"dims": []int{v.Width, v.Height, v.Depth},
	}).Debug("nifti: volume written")

	return nil
}
