// Package golden compares captured frames with golden files.
package golden

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"

	"rasterline.org/image/rgb444"
)

// CompareFrame compares img with the frame stored at path, or replaces
// the stored frame if update is set. Mismatching frames are dumped as
// PNG files to dumpDir, if set.
func CompareFrame(path string, update bool, dumpDir string, img *rgb444.Image) error {
	if update {
		buf := new(bytes.Buffer)
		w, err := gzip.NewWriterLevel(buf, gzip.BestCompression)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		w.Write(EncodeFrame(img))
		if err := w.Close(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return os.WriteFile(path, buf.Bytes(), 0o640)
	}
	golden, err := ReadFrame(path)
	if err != nil {
		return err
	}
	if golden.Rect.Size() != img.Rect.Size() {
		return fmt.Errorf("%s: frame size %v, golden size %v", path, img.Rect.Size(), golden.Rect.Size())
	}
	mismatches := 0
	first := image.Point{-1, -1}
	for y := range img.Rect.Dy() {
		r1, r2 := img.Row(img.Rect.Min.Y+y), golden.Row(y)
		for x := range r1 {
			if r1[x] != r2[x] {
				if mismatches == 0 {
					first = image.Pt(x, y)
				}
				mismatches++
			}
		}
	}
	if mismatches == 0 {
		return nil
	}
	if dumpDir != "" {
		base := filepath.Join(dumpDir, filepath.Base(path))
		if err := dumpPNG(base+".png", img); err != nil {
			return err
		}
		if err := dumpPNG(base+".orig.png", golden); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s: %d pixel mismatches, first at %v", path, mismatches, first)
}

// ReadFrame reads a frame written by CompareFrame.
func ReadFrame(path string) (*rgb444.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	img, err := DecodeFrame(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// EncodeFrame encodes a frame into a compact binary form: its
// dimensions followed by runs of equal pixels.
func EncodeFrame(img *rgb444.Image) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	var buf []byte
	buf = binary.AppendUvarint(buf, uint64(w))
	buf = binary.AppendUvarint(buf, uint64(h))
	run := 0
	var last rgb444.Color
	flush := func() {
		if run > 0 {
			buf = binary.AppendUvarint(buf, uint64(run))
			buf = binary.AppendUvarint(buf, uint64(last))
		}
	}
	for y := range h {
		for _, c := range img.Row(img.Rect.Min.Y + y) {
			if run > 0 && c == last {
				run++
				continue
			}
			flush()
			last, run = c, 1
		}
	}
	flush()
	return buf
}

// DecodeFrame decodes a frame from its binary form.
func DecodeFrame(enc []byte) (*rgb444.Image, error) {
	var dims [2]uint64
	for i := range dims {
		v, n := binary.Uvarint(enc)
		if n <= 0 {
			return nil, errors.New("truncated frame header")
		}
		dims[i] = v
		enc = enc[n:]
	}
	const maxDim = 1 << 14
	if dims[0] > maxDim || dims[1] > maxDim {
		return nil, fmt.Errorf("frame dimensions %dx%d too large", dims[0], dims[1])
	}
	img := rgb444.New(image.Rect(0, 0, int(dims[0]), int(dims[1])))
	pos := 0
	for len(enc) > 0 {
		run, n := binary.Uvarint(enc)
		if n <= 0 {
			return nil, errors.New("truncated frame")
		}
		enc = enc[n:]
		c, n := binary.Uvarint(enc)
		if n <= 0 {
			return nil, errors.New("truncated frame")
		}
		enc = enc[n:]
		if run > uint64(len(img.Pix)-pos) {
			return nil, errors.New("frame overflow")
		}
		for range run {
			img.Pix[pos] = rgb444.Color(c)
			pos++
		}
	}
	if pos != len(img.Pix) {
		return nil, fmt.Errorf("frame has %d of %d pixels", pos, len(img.Pix))
	}
	return img, nil
}

// Digest returns the hex encoded BLAKE2b-256 digest of the pixels of
// img.
func Digest(img *rgb444.Image) string {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	var dims [8]byte
	binary.LittleEndian.PutUint32(dims[:4], uint32(img.Rect.Dx()))
	binary.LittleEndian.PutUint32(dims[4:], uint32(img.Rect.Dy()))
	h.Write(dims[:])
	row := make([]byte, 2*img.Rect.Dx())
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		for x, c := range img.Row(y) {
			binary.LittleEndian.PutUint16(row[2*x:], uint16(c))
		}
		h.Write(row)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// WritePNG encodes img as PNG.
func WritePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

func dumpPNG(path string, img image.Image) error {
	buf := new(bytes.Buffer)
	if err := WritePNG(buf, img); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o640)
}
