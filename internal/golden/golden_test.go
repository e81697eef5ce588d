package golden

import (
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rasterline.org/image/rgb444"
)

func testFrame() *rgb444.Image {
	img := rgb444.New(image.Rect(0, 0, 64, 48))
	for y := range 48 {
		row := img.Row(y)
		for x := range row {
			row[x] = rgb444.Color(x / 8 * 0x111)
		}
	}
	return img
}

func TestEncoding(t *testing.T) {
	img := testFrame()
	enc := EncodeFrame(img)
	// 8 runs per row.
	if len(enc) > 48*8*4 {
		t.Errorf("encoded frame is %d bytes", len(enc))
	}
	dec, err := DecodeFrame(enc)
	if err != nil {
		t.Fatal(err)
	}
	if Digest(dec) != Digest(img) {
		t.Error("decoded frame differs")
	}
	if _, err := DecodeFrame(enc[:len(enc)-2]); err == nil {
		t.Error("truncated frame decoded")
	}
}

func TestCompareFrame(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.gz")
	img := testFrame()
	if err := CompareFrame(path, false, "", img); err == nil {
		t.Fatal("missing golden file compared equal")
	}
	if err := CompareFrame(path, true, "", img); err != nil {
		t.Fatal(err)
	}
	if err := CompareFrame(path, false, "", img); err != nil {
		t.Fatal(err)
	}
	img.SetColor(10, 20, 0xf00)
	err := CompareFrame(path, false, dir, img)
	if err == nil || !strings.Contains(err.Error(), "1 pixel mismatches") {
		t.Fatalf("mismatch error %v", err)
	}
	for _, name := range []string{"frame.gz.png", "frame.gz.orig.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Error(err)
		}
	}
}

func TestDigest(t *testing.T) {
	img := testFrame()
	d := Digest(img)
	if len(d) != 64 {
		t.Errorf("digest %q", d)
	}
	sub := img.SubImage(image.Rect(0, 0, 64, 24)).(*rgb444.Image)
	if Digest(sub) == d {
		t.Error("digest ignores dimensions")
	}
	img.SetColor(0, 0, 1)
	if Digest(img) == d {
		t.Error("digest ignores pixels")
	}
}
