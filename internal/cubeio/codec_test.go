package cubeio

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/fastpdi/dpp/internal/domain"
)

// corruptBody rewrites a container with its last uncompressed byte flipped:
// the gzip stream and header stay intact, only the CRC check can catch it.
func corruptBody(t *testing.T, path string) {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	content, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	content[len(content)-1] ^= 0xFF

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testCube() *domain.Cube {
	cube := domain.NewCube(3, 4, 5)
	for i := range cube.Data {
		cube.Data[i] = float64(i) * 0.5
	}
	cube.Data[7] = math.NaN()
	cube.Header = domain.Header{
		Name:        "obs_0001_cam1",
		Camera:      1,
		HWPAngle:    22.5,
		MJD:         60001.25,
		ExpTime:     1.5,
		Stage:       string(domain.StageCalibrate),
		Fingerprint: "deadbeefdeadbeef",
	}
	return cube
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cube"+Ext)
	want := testCube()

	if err := Write(path, want); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}

	if got.NFrames != want.NFrames || got.Height != want.Height || got.Width != want.Width {
		t.Fatalf("shape = %dx%dx%d, want %dx%dx%d",
			got.NFrames, got.Height, got.Width, want.NFrames, want.Height, want.Width)
	}
	if !reflect.DeepEqual(got.Header, want.Header) {
		t.Errorf("header = %+v, want %+v", got.Header, want.Header)
	}
	for i := range want.Data {
		if math.IsNaN(want.Data[i]) {
			if !math.IsNaN(got.Data[i]) {
				t.Fatalf("pixel %d = %v, want NaN preserved", i, got.Data[i])
			}
			continue
		}
		if got.Data[i] != want.Data[i] {
			t.Fatalf("pixel %d = %v, want %v", i, got.Data[i], want.Data[i])
		}
	}
}

func TestReadHeader_SkipsPixelData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cube"+Ext)
	want := testCube()
	if err := Write(path, want); err != nil {
		t.Fatal(err)
	}

	hdr, nframes, h, w, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader() failed: %v", err)
	}
	if !reflect.DeepEqual(hdr, want.Header) {
		t.Errorf("header = %+v, want %+v", hdr, want.Header)
	}
	if nframes != 3 || h != 4 || w != 5 {
		t.Errorf("shape = %dx%dx%d, want 3x4x5", nframes, h, w)
	}
}

func TestRead_CorruptionIsCacheInconsistency(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cube"+Ext)
	if err := Write(path, testCube()); err != nil {
		t.Fatal(err)
	}

	t.Run("not gzip", func(t *testing.T) {
		bad := filepath.Join(dir, "garbage"+Ext)
		if err := os.WriteFile(bad, []byte("not a container"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Read(bad); !errors.Is(err, domain.ErrCacheInconsistency) {
			t.Errorf("Read(garbage) error = %v, want ErrCacheInconsistency", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		b, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		bad := filepath.Join(dir, "short"+Ext)
		if err := os.WriteFile(bad, b[:len(b)/2], 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Read(bad); !errors.Is(err, domain.ErrCacheInconsistency) {
			t.Errorf("Read(truncated) error = %v, want ErrCacheInconsistency", err)
		}
	})

	t.Run("missing file is plain io error", func(t *testing.T) {
		_, err := Read(filepath.Join(dir, "absent"+Ext))
		if err == nil || errors.Is(err, domain.ErrCacheInconsistency) {
			t.Errorf("Read(absent) error = %v, want plain os error", err)
		}
	})
}

func TestVerify_CatchesBodyCorruptionBehindIntactHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cube"+Ext)
	if err := Write(path, testCube()); err != nil {
		t.Fatal(err)
	}

	hdr, err := Verify(path)
	if err != nil {
		t.Fatalf("Verify(valid) = %v", err)
	}
	if hdr.Fingerprint != testCube().Header.Fingerprint {
		t.Errorf("Verify header fingerprint = %q", hdr.Fingerprint)
	}

	corruptBody(t, path)

	// The header still decodes cleanly; only the full-body check can tell.
	if got, _, _, _, err := ReadHeader(path); err != nil {
		t.Fatalf("ReadHeader(body-corrupt) = %v, header should be intact", err)
	} else if got.Fingerprint != testCube().Header.Fingerprint {
		t.Fatalf("body corruption reached the header")
	}
	if _, err := Verify(path); !errors.Is(err, domain.ErrCacheInconsistency) {
		t.Errorf("Verify(body-corrupt) error = %v, want ErrCacheInconsistency", err)
	}
	if _, err := Read(path); !errors.Is(err, domain.ErrCacheInconsistency) {
		t.Errorf("Read(body-corrupt) error = %v, want ErrCacheInconsistency", err)
	}
}

func TestWrite_LeavesNoPartialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cube"+Ext)
	if err := Write(path, testCube()); err != nil {
		t.Fatal(err)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range ents {
		if strings.Contains(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}
