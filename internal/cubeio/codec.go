package cubeio

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/fastpdi/dpp/internal/domain"
)

const (
	magic   = "FPDC"
	version = 1

	// Ext is the canonical file extension for cube containers.
	Ext = ".fpdc"
)

// fileHeader is the on-disk JSON header: cube shape plus instrument metadata.
type fileHeader struct {
	NFrames int `json:"nframes"`
	Height  int `json:"height"`
	Width   int `json:"width"`

	domain.Header
}

// Write serializes the cube to path atomically (temp-write then rename).
func Write(path string, cube *domain.Cube) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp, cube); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func encode(w io.Writer, cube *domain.Cube) error {
	zw := gzip.NewWriter(w)
	crc := crc32.NewIEEE()
	out := io.MultiWriter(zw, crc)

	hdr := fileHeader{
		NFrames: cube.NFrames,
		Height:  cube.Height,
		Width:   cube.Width,
		Header:  cube.Header,
	}
	hb, err := json.Marshal(hdr)
	if err != nil {
		return err
	}

	if _, err := out.Write([]byte(magic)); err != nil {
		return err
	}
	if _, err := out.Write([]byte{version}); err != nil {
		return err
	}
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(hb)))
	if _, err := out.Write(n[:]); err != nil {
		return err
	}
	if _, err := out.Write(hb); err != nil {
		return err
	}

	// Stream pixels in chunks to bound the encode buffer.
	buf := make([]byte, 0, 64<<10)
	for _, v := range cube.Data {
		var p [8]byte
		binary.LittleEndian.PutUint64(p[:], math.Float64bits(v))
		buf = append(buf, p[:]...)
		if len(buf) == cap(buf) {
			if _, err := out.Write(buf); err != nil {
				return err
			}
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		if _, err := out.Write(buf); err != nil {
			return err
		}
	}

	// CRC trailer covers everything written so far, uncompressed.
	binary.LittleEndian.PutUint32(n[:], crc.Sum32())
	if _, err := zw.Write(n[:]); err != nil {
		return err
	}
	return zw.Close()
}

// Read loads a cube container and verifies its integrity. Structural damage
// (bad magic, truncated data, CRC mismatch) wraps domain.ErrCacheInconsistency
// so callers can distinguish corruption from plain I/O failures.
func Read(path string) (*domain.Cube, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(bufio.NewReaderSize(f, 64<<10))
	if err != nil {
		return nil, corrupt(path, "gzip: %v", err)
	}
	defer zr.Close()

	cube, crc, err := decodeBody(zr, path)
	if err != nil {
		return nil, err
	}

	var trailer [4]byte
	if _, err := io.ReadFull(zr, trailer[:]); err != nil {
		return nil, corrupt(path, "missing crc trailer")
	}
	if binary.LittleEndian.Uint32(trailer[:]) != crc.Sum32() {
		return nil, corrupt(path, "crc mismatch")
	}
	return cube, nil
}

// Verify checks a container end to end, header through CRC trailer, without
// materializing the pixel data. It returns the header on success and a
// domain.ErrCacheInconsistency-wrapped error for any structural damage,
// including a body whose CRC no longer matches an intact header.
func Verify(path string) (domain.Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Header{}, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(bufio.NewReaderSize(f, 64<<10))
	if err != nil {
		return domain.Header{}, corrupt(path, "gzip: %v", err)
	}
	defer zr.Close()

	crc := crc32.NewIEEE()
	hdr, err := decodeHeader(zr, crc, path)
	if err != nil {
		return domain.Header{}, err
	}

	need := int64(hdr.NFrames) * int64(hdr.Height) * int64(hdr.Width) * 8
	if _, err := io.CopyN(crc, zr, need); err != nil {
		return domain.Header{}, corrupt(path, "short pixel data")
	}
	var trailer [4]byte
	if _, err := io.ReadFull(zr, trailer[:]); err != nil {
		return domain.Header{}, corrupt(path, "missing crc trailer")
	}
	if binary.LittleEndian.Uint32(trailer[:]) != crc.Sum32() {
		return domain.Header{}, corrupt(path, "crc mismatch")
	}
	return hdr.Header, nil
}

// ReadHeader decodes only the header and shape of a container.
func ReadHeader(path string) (domain.Header, int, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Header{}, 0, 0, 0, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(bufio.NewReaderSize(f, 32<<10))
	if err != nil {
		return domain.Header{}, 0, 0, 0, corrupt(path, "gzip: %v", err)
	}
	defer zr.Close()

	hdr, err := decodeHeader(zr, nil, path)
	if err != nil {
		return domain.Header{}, 0, 0, 0, err
	}
	return hdr.Header, hdr.NFrames, hdr.Height, hdr.Width, nil
}

func decodeHeader(r io.Reader, crc hash.Hash32, path string) (fileHeader, error) {
	var hdr fileHeader
	pre := make([]byte, len(magic)+1+4)
	if _, err := io.ReadFull(r, pre); err != nil {
		return hdr, corrupt(path, "short preamble")
	}
	if crc != nil {
		crc.Write(pre)
	}
	if string(pre[:4]) != magic {
		return hdr, corrupt(path, "bad magic")
	}
	if pre[4] != version {
		return hdr, corrupt(path, "unsupported version %d", pre[4])
	}
	hlen := binary.LittleEndian.Uint32(pre[5:9])
	if hlen > 1<<20 {
		return hdr, corrupt(path, "oversized header")
	}
	hb := make([]byte, hlen)
	if _, err := io.ReadFull(r, hb); err != nil {
		return hdr, corrupt(path, "short header")
	}
	if crc != nil {
		crc.Write(hb)
	}
	if err := json.Unmarshal(hb, &hdr); err != nil {
		return hdr, corrupt(path, "header json: %v", err)
	}
	if hdr.NFrames < 0 || hdr.Height <= 0 || hdr.Width <= 0 {
		return hdr, corrupt(path, "bad shape %dx%dx%d", hdr.NFrames, hdr.Height, hdr.Width)
	}
	return hdr, nil
}

func decodeBody(r io.Reader, path string) (*domain.Cube, hash.Hash32, error) {
	crc := crc32.NewIEEE()
	hdr, err := decodeHeader(r, crc, path)
	if err != nil {
		return nil, nil, err
	}

	cube := domain.NewCube(hdr.NFrames, hdr.Height, hdr.Width)
	cube.Header = hdr.Header

	buf := make([]byte, 64<<10)
	need := len(cube.Data) * 8
	got := 0
	for got < need {
		chunk := len(buf)
		if need-got < chunk {
			chunk = need - got
		}
		if _, err := io.ReadFull(r, buf[:chunk]); err != nil {
			return nil, nil, corrupt(path, "short pixel data")
		}
		crc.Write(buf[:chunk])
		for i := 0; i < chunk; i += 8 {
			cube.Data[(got+i)/8] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i : i+8]))
		}
		got += chunk
	}
	return cube, crc, nil
}

func corrupt(path, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %s", domain.ErrCacheInconsistency, path, fmt.Sprintf(format, args...))
}
