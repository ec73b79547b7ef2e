package jit

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"matscript/pkg/asm"
	"matscript/pkg/compiler"
)

// imageFormat is bumped whenever the archive layout changes.
const imageFormat = 1

// manifest is the JSON description of an image.
type manifest struct {
	Format    int             `json:"format"`
	Name      string          `json:"name"`
	Created   time.Time       `json:"created"`
	CodeSize  int             `json:"code_size"`
	HeapBytes int64           `json:"heap_bytes"`
	Functions []manifestEntry `json:"functions"`
}

type manifestEntry struct {
	Name      string `json:"name"`
	Entry     uint32 `json:"entry"`
	Return    string `json:"return"` // "scalar" or "matrix"
	Rows      int    `json:"rows,omitempty"`
	Cols      int    `json:"cols,omitempty"`
	HeapBytes int64  `json:"heap_bytes"`
}

// Image is a compiled module as stored on disk: machine code, the
// assembly it came from and the function table.
type Image struct {
	Name      string
	Code      []byte
	Assembly  string
	Functions []Function
	HeapBytes int64
	Created   time.Time
}

// Image returns the storable form of x.
func (x *Executable) Image() *Image {
	return &Image{
		Name:      x.Name,
		Code:      x.Code,
		Assembly:  x.Assembly,
		Functions: x.Functions,
		HeapBytes: x.HeapBytes,
	}
}

// WriteImage writes exe as a zip archive holding manifest.json, code.bin
// and module.asm.
func WriteImage(w io.Writer, exe *Executable) error {
	img := exe.Image()
	zw := zip.NewWriter(w)

	// ── 1. manifest.json ───────────────────────────────────────────────────
	m := manifest{
		Format:    imageFormat,
		Name:      img.Name,
		Created:   time.Now().UTC(),
		CodeSize:  len(img.Code),
		HeapBytes: img.HeapBytes,
	}
	for _, fn := range img.Functions {
		e := manifestEntry{Name: fn.Name, Entry: fn.Entry, Return: "scalar", HeapBytes: fn.HeapBytes}
		if fn.Return.IsMatrix() {
			e.Return, e.Rows, e.Cols = "matrix", fn.Return.Rows, fn.Return.Cols
		}
		m.Functions = append(m.Functions, e)
	}
	jsonData, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal manifest")
	}
	if err := writeZipEntry(zw, "manifest.json", jsonData); err != nil {
		return err
	}

	// ── 2. code.bin ────────────────────────────────────────────────────────
	if err := writeZipEntry(zw, "code.bin", img.Code); err != nil {
		return err
	}

	// ── 3. module.asm ──────────────────────────────────────────────────────
	if err := writeZipEntry(zw, "module.asm", []byte(img.Assembly)); err != nil {
		return err
	}

	return errors.Wrap(zw.Close(), "close zip")
}

// ReadImage parses an archive produced by WriteImage. When the archive
// carries its assembly, the code must be exactly what that assembly
// assembles to.
func ReadImage(data []byte) (*Image, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(err, "open zip")
	}

	fileMap := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		fileMap[f.Name] = f
	}

	// ── 1. manifest.json ───────────────────────────────────────────────────
	jsonData, err := readZipEntry(fileMap, "manifest.json")
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(jsonData, &m); err != nil {
		return nil, errors.Wrap(err, "unmarshal manifest")
	}
	if m.Format != imageFormat {
		return nil, errors.Errorf("image format %d, want %d", m.Format, imageFormat)
	}

	img := &Image{Name: m.Name, HeapBytes: m.HeapBytes, Created: m.Created}
	for _, e := range m.Functions {
		fn := Function{Name: e.Name, Entry: e.Entry, Return: compiler.ScalarShape(), HeapBytes: e.HeapBytes}
		switch e.Return {
		case "scalar":
		case "matrix":
			fn.Return = compiler.MatrixShape(e.Rows, e.Cols)
		default:
			return nil, errors.Errorf("function %s has unknown return kind %q", e.Name, e.Return)
		}
		img.Functions = append(img.Functions, fn)
	}

	// ── 2. code.bin ────────────────────────────────────────────────────────
	if img.Code, err = readZipEntry(fileMap, "code.bin"); err != nil {
		return nil, err
	}
	if len(img.Code) != m.CodeSize {
		return nil, errors.Errorf("code.bin is %d bytes, manifest says %d", len(img.Code), m.CodeSize)
	}

	// ── 3. module.asm ──────────────────────────────────────────────────────
	if src, err := readZipEntry(fileMap, "module.asm"); err == nil {
		img.Assembly = string(src)
		re, err := asm.Assemble(img.Assembly)
		if err != nil {
			return nil, errors.Wrap(err, "module.asm")
		}
		if !bytes.Equal(re.Code, img.Code) {
			return nil, errors.New("code.bin does not match module.asm")
		}
	}
	return img, nil
}

// LoadImage verifies img and binds it to the engine's backend.
func (e *Engine) LoadImage(img *Image) (*Executable, error) {
	return e.bind(&Executable{
		Name:      img.Name,
		Code:      img.Code,
		Assembly:  img.Assembly,
		Functions: img.Functions,
		HeapBytes: img.HeapBytes,
	})
}

// SaveImageFile writes exe to path.
func SaveImageFile(path string, exe *Executable) error {
	var buf bytes.Buffer
	if err := WriteImage(&buf, exe); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// OpenImageFile reads the image stored at path.
func OpenImageFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ReadImage(data)
}

// ── helpers ────────────────────────────────────────────────────────────────

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return errors.Wrapf(err, "create zip entry %q", name)
	}
	_, err = w.Write(data)
	return err
}

func readZipEntry(fileMap map[string]*zip.File, name string) ([]byte, error) {
	f, ok := fileMap[name]
	if !ok {
		return nil, errors.Errorf("zip entry %q not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "open zip entry %q", name)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
