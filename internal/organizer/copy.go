package organizer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

const convertQuality = 95

// Placed is one image realized in the output tree.
type Placed struct {
	Assignment
	FinalName string
	Size      int64
}

func isJPEG(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return true
	}
	return false
}

// uniqueName appends a numeric suffix until no file with that name
// exists in dir.
func uniqueName(dir, name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	ext := filepath.Ext(name)
	candidate := name
	for n := 1; ; n++ {
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d%s", base, n, ext)
	}
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func convertFile(src, dst string) (int64, error) {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return 0, err
	}
	if err := imaging.Save(img, dst, imaging.JPEGQuality(convertQuality)); err != nil {
		return 0, err
	}
	st, err := os.Stat(dst)
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// Materialize copies every assigned image into its output folder under
// its assigned name. JPEG inputs are copied byte-for-byte; other
// formats are re-encoded as JPEG. Failures are collected per image and
// do not abort the batch.
func Materialize(outputRoot string, assignments []Assignment) ([]Placed, []error) {
	var placed []Placed
	var errs []error

	for _, a := range assignments {
		dir := filepath.Join(outputRoot, filepath.FromSlash(a.OutFolder))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			errs = append(errs, fmt.Errorf("could not place %s: %w", a.Input.File.Name, err))
			continue
		}
		name := uniqueName(dir, a.OutName)
		dst := filepath.Join(dir, name)

		var size int64
		var err error
		if isJPEG(a.Input.File.Name) {
			size, err = copyFile(a.Input.File.Path, dst)
		} else {
			size, err = convertFile(a.Input.File.Path, dst)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("could not place %s: %w", a.Input.File.Name, err))
			continue
		}

		placed = append(placed, Placed{Assignment: a, FinalName: name, Size: size})
	}
	return placed, errs
}
