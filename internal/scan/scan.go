// Package scan discovers input images and validates the collection
// hierarchy used by field teams.
package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// File is one discovered input image.
type File struct {
	Path   string // absolute path on disk
	Folder string // folder relative to the input root
	Name   string // base name with extension
	Size   int64

	// populated only in sites mode
	Date         time.Time
	SiteID       string
	Photographer string
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// IsImage reports whether the file name has a supported image extension.
func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// Flat walks the input tree and returns every supported image in it,
// sorted by relative path.
func Flat(root string) ([]File, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("could not open input folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input path %s is not a folder", root)
	}

	var files []File
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsImage(d.Name()) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, File{
			Path:   path,
			Folder: filepath.ToSlash(filepath.Dir(rel)),
			Name:   d.Name(),
			Size:   fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not scan input folder: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Folder != files[j].Folder {
			return files[i].Folder < files[j].Folder
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}
