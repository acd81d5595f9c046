package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Site is one per-site YAML descriptor loaded from the input root.
type Site struct {
	ID    string
	City  string
	Attrs map[string]string
}

// SiteSet is the result of a sites-mode scan: the images plus the site
// descriptors they reference.
type SiteSet struct {
	Files []File
	Sites map[string]Site
}

// Sites walks and validates the dated collection hierarchy:
//
//	<root>/<site>.yaml
//	<root>/YYYY-MM-DD/<site>/<photographer>/<images>
//
// Every malformed element is rejected with an error naming the path, so
// a team can fix its upload before anything is copied.
func Sites(root string) (*SiteSet, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("could not open input folder: %w", err)
	}

	set := &SiteSet{Sites: map[string]Site{}}

	var dateDirs []string
	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir():
			if _, err := time.Parse(dateLayout, name); err != nil {
				return nil, fmt.Errorf("folder %q is not a date: expected YYYY-MM-DD", name)
			}
			dateDirs = append(dateDirs, name)
		case strings.HasSuffix(strings.ToLower(name), ".yaml") || strings.HasSuffix(strings.ToLower(name), ".yml"):
			site, err := loadSiteYaml(filepath.Join(root, name))
			if err != nil {
				return nil, err
			}
			set.Sites[site.ID] = site
		default:
			return nil, fmt.Errorf("unexpected file %q at the input root: only date folders and site YAML files belong there", name)
		}
	}

	sort.Strings(dateDirs)
	for _, dateName := range dateDirs {
		date, _ := time.Parse(dateLayout, dateName)
		if err := walkDateDir(root, dateName, date, set); err != nil {
			return nil, err
		}
	}

	return set, nil
}

func walkDateDir(root, dateName string, date time.Time, set *SiteSet) error {
	dateDir := filepath.Join(root, dateName)
	siteEntries, err := os.ReadDir(dateDir)
	if err != nil {
		return err
	}

	for _, se := range siteEntries {
		if !se.IsDir() {
			return fmt.Errorf("unexpected file %q in date folder %s: expected site folders", se.Name(), dateName)
		}
		siteID := se.Name()
		if _, ok := set.Sites[siteID]; !ok {
			return fmt.Errorf("site folder %s/%s has no %s.yaml descriptor at the input root", dateName, siteID, siteID)
		}

		siteDir := filepath.Join(dateDir, siteID)
		pgEntries, err := os.ReadDir(siteDir)
		if err != nil {
			return err
		}
		for _, pe := range pgEntries {
			if !pe.IsDir() {
				return fmt.Errorf("unexpected file %q in %s/%s: images belong in a photographer folder", pe.Name(), dateName, siteID)
			}
			if err := collectPhotographerDir(root, dateName, siteID, pe.Name(), date, set); err != nil {
				return err
			}
		}
	}
	return nil
}

func collectPhotographerDir(root, dateName, siteID, photographer string, date time.Time, set *SiteSet) error {
	dir := filepath.Join(root, dateName, siteID, photographer)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.IsDir() {
			return fmt.Errorf("unexpected folder %q inside %s/%s/%s: photographer folders must contain images only",
				e.Name(), dateName, siteID, photographer)
		}
		if !IsImage(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return err
		}
		set.Files = append(set.Files, File{
			Path:         filepath.Join(dir, e.Name()),
			Folder:       strings.Join([]string{dateName, siteID, photographer}, "/"),
			Name:         e.Name(),
			Size:         fi.Size(),
			Date:         date,
			SiteID:       siteID,
			Photographer: photographer,
		})
	}
	return nil
}

// loadSiteYaml reads one site descriptor. Keys are matched
// case-insensitively; city is the only required attribute.
func loadSiteYaml(path string) (Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Site{}, fmt.Errorf("could not read site descriptor %s: %w", path, err)
	}

	raw := map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Site{}, fmt.Errorf("could not parse site descriptor %s: %w", path, err)
	}

	site := Site{
		ID:    strings.TrimSuffix(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), "."),
		Attrs: map[string]string{},
	}
	for k, v := range raw {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "city" {
			site.City = strings.TrimSpace(v)
			continue
		}
		site.Attrs[key] = v
	}
	if site.City == "" {
		return Site{}, fmt.Errorf("site descriptor %s is missing the required city attribute", path)
	}
	return site, nil
}
