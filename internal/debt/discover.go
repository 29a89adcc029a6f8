// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package debt

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/fiscal-engine/internal/workbook"
)

// pagedFile matches the pages of a split disclosure: name__NN.xlsx.
var pagedFile = regexp.MustCompile(`(?i)^(.+?)__(\d{1,3})\.xlsx$`)

// Group is the set of files that make up one disclosure, in page order.
type Group struct {
	// Key identifies the group: directory plus base name for paged files,
	// the full path for a single file.
	Key string

	// Base is the disclosure file name without page suffix or extension.
	Base string

	// Files lists the page files in page-number order.
	Files []string
}

// Dir returns the directory holding the group's files.
func (g Group) Dir() string {
	if len(g.Files) == 0 {
		return ""
	}
	return filepath.Dir(g.Files[0])
}

type page struct {
	number int
	path   string
}

// Discover walks root and groups disclosure files. Only files whose name
// contains keyword are considered (an empty keyword matches everything).
// Paged workbooks named name__NN.xlsx are grouped by directory and base
// name; any other supported file forms a group of its own. Groups are
// returned sorted by key so runs are deterministic.
func Discover(root, keyword string) ([]Group, error) {
	grouped := make(map[string][]page)
	bases := make(map[string]string)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, "~$") || !workbook.Supported(name) {
			return nil
		}
		if keyword != "" && !strings.Contains(name, keyword) {
			return nil
		}

		if m := pagedFile.FindStringSubmatch(name); m != nil {
			n, _ := strconv.Atoi(m[2])
			key := filepath.Join(filepath.Dir(path), m[1])
			grouped[key] = append(grouped[key], page{number: n, path: path})
			bases[key] = m[1]
			return nil
		}

		grouped[path] = []page{{number: 0, path: path}}
		bases[path] = strings.TrimSuffix(name, filepath.Ext(name))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := make([]Group, 0, len(keys))
	for _, k := range keys {
		pages := grouped[k]
		sort.Slice(pages, func(i, j int) bool {
			if pages[i].number != pages[j].number {
				return pages[i].number < pages[j].number
			}
			return pages[i].path < pages[j].path
		})
		files := make([]string, len(pages))
		for i, p := range pages {
			files[i] = p.path
		}
		groups = append(groups, Group{Key: k, Base: bases[k], Files: files})
	}
	return groups, nil
}
