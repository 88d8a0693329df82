package scan

import (
	"sort"
	"strings"
)

// ExtensionSet builds a lookup of lowercased extensions with a leading dot.
// Extensions may be given with or without the dot.
func ExtensionSet(exts []string) map[string]struct{} {
	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	return allowed
}

// FilesWithExtensions walks root and returns sorted root-relative paths of
// files whose extensions match any entry in exts (case-insensitive).
func FilesWithExtensions(root string, exts []string, opts Options) ([]string, error) {
	allowed := ExtensionSet(exts)
	if len(allowed) == 0 {
		return nil, nil
	}

	var files []string
	err := ScanWithOptions(root, opts, func(fv FileVisit) {
		if fv.IsDir {
			return
		}
		if _, ok := allowed[fv.Ext]; !ok {
			return
		}
		files = append(files, fv.Path)
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
