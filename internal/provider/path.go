package provider

import "strings"

// Chain returns every directory from the top of path down to path itself,
// keeping any scheme root: "app:/mc/backups" -> ["app:/mc", "app:/mc/backups"].
func Chain(path string) []string {
	root := ""
	if i := strings.Index(path, ":/"); i >= 0 {
		root = path[:i+2]
	} else if strings.HasPrefix(path, "/") {
		root = "/"
	}
	rest := strings.Trim(path[len(root):], "/")
	if rest == "" {
		return nil
	}

	parts := strings.Split(rest, "/")
	out := make([]string, 0, len(parts))
	cur := root
	for _, p := range parts {
		if p == "" {
			continue
		}
		if cur == root {
			cur += p
		} else {
			cur += "/" + p
		}
		out = append(out, cur)
	}
	return out
}
