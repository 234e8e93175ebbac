package reconcile

import (
	"sort"

	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/provider"
)

// Upload is one planned transfer: Local is read from the backup directory and
// stored remotely as Target.
type Upload struct {
	Local  string
	Target string
}

// Plan is the full set of decisions for one pair of listings.
type Plan struct {
	Delete []string
	Keep   []string
	Upload []Upload

	// Duplicates maps a canonical name to the local files sharing it.
	// Only groups of two or more are present.
	Duplicates map[string][]string

	// Skipped holds local files with an empty canonical name.
	Skipped []string
}

// MakePlan computes the decisions without touching either side. local holds
// file names (directories already filtered out); remote entries of type dir
// are ignored.
func MakePlan(local []string, remote []provider.Entry, ext string) Plan {
	local, skipped := named(local, ext)
	canon := canonicalSet(local, ext)
	p := Plan{Duplicates: duplicates(local, ext), Skipped: skipped}

	keep := make(map[string]struct{})
	for _, e := range remote {
		if e.Type != provider.TypeFile {
			continue
		}
		if _, ok := canon[e.Name]; ok {
			keep[e.Name] = struct{}{}
			p.Keep = append(p.Keep, e.Name)
		} else {
			p.Delete = append(p.Delete, e.Name)
		}
	}
	p.Upload = uploads(local, keep, ext)
	return p
}

// named splits off files whose canonical name is empty, such as a file called
// exactly ext. They have no remote target.
func named(local []string, ext string) (kept, skipped []string) {
	kept = make([]string, 0, len(local))
	for _, name := range local {
		if Canonical(name, ext) == "" {
			skipped = append(skipped, name)
			continue
		}
		kept = append(kept, name)
	}
	return kept, skipped
}

// canonicalSet is the set of remote names the local directory accounts for.
func canonicalSet(local []string, ext string) map[string]struct{} {
	out := make(map[string]struct{}, len(local))
	for _, name := range local {
		out[Canonical(name, ext)] = struct{}{}
	}
	return out
}

// uploads keeps local order and does not deduplicate: two files with one
// canonical name are both uploaded to the same target.
func uploads(local []string, keep map[string]struct{}, ext string) []Upload {
	var out []Upload
	for _, name := range local {
		target := Canonical(name, ext)
		if _, ok := keep[target]; ok {
			continue
		}
		out = append(out, Upload{Local: name, Target: target})
	}
	return out
}

func duplicates(local []string, ext string) map[string][]string {
	groups := make(map[string][]string)
	for _, name := range local {
		c := Canonical(name, ext)
		groups[c] = append(groups[c], name)
	}
	out := make(map[string][]string)
	for c, names := range groups {
		if len(names) > 1 {
			sort.Strings(names)
			out[c] = names
		}
	}
	return out
}
