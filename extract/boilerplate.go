package extract

// Boilerplate detection is a whole-document decision: a running header
// cannot be recognised from a single page. It is split into two pure
// passes — collect signatures, then filter — because the threshold
// depends on statistics across every page.

// BoilerplateKeys scans all pages and returns the set of header/footer
// signatures that occur on at least minPages distinct pages.
func BoilerplateKeys(pages [][]Line, minPages int) map[string]struct{} {
	keyPages := make(map[string]map[int]struct{})
	for _, lines := range pages {
		for _, line := range lines {
			if line.BoilerplateKey == "" {
				continue
			}
			pages, ok := keyPages[line.BoilerplateKey]
			if !ok {
				pages = make(map[int]struct{})
				keyPages[line.BoilerplateKey] = pages
			}
			pages[line.PageNumber] = struct{}{}
		}
	}

	keys := make(map[string]struct{})
	for key, pages := range keyPages {
		if len(pages) >= minPages {
			keys[key] = struct{}{}
		}
	}
	return keys
}

// FilterBoilerplate removes every header/footer-band line whose signature
// is in keys. Lines outside the band are never filtered, even when their
// text repeats.
func FilterBoilerplate(lines []Line, keys map[string]struct{}) []Line {
	if len(keys) == 0 {
		return lines
	}
	out := lines[:0:0]
	for _, line := range lines {
		if line.HeaderFooter {
			if _, drop := keys[line.BoilerplateKey]; drop {
				continue
			}
		}
		out = append(out, line)
	}
	return out
}
