package dir

// Diff returns the patches that turn older into newer. Either snapshot may
// be nil, meaning the directory was empty or absent.
//
// Both trees are flattened to name-ordered lists and walked with two
// cursors:
//   - name only in newer, stable: create
//   - name only in older, stable: delete
//   - name in both, newer stable, and older unstable or size/mtime changed: create
//
// Unstable files produce nothing; they are picked up by a later diff once
// they settle. Content is never compared.
func Diff(older, newer *Snapshot, alias string) []*Patch {
	olds := older.Flatten()
	news := newer.Flatten()

	var patches []*Patch
	i, j := 0, 0
	for i < len(olds) || j < len(news) {
		switch {
		case i == len(olds):
			if rec := news[j]; rec.Stable() {
				patches = append(patches, NewPatch(newer.root, rec, Create, alias))
			}
			j++

		case j == len(news):
			if rec := olds[i]; rec.Stable() {
				patches = append(patches, NewPatch(older.root, rec, Delete, alias))
			}
			i++

		default:
			old, cur := olds[i], news[j]
			oldName, curName := old.Name(older.root), cur.Name(newer.root)

			switch {
			case oldName < curName:
				if old.Stable() {
					patches = append(patches, NewPatch(older.root, old, Delete, alias))
				}
				i++
			case oldName > curName:
				if cur.Stable() {
					patches = append(patches, NewPatch(newer.root, cur, Create, alias))
				}
				j++
			default:
				if cur.Stable() && (!old.Stable() ||
					cur.Size() != old.Size() ||
					!cur.ModTime().Equal(old.ModTime())) {
					patches = append(patches, NewPatch(newer.root, cur, Create, alias))
				}
				i++
				j++
			}
		}
	}
	return patches
}

// Resync returns a create patch for every stable file in s.
func Resync(s *Snapshot, alias string) []*Patch {
	var patches []*Patch
	for _, rec := range s.Flatten() {
		if rec.Stable() {
			patches = append(patches, NewPatch(s.root, rec, Create, alias))
		}
	}
	return patches
}
