package content

// migrate upgrades a document parsed from an older schema version to
// the current one. It runs exactly once per load; the next Write
// persists the upgraded form.
func (d *Document) migrate() {
	if d.SchemaVersion >= CurrentSchemaVersion {
		return
	}

	// v1 -> v2: the singular group_id field becomes an entry in the
	// plural group_ids list.
	for i := range d.Slides {
		s := &d.Slides[i]
		if s.LegacyGroupID != "" {
			if !containsString(s.GroupIDs, s.LegacyGroupID) {
				s.GroupIDs = append(s.GroupIDs, s.LegacyGroupID)
			}
			s.LegacyGroupID = ""
		}
	}

	// v1 files written before renumbering was centralized can carry
	// zero or gapped orders. Sort by the recorded order, then restore
	// the contiguous ranking.
	needsRenumber := false
	for i := range d.Slides {
		if d.Slides[i].Order != i+1 {
			needsRenumber = true
			break
		}
	}
	if needsRenumber {
		sortSlidesByRecordedOrder(d.Slides)
		d.renumber()
	}

	// Drop group memberships that point at slides no longer present.
	valid := make(map[string]bool, len(d.Slides))
	for _, s := range d.Slides {
		valid[s.ID] = true
	}
	for gi := range d.Groups {
		kept := d.Groups[gi].SlideIDs[:0]
		for _, sid := range d.Groups[gi].SlideIDs {
			if valid[sid] {
				kept = append(kept, sid)
			}
		}
		if len(kept) == 0 {
			d.Groups[gi].SlideIDs = nil
		} else {
			d.Groups[gi].SlideIDs = kept
		}
	}

	d.SchemaVersion = CurrentSchemaVersion
}

// sortSlidesByRecordedOrder is a stable sort on the persisted order
// field, keeping file order for ties (including all-zero legacy files).
func sortSlidesByRecordedOrder(slides []Slide) {
	for i := 1; i < len(slides); i++ {
		for j := i; j > 0 && slides[j].Order < slides[j-1].Order; j-- {
			slides[j], slides[j-1] = slides[j-1], slides[j]
		}
	}
}
