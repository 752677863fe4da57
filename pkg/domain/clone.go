package domain

// Clone helpers copy every slice and map so the result shares no memory with
// the input.

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneStringPtr(in *string) *string {
	if in == nil {
		return nil
	}
	v := *in
	return &v
}

func cloneAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch typed := v.(type) {
		case map[string]any:
			out[k] = cloneAnyMap(typed)
		case []any:
			out[k] = append([]any(nil), typed...)
		default:
			out[k] = v
		}
	}
	return out
}

// ClonePerson returns a deep copy of p.
func ClonePerson(p Person) Person {
	cp := p
	cp.Role = cloneStringPtr(p.Role)
	return cp
}

// CloneInstitution returns a deep copy of i.
func CloneInstitution(i Institution) Institution {
	cp := i
	cp.Address = cloneStringPtr(i.Address)
	return cp
}

// CloneArtifactVersion returns a deep copy of v.
func CloneArtifactVersion(v ArtifactVersion) ArtifactVersion {
	cp := v
	cp.Snapshot = cloneAnyMap(v.Snapshot)
	return cp
}

// CloneDigitalSurrogate returns a deep copy of d.
func CloneDigitalSurrogate(d DigitalSurrogate) DigitalSurrogate {
	cp := d
	cp.DerivedFromID = cloneStringPtr(d.DerivedFromID)
	return cp
}

// CloneConservationRecord returns a deep copy of c.
func CloneConservationRecord(c ConservationRecord) ConservationRecord {
	cp := c
	cp.BeforeSurrogates = cloneStrings(c.BeforeSurrogates)
	cp.AfterSurrogates = cloneStrings(c.AfterSurrogates)
	return cp
}

// CloneLoan returns a copy of l.
func CloneLoan(l Loan) Loan { return l }

// CloneArtifact returns a deep copy of a, including owned versions.
func CloneArtifact(a Artifact) Artifact {
	cp := a
	cp.Material = cloneStringPtr(a.Material)
	if a.Dimensions != nil {
		cp.Dimensions = make(map[string]float64, len(a.Dimensions))
		for k, v := range a.Dimensions {
			cp.Dimensions[k] = v
		}
	}
	if a.Provenance != nil {
		cp.Provenance = make([]ProvenanceEntry, len(a.Provenance))
		for i, entry := range a.Provenance {
			if entry == nil {
				continue
			}
			dup := make(ProvenanceEntry, len(entry))
			for k, v := range entry {
				dup[k] = v
			}
			cp.Provenance[i] = dup
		}
	}
	if a.Versions != nil {
		cp.Versions = make([]ArtifactVersion, len(a.Versions))
		for i, v := range a.Versions {
			cp.Versions[i] = CloneArtifactVersion(v)
		}
	}
	cp.DigitalSurrogates = cloneStrings(a.DigitalSurrogates)
	cp.ConservationRecords = cloneStrings(a.ConservationRecords)
	cp.Loans = cloneStrings(a.Loans)
	return cp
}

// CloneTitleIndex returns a copy of idx. A nil index yields an empty one.
func CloneTitleIndex(idx TitleIndex) TitleIndex {
	out := make(TitleIndex, len(idx))
	for k, v := range idx {
		out[k] = v
	}
	return out
}

// CloneRecord deep copies any record value.
func CloneRecord(r Record) Record {
	switch v := r.(type) {
	case Person:
		return ClonePerson(v)
	case Institution:
		return CloneInstitution(v)
	case DigitalSurrogate:
		return CloneDigitalSurrogate(v)
	case ConservationRecord:
		return CloneConservationRecord(v)
	case Loan:
		return CloneLoan(v)
	case Artifact:
		return CloneArtifact(v)
	case TitleIndex:
		return CloneTitleIndex(v)
	default:
		return r
	}
}
