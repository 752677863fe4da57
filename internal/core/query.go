package core

import (
	"sort"

	"heritagestore/pkg/domain"
)

// QueryArtifactsByMaterial returns artifacts whose material contains substr,
// ignoring case, ordered by id. Artifacts with no material or an empty one
// never match.
func QueryArtifactsByMaterial(r RecordReader, substr string) ([]Artifact, error) {
	all, err := domain.ListAs[Artifact](r, domain.CollectionArtifacts)
	if err != nil {
		return nil, err
	}
	out := make([]Artifact, 0)
	for _, a := range all {
		if a.HasMaterialLike(substr) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// QueryConservationByRestorer returns conservation records whose restorer id
// equals restorerID, ordered by id.
func QueryConservationByRestorer(r RecordReader, restorerID string) ([]ConservationRecord, error) {
	all, err := domain.ListAs[ConservationRecord](r, domain.CollectionConservations)
	if err != nil {
		return nil, err
	}
	out := make([]ConservationRecord, 0)
	for _, c := range all {
		if c.RestorerID == restorerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
