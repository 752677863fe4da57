package domain

import "fmt"

// UnmarshalFunc decodes serialized bytes into v (json.Unmarshal, codec.Unmarshal, ...).
type UnmarshalFunc func(data []byte, v any) error

// DecodeRecord decodes data into the record type held by c.
func DecodeRecord(c Collection, data []byte, unmarshal UnmarshalFunc) (Record, error) {
	var (
		rec Record
		err error
	)
	switch c {
	case CollectionPeople:
		var v Person
		err = unmarshal(data, &v)
		rec = v
	case CollectionInstitutions:
		var v Institution
		err = unmarshal(data, &v)
		rec = v
	case CollectionDigital:
		var v DigitalSurrogate
		err = unmarshal(data, &v)
		rec = v
	case CollectionConservations:
		var v ConservationRecord
		err = unmarshal(data, &v)
		rec = v
	case CollectionLoans:
		var v Loan
		err = unmarshal(data, &v)
		rec = v
	case CollectionArtifacts:
		var v Artifact
		err = unmarshal(data, &v)
		rec = v
	case CollectionIndexes:
		v := TitleIndex{}
		err = unmarshal(data, &v)
		rec = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", c, err)
	}
	return rec, nil
}
