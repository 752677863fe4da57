// Package domain defines the heritage collection entities, the closed set of
// record types held by the store, and the rule evaluation primitives used by
// heritagestore.
package domain

import (
	"fmt"
	"strings"
)

// Collection names a keyed set of records of a single entity type.
type Collection string

// Fixed collection names. They are part of the persisted layout and must not change.
const (
	CollectionArtifacts     Collection = "artifacts"
	CollectionDigital       Collection = "digital"
	CollectionPeople        Collection = "people"
	CollectionInstitutions  Collection = "institutions"
	CollectionLoans         Collection = "loans"
	CollectionConservations Collection = "conservations"
	CollectionIndexes       Collection = "indexes"
)

// TitleIndexKey is the key of the title index inside the indexes collection.
const TitleIndexKey = "by_title"

// Collections lists every collection a store must provide, in persisted order.
func Collections() []Collection {
	return []Collection{
		CollectionArtifacts,
		CollectionDigital,
		CollectionPeople,
		CollectionInstitutions,
		CollectionLoans,
		CollectionConservations,
		CollectionIndexes,
	}
}

// Valid reports whether c is one of the fixed collection names.
func (c Collection) Valid() bool {
	for _, known := range Collections() {
		if c == known {
			return true
		}
	}
	return false
}

// LoanStatus captures where a loan is in its lifecycle. The store does not
// enforce transitions between statuses.
type LoanStatus string

// Loan statuses.
const (
	LoanPending   LoanStatus = "PENDING"
	LoanActive    LoanStatus = "ACTIVE"
	LoanCompleted LoanStatus = "COMPLETED"
)

// Record is the closed set of values a store can hold. Every implementation
// lives in this package.
type Record interface {
	// RecordID returns the identifier the record is normally keyed under.
	RecordID() string
	// Collection returns the collection the record type belongs to.
	Collection() Collection
	isRecord()
}

// Person is someone referenced by conservation work, typically a restorer.
type Person struct {
	ID   string  `json:"id" cbor:"id"`
	Name string  `json:"name" cbor:"name"`
	Role *string `json:"role,omitempty" cbor:"role,omitempty"`
}

// Institution is a lender or borrower of artifacts.
type Institution struct {
	ID      string  `json:"id" cbor:"id"`
	Name    string  `json:"name" cbor:"name"`
	Address *string `json:"address,omitempty" cbor:"address,omitempty"`
}

// ArtifactVersion is a catalogued state of an artifact. Versions are owned by
// their artifact and are not stored in a collection of their own.
type ArtifactVersion struct {
	ID string `json:"id" cbor:"id"`
	// Timestamp is compared as a plain string when picking the current version.
	Timestamp string         `json:"timestamp" cbor:"timestamp"`
	Notes     string         `json:"notes" cbor:"notes"`
	Snapshot  map[string]any `json:"snapshot,omitempty" cbor:"snapshot,omitempty"`
}

// DigitalSurrogate is a digital file standing in for a physical artifact.
type DigitalSurrogate struct {
	ID            string  `json:"id" cbor:"id"`
	FileRef       string  `json:"file_ref" cbor:"file_ref"`
	FileType      string  `json:"file_type" cbor:"file_type"`
	DerivedFromID *string `json:"derived_from_id,omitempty" cbor:"derived_from_id,omitempty"`
	Checksum      string  `json:"checksum,omitempty" cbor:"checksum,omitempty"`
	SizeBytes     int64   `json:"size_bytes,omitempty" cbor:"size_bytes,omitempty"`
}

// PreviewInfo renders a one-line description of the surrogate file.
func (d DigitalSurrogate) PreviewInfo() string {
	return fmt.Sprintf("Preview(%s) -> %s (%s)", d.ID, d.FileRef, d.FileType)
}

// ConservationRecord documents one treatment applied to an artifact.
type ConservationRecord struct {
	ID string `json:"id" cbor:"id"`
	// Date is compared as a plain string when picking the latest record.
	Date             string   `json:"date" cbor:"date"`
	RestorerID       string   `json:"restorer_id" cbor:"restorer_id"`
	Treatment        string   `json:"treatment" cbor:"treatment"`
	BeforeSurrogates []string `json:"before_surrogates" cbor:"before_surrogates"`
	AfterSurrogates  []string `json:"after_surrogates" cbor:"after_surrogates"`
}

// Loan moves an artifact between two institutions for a period.
type Loan struct {
	ID              string     `json:"id" cbor:"id"`
	ArtifactID      string     `json:"artifact_id" cbor:"artifact_id"`
	FromInstitution string     `json:"from_inst" cbor:"from_inst"`
	ToInstitution   string     `json:"to_inst" cbor:"to_inst"`
	StartDate       string     `json:"start_date" cbor:"start_date"`
	EndDate         string     `json:"end_date" cbor:"end_date"`
	Status          LoanStatus `json:"status" cbor:"status"`
}

// ProvenanceEntry is one free-form step in an artifact's ownership history.
type ProvenanceEntry map[string]string

// Artifact is the central catalogue record. It owns its versions and refers to
// surrogates, conservation records and loans by identifier.
type Artifact struct {
	ID                  string             `json:"id" cbor:"id"`
	Title               string             `json:"title" cbor:"title"`
	Creator             string             `json:"creator" cbor:"creator"`
	DateCreated         string             `json:"date_created" cbor:"date_created"`
	Material            *string            `json:"material,omitempty" cbor:"material,omitempty"`
	Dimensions          map[string]float64 `json:"dimensions,omitempty" cbor:"dimensions,omitempty"`
	Provenance          []ProvenanceEntry  `json:"provenance" cbor:"provenance"`
	Versions            []ArtifactVersion  `json:"versions" cbor:"versions"`
	DigitalSurrogates   []string           `json:"digital_surrogates" cbor:"digital_surrogates"`
	ConservationRecords []string           `json:"conservation_records" cbor:"conservation_records"`
	Loans               []string           `json:"loans" cbor:"loans"`
}

// CurrentVersion returns the version with the greatest timestamp string. When
// several share that timestamp the one appearing last in Versions wins.
func (a Artifact) CurrentVersion() (ArtifactVersion, bool) {
	if len(a.Versions) == 0 {
		return ArtifactVersion{}, false
	}
	best := 0
	for i := 1; i < len(a.Versions); i++ {
		if a.Versions[i].Timestamp >= a.Versions[best].Timestamp {
			best = i
		}
	}
	return CloneArtifactVersion(a.Versions[best]), true
}

// HasMaterialLike reports whether the artifact material contains substr,
// ignoring case. Artifacts without a material, or with an empty one, never match.
func (a Artifact) HasMaterialLike(substr string) bool {
	if a.Material == nil || *a.Material == "" {
		return false
	}
	return strings.Contains(strings.ToLower(*a.Material), strings.ToLower(substr))
}

// TitleKey returns the case-folded title used by the title index.
func (a Artifact) TitleKey() string { return strings.ToLower(a.Title) }

// LatestConservation returns the record with the greatest date string. Ties go
// to the record appearing last in records.
func LatestConservation(records []ConservationRecord) (ConservationRecord, bool) {
	if len(records) == 0 {
		return ConservationRecord{}, false
	}
	best := 0
	for i := 1; i < len(records); i++ {
		if records[i].Date >= records[best].Date {
			best = i
		}
	}
	return records[best], true
}

// TitleIndex maps lower-cased artifact titles to artifact identifiers. It is
// maintained by the store and surfaced read-only under the indexes collection.
type TitleIndex map[string]string

func (Person) Collection() Collection             { return CollectionPeople }
func (Institution) Collection() Collection        { return CollectionInstitutions }
func (DigitalSurrogate) Collection() Collection   { return CollectionDigital }
func (ConservationRecord) Collection() Collection { return CollectionConservations }
func (Loan) Collection() Collection               { return CollectionLoans }
func (Artifact) Collection() Collection           { return CollectionArtifacts }
func (TitleIndex) Collection() Collection         { return CollectionIndexes }

func (p Person) RecordID() string             { return p.ID }
func (i Institution) RecordID() string        { return i.ID }
func (d DigitalSurrogate) RecordID() string   { return d.ID }
func (c ConservationRecord) RecordID() string { return c.ID }
func (l Loan) RecordID() string               { return l.ID }
func (a Artifact) RecordID() string           { return a.ID }
func (TitleIndex) RecordID() string           { return TitleIndexKey }

func (Person) isRecord()             {}
func (Institution) isRecord()        {}
func (DigitalSurrogate) isRecord()   {}
func (ConservationRecord) isRecord() {}
func (Loan) isRecord()               {}
func (Artifact) isRecord()           {}
func (TitleIndex) isRecord()         {}
