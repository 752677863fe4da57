package core

import "heritagestore/pkg/domain"

type (
	Record             = domain.Record
	Collection         = domain.Collection
	Person             = domain.Person
	Institution        = domain.Institution
	Artifact           = domain.Artifact
	ArtifactVersion    = domain.ArtifactVersion
	DigitalSurrogate   = domain.DigitalSurrogate
	ConservationRecord = domain.ConservationRecord
	Loan               = domain.Loan
	TitleIndex         = domain.TitleIndex
	RecordReader       = domain.RecordReader
	PersistentStore    = domain.PersistentStore
	Severity           = domain.Severity
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
