// Package edital defines the domain types shared by the extraction pipeline:
// the structured Record persisted per (institution, specialty), the field
// schema handed to language-model backends, and the collaborator interfaces
// the pipeline depends on.
package edital
