package models

import "fmt"

// ProvenanceKind identifies where a contact record entered the selection
type ProvenanceKind string

const (
	ProvenanceManual    ProvenanceKind = "manual"
	ProvenanceBulk      ProvenanceKind = "bulk"
	ProvenanceGroup     ProvenanceKind = "group"
	ProvenanceDirectory ProvenanceKind = "directory"
)

// Provenance is the origin of a contact record. GroupID is set for group
// contacts, SourceID carries the id the origin system knows the contact by.
type Provenance struct {
	Kind     ProvenanceKind `json:"kind"`
	GroupID  uint           `json:"group_id,omitempty"`
	SourceID string         `json:"source_id,omitempty"`
}

func (p Provenance) String() string {
	switch p.Kind {
	case ProvenanceGroup:
		return fmt.Sprintf("group:%d", p.GroupID)
	case ProvenanceDirectory:
		return "directory:" + p.SourceID
	default:
		return string(p.Kind)
	}
}

// ContactRecord is a recipient in the active selection
type ContactRecord struct {
	Key        string     `json:"key"` // Opaque unique key, never parsed
	Provenance Provenance `json:"provenance"`
	Name       string     `json:"name"`
	Phone      string     `json:"phone,omitempty"`
	Email      string     `json:"email,omitempty"`
	Department string     `json:"department,omitempty"`
	Position   string     `json:"position,omitempty"`
}

// DirectoryContact is a contact as returned by the remote contact directory
type DirectoryContact struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Department string `json:"department,omitempty"`
	Position   string `json:"position,omitempty"`
}

// GroupMember is a contact scoped to one saved group
type GroupMember struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// GroupContacts holds the members fetched for one group
type GroupContacts struct {
	GroupID uint          `json:"group_id"`
	Members []GroupMember `json:"members"`
}
