package templating

import (
	"strings"

	"mass-messaging/pkg/models"
)

// ContactField is a contact attribute an automatic variable reads from
type ContactField string

const (
	FieldName       ContactField = "name"
	FieldFirstName  ContactField = "first_name"
	FieldPhone      ContactField = "phone"
	FieldEmail      ContactField = "email"
	FieldDepartment ContactField = "department"
	FieldPosition   ContactField = "position"
)

// reserved maps lower-cased variable names to the field they read
var reserved = map[string]ContactField{
	"nombre":          FieldName,
	"name":            FieldName,
	"nombre_completo": FieldName,
	"full_name":       FieldName,
	"primer_nombre":   FieldFirstName,
	"first_name":      FieldFirstName,
	"telefono":        FieldPhone,
	"phone":           FieldPhone,
	"celular":         FieldPhone,
	"mobile":          FieldPhone,
	"email":           FieldEmail,
	"correo":          FieldEmail,
	"empresa":         FieldDepartment,
	"company":         FieldDepartment,
	"departamento":    FieldDepartment,
	"department":      FieldDepartment,
	"cargo":           FieldPosition,
	"position":        FieldPosition,
	"puesto":          FieldPosition,
	"role":            FieldPosition,
}

// LookupField reports the contact field a variable maps to, if any
func LookupField(variable string) (ContactField, bool) {
	f, ok := reserved[strings.ToLower(variable)]
	return f, ok
}

// Resolution partitions discovered variables. Every variable of Order is
// either a key of Automatic or an element of Custom.
type Resolution struct {
	Order     []string                `json:"order"`
	Automatic map[string]ContactField `json:"automatic"`
	Custom    []string                `json:"custom"`
}

// IsAutomatic reports whether variable is read from the contact
func (r Resolution) IsAutomatic(variable string) bool {
	_, ok := r.Automatic[variable]
	return ok
}

// VariableMapping is the lower-cased variable -> field descriptor sent to the
// chat template collaborator
func (r Resolution) VariableMapping() map[string]string {
	out := make(map[string]string, len(r.Automatic))
	for v, f := range r.Automatic {
		out[strings.ToLower(v)] = string(f)
	}
	return out
}

// Resolve classifies variables into automatic and custom
func Resolve(variables []string) Resolution {
	res := Resolution{
		Order:     append([]string{}, variables...),
		Automatic: map[string]ContactField{},
		Custom:    []string{},
	}
	for _, v := range variables {
		if f, ok := LookupField(v); ok {
			res.Automatic[v] = f
			continue
		}
		res.Custom = append(res.Custom, v)
	}
	return res
}

// FieldValue reads field from a contact. Missing data is an empty string.
func FieldValue(c models.ContactRecord, field ContactField) string {
	switch field {
	case FieldName:
		return strings.TrimSpace(c.Name)
	case FieldFirstName:
		if parts := strings.Fields(c.Name); len(parts) > 0 {
			return parts[0]
		}
		return ""
	case FieldPhone:
		return c.Phone
	case FieldEmail:
		return c.Email
	case FieldDepartment:
		return strings.TrimSpace(c.Department)
	case FieldPosition:
		return strings.TrimSpace(c.Position)
	}
	return ""
}

// CustomValues holds one operator-supplied value per custom variable
type CustomValues map[string]string

// Get returns the value for variable, matching case-insensitively when there
// is no exact entry. Unset variables yield "".
func (c CustomValues) Get(variable string) string {
	if v, ok := c[variable]; ok {
		return v
	}
	for k, v := range c {
		if strings.EqualFold(k, variable) {
			return v
		}
	}
	return ""
}

// Only keeps the entries named in variables, dropping values entered for
// variables that no longer exist.
func (c CustomValues) Only(variables []string) CustomValues {
	out := CustomValues{}
	for _, v := range variables {
		out[v] = c.Get(v)
	}
	return out
}
