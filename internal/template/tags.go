// Package template implements the content-addressed registry of reusable
// element folders. A template is an element folder named template_<id> plus
// a template_manifest.json carrying its tags, version, author, and
// description; registry.json at the library root is the canonical index.
package template

import "strings"

// Tags is the structured tag set attached to every template. All fields are
// optional; a freshly promoted element may carry only the IFC class.
type Tags struct {
	IFCClass        *string  `json:"ifc_class"`
	Material        []string `json:"material"`
	Region          []string `json:"region"`
	ComplianceCodes []string `json:"compliance_codes"`
	Custom          []string `json:"custom"`
}

// Query is a search filter over templates. List-valued fields pass when
// their intersection with the template's tag set is non-empty; Tags must
// all be present across the union of tag fields; Keyword is a substring
// search over every tag string; Description is a substring match on the
// registry entry description. Set fields combine with AND.
type Query struct {
	IFCClass        string
	Material        []string
	Region          []string
	ComplianceCodes []string
	Tags            []string
	Keyword         string
	Description     string
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func anyIn(needles, haystack []string) bool {
	set := map[string]bool{}
	for _, h := range haystack {
		set[h] = true
	}
	for _, n := range needles {
		if set[strings.ToLower(n)] {
			return true
		}
	}
	return false
}

// Matches reports whether the tag set satisfies every filter in q except
// Description (which applies to the registry entry, not the tags).
func (t Tags) Matches(q Query) bool {
	if q.IFCClass != "" {
		if t.IFCClass == nil || !strings.EqualFold(*t.IFCClass, q.IFCClass) {
			return false
		}
	}
	if len(q.Material) > 0 && !anyIn(q.Material, lowerAll(t.Material)) {
		return false
	}
	if len(q.Region) > 0 && !anyIn(q.Region, lowerAll(t.Region)) {
		return false
	}
	if len(q.ComplianceCodes) > 0 && !anyIn(q.ComplianceCodes, lowerAll(t.ComplianceCodes)) {
		return false
	}

	if len(q.Tags) > 0 {
		all := map[string]bool{}
		for _, group := range [][]string{t.Material, t.Region, t.ComplianceCodes, t.Custom} {
			for _, s := range group {
				all[strings.ToLower(s)] = true
			}
		}
		for _, needed := range q.Tags {
			if !all[strings.ToLower(needed)] {
				return false
			}
		}
	}

	if q.Keyword != "" {
		var parts []string
		if t.IFCClass != nil {
			parts = append(parts, *t.IFCClass)
		}
		parts = append(parts, t.Material...)
		parts = append(parts, t.Region...)
		parts = append(parts, t.ComplianceCodes...)
		parts = append(parts, t.Custom...)
		blob := strings.ToLower(strings.Join(parts, " "))
		if !strings.Contains(blob, strings.ToLower(q.Keyword)) {
			return false
		}
	}

	return true
}
