package metadata

import (
	"fmt"
	"sort"
	"strings"
)

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func displayName(d folderData) string {
	if d.meta.Name != "" {
		return d.meta.Name
	}
	if d.meta.GlobalID != "" {
		return d.meta.GlobalID
	}
	return "Unknown"
}

func ifcClass(d folderData) string {
	if d.meta.IFCClass != "" {
		return d.meta.IFCClass
	}
	return "Unknown"
}

func manifestTags(d folderData) map[string]any {
	if d.manifest == nil {
		return nil
	}
	tags, _ := d.manifest["tags"].(map[string]any)
	return tags
}

func tagList(tags map[string]any, field string) []string {
	raw, _ := tags[field].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, fmt.Sprintf("%v", v))
	}
	return out
}

func renderReadme(d folderData) string {
	var b strings.Builder
	isTemplate := d.manifest != nil

	if isTemplate {
		fmt.Fprintf(&b, "# Template: %s\n\n", displayName(d))
	} else {
		fmt.Fprintf(&b, "# %s\n\n", displayName(d))
	}

	b.WriteString("| Field | Value |\n")
	b.WriteString("|---|---|\n")
	fmt.Fprintf(&b, "| IFC Class | `%s` |\n", ifcClass(d))
	fmt.Fprintf(&b, "| GlobalId | `%s` |\n", d.meta.GlobalID)
	if d.meta.ObjectType != nil && *d.meta.ObjectType != "" {
		fmt.Fprintf(&b, "| Object Type | %s |\n", *d.meta.ObjectType)
	}
	if isTemplate {
		if v, _ := d.manifest["version"].(string); v != "" {
			fmt.Fprintf(&b, "| Version | %s |\n", v)
		}
		if a, _ := d.manifest["author"].(string); a != "" {
			fmt.Fprintf(&b, "| Author | %s |\n", a)
		}
	}
	b.WriteString("\n")

	if isTemplate {
		if desc, _ := d.manifest["description"].(string); desc != "" {
			b.WriteString("## Description\n\n")
			b.WriteString(desc)
			b.WriteString("\n\n")
		}
	}

	if len(d.psets) > 0 {
		b.WriteString("## Properties\n\n")
		for _, psetName := range sortedKeys(d.psets) {
			fmt.Fprintf(&b, "**%s**\n\n", psetName)
			props := d.psets[psetName]
			for _, propName := range sortedKeys(props) {
				fmt.Fprintf(&b, "- %s: `%v`\n", propName, props[propName])
			}
			b.WriteString("\n")
		}
	}

	if len(d.materials) > 0 {
		b.WriteString("## Materials\n\n")
		b.WriteString("| Material | Thickness | Category |\n")
		b.WriteString("|---|---|---|\n")
		for _, mat := range d.materials {
			name, _ := mat["name"].(string)
			thick := "—"
			if t, ok := mat["thickness"]; ok && t != nil {
				thick = fmt.Sprintf("%v", t)
			}
			category := ""
			if c, ok := mat["category"]; ok && c != nil {
				category = fmt.Sprintf("%v", c)
			}
			fmt.Fprintf(&b, "| %s | %s | %s |\n", name, thick, category)
		}
		b.WriteString("\n")
	}

	writeSpatial(&b, d, "## Spatial Location")

	if isTemplate {
		if tags := manifestTags(d); tags != nil {
			var parts []string
			for _, field := range []string{"material", "region", "compliance_codes", "custom"} {
				parts = append(parts, tagList(tags, field)...)
			}
			if len(parts) > 0 {
				b.WriteString("## Tags\n\n")
				quoted := make([]string, len(parts))
				for i, p := range parts {
					quoted[i] = "`" + p + "`"
				}
				b.WriteString(strings.Join(quoted, ", "))
				b.WriteString("\n\n")
			}
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func spatialString(d folderData, key string) string {
	v, ok := d.spatial[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func writeSpatial(b *strings.Builder, d folderData, heading string) {
	site := spatialString(d, "site_name")
	building := spatialString(d, "building_name")
	storey := spatialString(d, "storey_name")
	if site == "" && building == "" && storey == "" {
		return
	}
	b.WriteString(heading + "\n\n")
	if site != "" {
		fmt.Fprintf(b, "- Site: %s\n", site)
	}
	if building != "" {
		fmt.Fprintf(b, "- Building: %s\n", building)
	}
	if storey != "" {
		fmt.Fprintf(b, "- Storey: %s\n", storey)
	}
	b.WriteString("\n")
}

func renderUsage(d folderData) string {
	var b strings.Builder
	isTemplate := d.manifest != nil

	if isTemplate {
		fmt.Fprintf(&b, "# Usage — Template: %s\n\n", displayName(d))
	} else {
		fmt.Fprintf(&b, "# Usage — %s\n\n", displayName(d))
	}
	fmt.Fprintf(&b, "**IFC Class:** `%s`\n\n", ifcClass(d))

	b.WriteString("## Insertion\n\n")
	if isTemplate {
		b.WriteString("This template can be instantiated into a project through the AEC OS facade:\n\n")
		b.WriteString("```\n")
		fmt.Fprintf(&b, "aecos generate --template %s\n", d.meta.GlobalID)
		b.WriteString("```\n")
	} else {
		b.WriteString("To promote this element to a reusable template:\n\n")
		b.WriteString("```\n")
		fmt.Fprintf(&b, "aecos template promote %s\n", d.meta.GlobalID)
		b.WriteString("```\n")
	}
	b.WriteString("\n")

	site := spatialString(d, "site_name")
	building := spatialString(d, "building_name")
	storey := spatialString(d, "storey_name")
	if site != "" || building != "" || storey != "" {
		b.WriteString("## Original Location\n\n")
		var parts []string
		for _, p := range []string{site, building, storey} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		b.WriteString(strings.Join(parts, " > "))
		b.WriteString("\n\n")
	}

	if isTemplate {
		if tags := manifestTags(d); tags != nil {
			if regions := tagList(tags, "region"); len(regions) > 0 {
				b.WriteString("## Region\n\n")
				b.WriteString(strings.Join(regions, ", "))
				b.WriteString("\n\n")
			}
		}
	}

	b.WriteString("## Notes\n\n")
	b.WriteString("- Validate compliance before inserting into production models\n")
	b.WriteString("- Check spatial coordination and clash detection after placement\n")

	return b.String()
}

func renderCompliancePlaceholder(d folderData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Compliance — %s\n\n", displayName(d))
	fmt.Fprintf(&b, "**IFC Class:** `%s`\n\n", ifcClass(d))

	if tags := manifestTags(d); tags != nil {
		if codes := tagList(tags, "compliance_codes"); len(codes) > 0 {
			b.WriteString("## Applicable Codes\n\n")
			for _, code := range codes {
				fmt.Fprintf(&b, "- %s\n", code)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Property Sets\n\n")
	if len(d.psets) > 0 {
		for _, psetName := range sortedKeys(d.psets) {
			fmt.Fprintf(&b, "### %s\n\n", psetName)
			props := d.psets[psetName]
			for _, propName := range sortedKeys(props) {
				fmt.Fprintf(&b, "- %s: `%v`\n", propName, props[propName])
			}
			b.WriteString("\n")
		}
	} else {
		b.WriteString("No property sets recorded.\n\n")
	}

	b.WriteString("## Status\n\n")
	b.WriteString("> No compliance check has been run against this folder yet.\n")
	b.WriteString("> Run a compliance check to replace this placeholder with rule results.")

	return b.String()
}

func renderCostPlaceholder(d folderData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Cost Data — %s\n\n", displayName(d))
	fmt.Fprintf(&b, "**IFC Class:** `%s`\n\n", ifcClass(d))

	if len(d.materials) > 0 {
		b.WriteString("## Materials\n\n")
		b.WriteString("| Material | Thickness |\n")
		b.WriteString("|---|---|\n")
		for _, mat := range d.materials {
			name, _ := mat["name"].(string)
			thick := "—"
			if t, ok := mat["thickness"]; ok && t != nil {
				thick = fmt.Sprintf("%v", t)
			}
			fmt.Fprintf(&b, "| %s | %s |\n", name, thick)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Unit Cost\n\n")
	b.WriteString("> No cost estimate has been run against this folder yet.\n\n")
	b.WriteString("## Total Installed Cost\n\n")
	b.WriteString("> No cost estimate has been run against this folder yet.\n\n")
	b.WriteString("## Schedule\n\n")
	b.WriteString("> No schedule estimate has been run against this folder yet.")

	return b.String()
}
