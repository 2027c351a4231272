package aecos

import (
	"fmt"
	"path/filepath"

	"github.com/quobo-ops/aecos/internal/aecerr"
	"github.com/quobo-ops/aecos/internal/element"
	"github.com/quobo-ops/aecos/internal/hashing"
	"github.com/quobo-ops/aecos/internal/logging"
	"github.com/quobo-ops/aecos/internal/template"
)

func (a *AecOS) hashFolderOrWarn(folder, subject string) string {
	h, err := hashing.HashFolder(folder)
	if err != nil {
		a.warnf("partial_side_effect: folder hash failed for %s: %v", subject, err)
		return ""
	}
	return h
}

// registryPath returns the library index path, always part of the commit
// scope of a template mutation.
func (a *AecOS) registryPath() string {
	return filepath.Join(a.library.Root(), template.RegistryFile)
}

// AddTemplate copies a source folder into the library under the given id.
func (a *AecOS) AddTemplate(id, sourceFolder string, p template.AddParams) (string, error) {
	dest, err := a.library.Add(id, sourceFolder, p)
	if err != nil {
		a.recordFailure("add_template", id)
		return "", err
	}

	a.recordAudit("add_template", id, "", a.hashFolderOrWarn(dest, id))
	a.commitScope([]string{dest, a.registryPath()}, fmt.Sprintf("feat: add template %s", id))
	return dest, nil
}

// GetTemplate returns the folder path of a template.
func (a *AecOS) GetTemplate(id string) (string, error) {
	if id == "" {
		return "", aecerr.New(aecerr.InvalidArgument, "", "template id must not be empty")
	}
	return a.library.Get(id)
}

// GetTemplateManifest returns a template's parsed manifest.
func (a *AecOS) GetTemplateManifest(id string) (*template.Manifest, error) {
	return a.library.GetManifest(id)
}

// UpdateTemplate rewrites template metadata.
func (a *AecOS) UpdateTemplate(id string, p template.UpdateParams) (string, error) {
	beforeHash := ""
	if folder, err := a.library.Get(id); err == nil {
		beforeHash = a.hashFolderOrWarn(folder, id)
	}

	folder, err := a.library.Update(id, p)
	if err != nil {
		a.recordFailure("update_template", id)
		return "", err
	}

	a.recordAudit("update_template", id, beforeHash, a.hashFolderOrWarn(folder, id))
	a.commitScope([]string{folder, a.registryPath()}, fmt.Sprintf("fix: update template %s", id))
	return folder, nil
}

// RemoveTemplate deletes a template, reporting whether it existed.
func (a *AecOS) RemoveTemplate(id string) (bool, error) {
	if id == "" {
		return false, aecerr.New(aecerr.InvalidArgument, "", "template id must not be empty")
	}

	folder := a.library.Folder(id)
	beforeHash := ""
	if _, err := a.library.Get(id); err == nil {
		beforeHash = a.hashFolderOrWarn(folder, id)
	}

	removed, err := a.library.Remove(id)
	if err != nil {
		a.recordFailure("remove_template", id)
		return false, err
	}
	if !removed {
		return false, nil
	}

	a.recordAudit("remove_template", id, beforeHash, "")
	a.commitScope([]string{folder, a.registryPath()}, fmt.Sprintf("chore: remove template %s", id))
	return true, nil
}

// PromoteToTemplate registers an element as a reusable template. The id
// derives from the element's GlobalId unless one is given.
func (a *AecOS) PromoteToTemplate(globalID string, id string, p template.AddParams) (string, error) {
	if globalID == "" {
		return "", aecerr.New(aecerr.InvalidArgument, "", "element id must not be empty")
	}

	dest, err := a.library.Promote(a.elements.Folder(globalID), id, p)
	if err != nil {
		a.recordFailure("promote_to_template", globalID)
		return "", err
	}

	a.recordAudit("promote_to_template", filepath.Base(dest), "", a.hashFolderOrWarn(dest, globalID))
	a.commitScope([]string{dest, a.registryPath()},
		fmt.Sprintf("feat: promote element to template %s", filepath.Base(dest)))
	return dest, nil
}

// BulkPromote promotes several elements in one operation: one audit entry,
// one commit covering every new template folder.
func (a *AecOS) BulkPromote(globalIDs []string, p template.AddParams) ([]string, error) {
	if len(globalIDs) == 0 {
		return nil, aecerr.New(aecerr.InvalidArgument, "", "no element ids given")
	}

	var promoted []string
	for _, id := range globalIDs {
		dest, err := a.library.Promote(a.elements.Folder(id), "", p)
		if err != nil {
			logging.Get(logging.CategoryFacade).Warnf("skipping %s: %v", id, err)
			a.warnf("bulk promote skipped %s: %v", id, err)
			continue
		}
		promoted = append(promoted, dest)
	}
	if len(promoted) == 0 {
		a.recordFailure("bulk_promote", fmt.Sprintf("%d elements", len(globalIDs)))
		return nil, aecerr.New(aecerr.NotFound, "", "no elements could be promoted")
	}

	a.recordAudit("bulk_promote", fmt.Sprintf("%d templates", len(promoted)), "", "")
	a.commitScope(append(append([]string{}, promoted...), a.registryPath()),
		fmt.Sprintf("feat: promote %d elements to templates", len(promoted)))
	return promoted, nil
}

// SearchTemplates queries the template library.
func (a *AecOS) SearchTemplates(q template.Query) []template.Entry {
	return a.library.Search(q)
}

// SearchResults is the combined outcome of a unified search.
type SearchResults struct {
	Elements  []*element.Element
	Templates []template.Entry
}

// Total counts all hits.
func (r SearchResults) Total() int { return len(r.Elements) + len(r.Templates) }

// SearchFilter narrows a unified search across elements and templates.
type SearchFilter struct {
	IFCClass string
	Material string
	Name     string
	Region   string
	Keyword  string
}

// Search queries project elements and the template library in one call.
func (a *AecOS) Search(f SearchFilter) (SearchResults, error) {
	var results SearchResults

	elems, err := a.elements.List(element.ListFilter{
		IFCClass: f.IFCClass,
		Name:     f.Name,
		Material: f.Material,
	})
	if err != nil {
		return results, err
	}
	results.Elements = elems

	q := template.Query{IFCClass: f.IFCClass, Keyword: f.Keyword}
	if f.Material != "" {
		q.Material = []string{f.Material}
	}
	if f.Region != "" {
		q.Region = []string{f.Region}
	}
	results.Templates = a.library.Search(q)

	return results, nil
}
