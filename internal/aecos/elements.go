package aecos

import (
	"fmt"

	"github.com/quobo-ops/aecos/internal/aecerr"
	"github.com/quobo-ops/aecos/internal/element"
	"github.com/quobo-ops/aecos/internal/hashing"
)

// hashElementFolder degrades to an empty hash with a warning; the audit
// entry is still written.
func (a *AecOS) hashElementFolder(globalID string) string {
	h, err := hashing.HashFolder(a.elements.Folder(globalID))
	if err != nil {
		a.warnf("partial_side_effect: folder hash failed for %s: %v", globalID, err)
		return ""
	}
	return h
}

// CreateElement writes a new element folder and records the audit entry
// and scoped commit.
func (a *AecOS) CreateElement(ifcClass, name string, properties map[string]map[string]any, materials []element.MaterialLayer) (*element.Element, error) {
	if ifcClass == "" {
		return nil, aecerr.New(aecerr.InvalidArgument, "", "ifc_class must not be empty")
	}

	elem, err := a.elements.Create(element.CreateParams{
		IFCClass:   ifcClass,
		Name:       name,
		Properties: properties,
		Materials:  materials,
	})
	if err != nil {
		a.recordFailure("create_element", name)
		return nil, err
	}

	a.recordAudit("create_element", elem.GlobalID, "", a.hashElementFolder(elem.GlobalID))
	a.commitScope([]string{a.elements.Folder(elem.GlobalID)},
		fmt.Sprintf("feat: create element %s (%s)", elem.Name, ifcClass))
	return elem, nil
}

// GetElement loads an element by GlobalId.
func (a *AecOS) GetElement(globalID string) (*element.Element, error) {
	if globalID == "" {
		return nil, aecerr.New(aecerr.InvalidArgument, "", "element id must not be empty")
	}
	return a.elements.Get(globalID)
}

// UpdateElement applies a typed diff to an element and records the audit
// entry (with before/after folder hashes) and scoped commit.
func (a *AecOS) UpdateElement(globalID string, diff element.Diff) (*element.Element, error) {
	if globalID == "" {
		return nil, aecerr.New(aecerr.InvalidArgument, "", "element id must not be empty")
	}

	beforeHash, err := hashing.HashFolder(a.elements.Folder(globalID))
	if err != nil {
		beforeHash = ""
	}

	elem, err := a.elements.Update(globalID, diff)
	if err != nil {
		a.recordFailure("update_element", globalID)
		return nil, err
	}

	a.recordAudit("update_element", globalID, beforeHash, a.hashElementFolder(globalID))
	a.commitScope([]string{a.elements.Folder(globalID)},
		fmt.Sprintf("fix: update element %s", globalID))
	return elem, nil
}

// DeleteElement removes an element folder, reporting whether it existed.
func (a *AecOS) DeleteElement(globalID string) (bool, error) {
	if globalID == "" {
		return false, aecerr.New(aecerr.InvalidArgument, "", "element id must not be empty")
	}

	beforeHash, err := hashing.HashFolder(a.elements.Folder(globalID))
	if err != nil {
		beforeHash = ""
	}

	deleted, err := a.elements.Delete(globalID)
	if err != nil {
		a.recordFailure("delete_element", globalID)
		return false, err
	}
	if !deleted {
		return false, nil
	}

	a.recordAudit("delete_element", globalID, beforeHash, "")
	a.commitScope([]string{a.elements.Folder(globalID)},
		fmt.Sprintf("chore: delete element %s", globalID))
	return true, nil
}

// ListElements lists project elements, optionally filtered.
func (a *AecOS) ListElements(f element.ListFilter) ([]*element.Element, error) {
	return a.elements.List(f)
}
