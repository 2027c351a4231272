// Package vcs implements the scoped commit log over the project tree as a
// thin facade over an embedded git implementation (go-git). No git binary
// is required.
package vcs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/quobo-ops/aecos/internal/aecerr"
	"github.com/quobo-ops/aecos/internal/logging"
)

const defaultGitignore = `# AEC OS temporaries
*.log
*.tmp
.aecos/
.aecos.lock
.regulatory_backups/

# Large binary outputs
*.obj
*.stl
*.fbx

# OS files
.DS_Store
Thumbs.db
`

const defaultGitattributes = `# Consistent line endings for text artifacts
*.json text eol=lf
*.md text eol=lf

# IFC files tracked via Git LFS when available
*.ifc filter=lfs diff=lfs merge=lfs -text
`

// LogEntry is a single entry from the commit history.
type LogEntry struct {
	Commit  string
	Author  string
	Date    time.Time
	Message string
}

// VersionLog manages the repository rooted at the project directory.
type VersionLog struct {
	root   string
	repo   *git.Repository
	author string
	email  string
}

// Open opens the repository at root, initializing one (with AEC OS defaults
// and a root commit) if none exists.
func Open(root string) (*VersionLog, error) {
	v := &VersionLog{
		root:   root,
		author: "AEC OS",
		email:  "aecos@localhost",
	}

	repo, err := git.PlainOpen(root)
	if err == git.ErrRepositoryNotExists {
		return v, v.init()
	}
	if err != nil {
		return nil, aecerr.Wrap(aecerr.IO, root, "failed to open repository", err)
	}
	v.repo = repo
	return v, nil
}

// SetAuthor overrides the commit signature identity.
func (v *VersionLog) SetAuthor(name, email string) {
	if name != "" {
		v.author = name
	}
	if email != "" {
		v.email = email
	}
}

// init creates the repository, stages the ignore/attributes defaults, and
// records the root commit.
func (v *VersionLog) init() error {
	if err := os.MkdirAll(v.root, 0o755); err != nil {
		return aecerr.Wrap(aecerr.IO, v.root, "failed to create repository directory", err)
	}
	repo, err := git.PlainInit(v.root, false)
	if err != nil {
		return aecerr.Wrap(aecerr.IO, v.root, "failed to initialize repository", err)
	}
	v.repo = repo

	for name, content := range map[string]string{
		".gitignore":     defaultGitignore,
		".gitattributes": defaultGitattributes,
	} {
		path := filepath.Join(v.root, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return aecerr.Wrap(aecerr.IO, path, "failed to write repository defaults", err)
		}
	}

	if _, err := v.CommitScope([]string{".gitignore", ".gitattributes"}, "chore: initialise repository"); err != nil {
		return err
	}
	logging.Get(logging.CategoryVCS).Infof("initialised repository at %s", v.root)
	return nil
}

func (v *VersionLog) signature() *object.Signature {
	return &object.Signature{Name: v.author, Email: v.email, When: time.Now()}
}

// rel converts a path (absolute or repository-relative) into the
// slash-separated repository-relative form go-git expects.
func (v *VersionLog) rel(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(path), nil
	}
	r, err := filepath.Rel(v.root, path)
	if err != nil || strings.HasPrefix(r, "..") {
		return "", aecerr.New(aecerr.InvalidArgument, path, "path is outside the repository")
	}
	return filepath.ToSlash(r), nil
}

// CommitScope stages exactly the listed paths and records one commit,
// returning an opaque short identifier. An empty diff returns an empty
// token and no commit.
func (v *VersionLog) CommitScope(paths []string, message string) (string, error) {
	wt, err := v.repo.Worktree()
	if err != nil {
		return "", aecerr.Wrap(aecerr.IO, v.root, "failed to open worktree", err)
	}

	for _, p := range paths {
		r, err := v.rel(p)
		if err != nil {
			return "", err
		}
		if _, statErr := os.Stat(filepath.Join(v.root, filepath.FromSlash(r))); os.IsNotExist(statErr) {
			// The path is gone from the worktree; stage the deletion of
			// every index entry underneath it.
			if err := v.stageDeletion(wt, r); err != nil {
				return "", aecerr.Wrap(aecerr.IO, p, "failed to stage deletion", err)
			}
			continue
		}
		if err := wt.AddWithOptions(&git.AddOptions{Path: r}); err != nil {
			return "", aecerr.Wrap(aecerr.IO, p, "failed to stage path", err)
		}
	}

	status, err := wt.Status()
	if err != nil {
		return "", aecerr.Wrap(aecerr.IO, v.root, "failed to read status", err)
	}
	staged := false
	for _, st := range status {
		if st.Staging != git.Unmodified && st.Staging != git.Untracked {
			staged = true
			break
		}
	}
	if !staged {
		return "", nil
	}

	var hash plumbing.Hash
	commit := func() error {
		h, err := wt.Commit(message, &git.CommitOptions{Author: v.signature()})
		if err != nil {
			return err
		}
		hash = h
		return nil
	}
	// A second writer holding the index briefly is transient; retry before
	// surfacing the failure.
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 3)
	if err := backoff.Retry(commit, policy); err != nil {
		return "", aecerr.Wrap(aecerr.Conflict, v.root, "failed to commit", err)
	}

	logging.Get(logging.CategoryVCS).Debugf("committed %s: %s", hash.String()[:7], message)
	return hash.String()[:7], nil
}

// stageDeletion removes every index entry at or under rel.
func (v *VersionLog) stageDeletion(wt *git.Worktree, rel string) error {
	idx, err := v.repo.Storer.Index()
	if err != nil {
		return err
	}
	var names []string
	for _, entry := range idx.Entries {
		if entry.Name == rel || strings.HasPrefix(entry.Name, rel+"/") {
			names = append(names, entry.Name)
		}
	}
	for _, name := range names {
		if _, err := wt.Remove(name); err != nil {
			return err
		}
	}
	return nil
}

// CommitAll stages every pending change and records one commit. Returns an
// empty token when the tree is already clean.
func (v *VersionLog) CommitAll(message string) (string, error) {
	wt, err := v.repo.Worktree()
	if err != nil {
		return "", aecerr.Wrap(aecerr.IO, v.root, "failed to open worktree", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", aecerr.Wrap(aecerr.IO, v.root, "failed to stage changes", err)
	}

	status, err := wt.Status()
	if err != nil {
		return "", aecerr.Wrap(aecerr.IO, v.root, "failed to read status", err)
	}
	staged := false
	for _, st := range status {
		if st.Staging != git.Unmodified && st.Staging != git.Untracked {
			staged = true
			break
		}
	}
	if !staged {
		return "", nil
	}

	hash, err := wt.Commit(message, &git.CommitOptions{Author: v.signature()})
	if err != nil {
		return "", aecerr.Wrap(aecerr.Conflict, v.root, "failed to commit", err)
	}
	return hash.String()[:7], nil
}

// History returns up to limit commits touching path, newest first.
func (v *VersionLog) History(path string, limit int) ([]LogEntry, error) {
	r, err := v.rel(path)
	if err != nil {
		return nil, err
	}
	head, err := v.repo.Head()
	if err != nil {
		return nil, aecerr.Wrap(aecerr.IO, v.root, "failed to resolve HEAD", err)
	}

	iter, err := v.repo.Log(&git.LogOptions{
		From: head.Hash(),
		PathFilter: func(p string) bool {
			return p == r || strings.HasPrefix(p, r+"/")
		},
	})
	if err != nil {
		return nil, aecerr.Wrap(aecerr.IO, v.root, "failed to read log", err)
	}
	defer iter.Close()

	var entries []LogEntry
	for {
		if limit > 0 && len(entries) >= limit {
			break
		}
		c, err := iter.Next()
		if err != nil {
			break
		}
		entries = append(entries, LogEntry{
			Commit:  c.Hash.String()[:7],
			Author:  c.Author.Name,
			Date:    c.Author.When,
			Message: strings.TrimRight(c.Message, "\n"),
		})
	}
	return entries, nil
}

// Diff returns the textual diff of path between two revision selectors.
func (v *VersionLog) Diff(path, revA, revB string) (string, error) {
	r, err := v.rel(path)
	if err != nil {
		return "", err
	}

	treeA, err := v.treeAt(revA)
	if err != nil {
		return "", err
	}
	treeB, err := v.treeAt(revB)
	if err != nil {
		return "", err
	}

	changes, err := object.DiffTree(treeA, treeB)
	if err != nil {
		return "", aecerr.Wrap(aecerr.IO, v.root, "failed to diff trees", err)
	}

	var b strings.Builder
	for _, change := range changes {
		name := change.To.Name
		if name == "" {
			name = change.From.Name
		}
		if name != r && !strings.HasPrefix(name, r+"/") {
			continue
		}
		patch, err := change.Patch()
		if err != nil {
			return "", aecerr.Wrap(aecerr.IO, v.root, "failed to render patch", err)
		}
		b.WriteString(patch.String())
	}
	return b.String(), nil
}

func (v *VersionLog) treeAt(rev string) (*object.Tree, error) {
	hash, err := v.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, aecerr.Wrap(aecerr.NotFound, rev, "failed to resolve revision", err)
	}
	commit, err := v.repo.CommitObject(*hash)
	if err != nil {
		return nil, aecerr.Wrap(aecerr.NotFound, rev, "failed to load commit", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, aecerr.Wrap(aecerr.IO, rev, "failed to load tree", err)
	}
	return tree, nil
}

// Branch creates a branch from base (HEAD when empty) and switches to it.
func (v *VersionLog) Branch(name, base string) error {
	var hash plumbing.Hash
	if base == "" {
		head, err := v.repo.Head()
		if err != nil {
			return aecerr.Wrap(aecerr.IO, v.root, "failed to resolve HEAD", err)
		}
		hash = head.Hash()
	} else {
		h, err := v.repo.ResolveRevision(plumbing.Revision(base))
		if err != nil {
			return aecerr.Wrap(aecerr.NotFound, base, "failed to resolve base revision", err)
		}
		hash = *h
	}

	wt, err := v.repo.Worktree()
	if err != nil {
		return aecerr.Wrap(aecerr.IO, v.root, "failed to open worktree", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Hash:   hash,
		Create: true,
	}); err != nil {
		return aecerr.Wrap(aecerr.Conflict, name, "failed to create branch", err)
	}
	logging.Get(logging.CategoryVCS).Infof("created branch %s", name)
	return nil
}

// Switch checks out an existing branch.
func (v *VersionLog) Switch(name string) error {
	wt, err := v.repo.Worktree()
	if err != nil {
		return aecerr.Wrap(aecerr.IO, v.root, "failed to open worktree", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
	}); err != nil {
		return aecerr.Wrap(aecerr.NotFound, name, "failed to switch branch", err)
	}
	return nil
}

// Merge merges source into target (the current branch when target is
// empty) with a merge commit carrying both parents. Divergent histories
// (target not an ancestor of source) are a conflict the caller must resolve
// externally.
func (v *VersionLog) Merge(source, target, message string) (string, error) {
	if target != "" {
		if err := v.Switch(target); err != nil {
			return "", err
		}
	}

	head, err := v.repo.Head()
	if err != nil {
		return "", aecerr.Wrap(aecerr.IO, v.root, "failed to resolve HEAD", err)
	}
	sourceHash, err := v.repo.ResolveRevision(plumbing.Revision(source))
	if err != nil {
		return "", aecerr.Wrap(aecerr.NotFound, source, "failed to resolve source branch", err)
	}

	targetCommit, err := v.repo.CommitObject(head.Hash())
	if err != nil {
		return "", aecerr.Wrap(aecerr.IO, v.root, "failed to load target commit", err)
	}
	sourceCommit, err := v.repo.CommitObject(*sourceHash)
	if err != nil {
		return "", aecerr.Wrap(aecerr.IO, v.root, "failed to load source commit", err)
	}

	isAncestor, err := targetCommit.IsAncestor(sourceCommit)
	if err != nil {
		return "", aecerr.Wrap(aecerr.IO, v.root, "failed to walk commit graph", err)
	}
	if !isAncestor {
		return "", aecerr.New(aecerr.Conflict, source,
			"branches have diverged; resolve the merge externally")
	}

	if message == "" {
		message = fmt.Sprintf("Merge branch '%s'", source)
	}

	merge := &object.Commit{
		Author:       *v.signature(),
		Committer:    *v.signature(),
		Message:      message,
		TreeHash:     sourceCommit.TreeHash,
		ParentHashes: []plumbing.Hash{head.Hash(), *sourceHash},
	}
	obj := v.repo.Storer.NewEncodedObject()
	if err := merge.Encode(obj); err != nil {
		return "", aecerr.Wrap(aecerr.IO, v.root, "failed to encode merge commit", err)
	}
	mergeHash, err := v.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return "", aecerr.Wrap(aecerr.IO, v.root, "failed to store merge commit", err)
	}

	if err := v.repo.Storer.SetReference(plumbing.NewHashReference(head.Name(), mergeHash)); err != nil {
		return "", aecerr.Wrap(aecerr.IO, v.root, "failed to advance branch", err)
	}

	wt, err := v.repo.Worktree()
	if err != nil {
		return "", aecerr.Wrap(aecerr.IO, v.root, "failed to open worktree", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: head.Name(), Force: true}); err != nil {
		return "", aecerr.Wrap(aecerr.IO, v.root, "failed to update worktree", err)
	}

	short := mergeHash.String()[:7]
	logging.Get(logging.CategoryVCS).Infof("merged %s into %s (%s)", source, head.Name().Short(), short)
	return short, nil
}

// ListBranches returns local branch names.
func (v *VersionLog) ListBranches() ([]string, error) {
	iter, err := v.repo.Branches()
	if err != nil {
		return nil, aecerr.Wrap(aecerr.IO, v.root, "failed to list branches", err)
	}
	defer iter.Close()

	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, aecerr.Wrap(aecerr.IO, v.root, "failed to iterate branches", err)
	}
	return names, nil
}

// DeleteBranch removes a local branch. Deleting the current branch is a
// conflict.
func (v *VersionLog) DeleteBranch(name string) error {
	head, err := v.repo.Head()
	if err == nil && head.Name().Short() == name {
		return aecerr.New(aecerr.Conflict, name, "cannot delete the current branch")
	}
	ref := plumbing.NewBranchReferenceName(name)
	if _, err := v.repo.Reference(ref, false); err != nil {
		return aecerr.New(aecerr.NotFound, name, "branch does not exist")
	}
	if err := v.repo.Storer.RemoveReference(ref); err != nil {
		return aecerr.Wrap(aecerr.IO, name, "failed to delete branch", err)
	}
	return nil
}

// CurrentBranch returns the short name of the checked-out branch.
func (v *VersionLog) CurrentBranch() (string, error) {
	head, err := v.repo.Head()
	if err != nil {
		return "", aecerr.Wrap(aecerr.IO, v.root, "failed to resolve HEAD", err)
	}
	return head.Name().Short(), nil
}

// Tag records an annotated tag at HEAD.
func (v *VersionLog) Tag(name, message string) error {
	head, err := v.repo.Head()
	if err != nil {
		return aecerr.Wrap(aecerr.IO, v.root, "failed to resolve HEAD", err)
	}
	if _, err := v.repo.CreateTag(name, head.Hash(), &git.CreateTagOptions{
		Tagger:  v.signature(),
		Message: message,
	}); err != nil {
		return aecerr.Wrap(aecerr.Conflict, name, "failed to create tag", err)
	}
	return nil
}

// Tags returns the names of all tags.
func (v *VersionLog) Tags() ([]string, error) {
	iter, err := v.repo.Tags()
	if err != nil {
		return nil, aecerr.Wrap(aecerr.IO, v.root, "failed to list tags", err)
	}
	defer iter.Close()

	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, aecerr.Wrap(aecerr.IO, v.root, "failed to iterate tags", err)
	}
	return names, nil
}

// Status returns a porcelain-style summary of the working tree.
func (v *VersionLog) Status() (string, error) {
	wt, err := v.repo.Worktree()
	if err != nil {
		return "", aecerr.Wrap(aecerr.IO, v.root, "failed to open worktree", err)
	}
	status, err := wt.Status()
	if err != nil {
		return "", aecerr.Wrap(aecerr.IO, v.root, "failed to read status", err)
	}
	return status.String(), nil
}

// IsClean reports whether the working tree equals HEAD.
func (v *VersionLog) IsClean() (bool, error) {
	wt, err := v.repo.Worktree()
	if err != nil {
		return false, aecerr.Wrap(aecerr.IO, v.root, "failed to open worktree", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, aecerr.Wrap(aecerr.IO, v.root, "failed to read status", err)
	}
	return status.IsClean(), nil
}

// CommitCount returns the number of commits reachable from HEAD.
func (v *VersionLog) CommitCount() (int, error) {
	head, err := v.repo.Head()
	if err != nil {
		return 0, aecerr.Wrap(aecerr.IO, v.root, "failed to resolve HEAD", err)
	}
	iter, err := v.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return 0, aecerr.Wrap(aecerr.IO, v.root, "failed to read log", err)
	}
	defer iter.Close()

	n := 0
	err = iter.ForEach(func(*object.Commit) error {
		n++
		return nil
	})
	if err != nil {
		return 0, aecerr.Wrap(aecerr.IO, v.root, "failed to count commits", err)
	}
	return n, nil
}
