// Package gitinfo resolves best-effort repository metadata for build records.
package gitinfo

import (
	"github.com/go-git/go-git/v5"
)

// Info describes the repository state a build ran against.
type Info struct {
	Commit string // HEAD hash, empty outside a repository
	Branch string // short branch name, empty when detached
	Dirty  bool   // uncommitted changes in the worktree
}

// Resolve inspects the repository containing dir. All failures degrade to an
// empty Info; a build must never fail because git metadata is unavailable.
func Resolve(dir string) Info {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return Info{}
	}

	info := Info{}
	head, err := repo.Head()
	if err != nil {
		return info
	}
	info.Commit = head.Hash().String()
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}

	wt, err := repo.Worktree()
	if err != nil {
		return info
	}
	status, err := wt.Status()
	if err != nil {
		return info
	}
	info.Dirty = !status.IsClean()
	return info
}
