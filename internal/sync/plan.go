package sync

import (
	"path"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// DefaultBulkThreshold is the pending-file count above which a single archive
// transfer beats many per-file copies over the exec channel.
const DefaultBulkThreshold = 100

type Strategy int

const (
	StrategyIncremental Strategy = iota
	StrategyBulk
)

func (s Strategy) String() string {
	if s == StrategyBulk {
		return "bulk"
	}
	return "incremental"
}

// SyncPlan is the output of one reconciliation: the files that must move and
// the minimal set of remote directories that must exist first. A plan is never
// recomputed after a bulk failure, only re-executed incrementally.
type SyncPlan struct {
	ToUpload     []FileEntry
	DirsToCreate []string
	Skipped      int
}

func (p *SyncPlan) Empty() bool {
	return len(p.ToUpload) == 0
}

// PickStrategy selects bulk when the pending count exceeds the threshold.
func (p *SyncPlan) PickStrategy(threshold int) Strategy {
	if threshold <= 0 {
		threshold = DefaultBulkThreshold
	}
	if len(p.ToUpload) > threshold {
		return StrategyBulk
	}
	return StrategyIncremental
}

// BuildPlan diffs the local entries against the remote inventory. A local
// entry is pending when the remote has no counterpart or a different digest.
// An unavailable local digest is pending too; it is never silently dropped.
func BuildPlan(local []FileEntry, remote map[string]string) *SyncPlan {
	plan := &SyncPlan{}
	dirs := mapset.NewThreadUnsafeSet[string]()

	for _, entry := range local {
		remoteSum, ok := remote[entry.RelPath]
		if ok && entry.Digest.Equal(remoteSum) {
			plan.Skipped++
			continue
		}
		plan.ToUpload = append(plan.ToUpload, entry)
		if dir := path.Dir(entry.RelPath); dir != "." {
			dirs.Add(dir)
		}
	}

	plan.DirsToCreate = pruneDirs(dirs)
	return plan
}

// pruneDirs drops every directory that is a strict prefix of another retained
// directory; mkdir -p on the deeper path creates the parents anyway.
func pruneDirs(dirs mapset.Set[string]) []string {
	all := dirs.ToSlice()
	sort.Strings(all)

	kept := make([]string, 0, len(all))
	for _, dir := range all {
		redundant := false
		for _, other := range all {
			if other != dir && strings.HasPrefix(other, dir+"/") {
				redundant = true
				break
			}
		}
		if !redundant {
			kept = append(kept, dir)
		}
	}
	return kept
}

// FilterInventory removes excluded and dot-segment paths from a remote
// listing, mirroring what the scanner does locally.
func FilterInventory(remote map[string]string, exclude *ExclusionSet) map[string]string {
	filtered := make(map[string]string, len(remote))
	for relPath, sum := range remote {
		if hasDotSegment(relPath) || exclude.Match(relPath) {
			continue
		}
		filtered[relPath] = sum
	}
	return filtered
}
