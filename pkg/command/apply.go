package command

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/owliabot/ais-sub001/pkg/aisjson"
	"github.com/owliabot/ais-sub001/pkg/value"
)

// PatchOutcome is the per-patch result of one apply_patches command,
// enough to emit a patch_applied or patch_rejected event for it.
type PatchOutcome struct {
	Path     string
	Applied  bool
	Reason   string // set only when Applied is false
}

// ApplyResult summarizes one apply_patches command's effect.
type ApplyResult struct {
	Applied          int
	Rejected         int
	RejectedPaths    []string
	Outcomes         []PatchOutcome
	PatchSummaryHash string
}

// ApplyPatches applies each patch through root's guard, accumulating a
// deterministic hash of the serialized patch set for the audit trail
// plus a per-patch outcome so callers can emit one event per patch.
func ApplyPatches(root *value.Root, guard value.GuardOptions, patches []value.Patch) ApplyResult {
	var res ApplyResult
	res.Outcomes = make([]PatchOutcome, 0, len(patches))
	for _, p := range patches {
		if err := root.Apply(p, guard); err != nil {
			reason := err.Error()
			if ge, ok := err.(*value.PatchGuardError); ok {
				reason = ge.Reason
			}
			res.Rejected++
			res.RejectedPaths = append(res.RejectedPaths, p.Path)
			res.Outcomes = append(res.Outcomes, PatchOutcome{Path: p.Path, Applied: false, Reason: reason})
			continue
		}
		res.Applied++
		res.Outcomes = append(res.Outcomes, PatchOutcome{Path: p.Path, Applied: true})
	}
	res.PatchSummaryHash = hashPatches(patches)
	return res
}

func hashPatches(patches []value.Patch) string {
	data, err := aisjson.Marshal(patches)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
