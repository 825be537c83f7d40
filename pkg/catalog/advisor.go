package catalog

import (
	"fmt"

	"github.com/jguan/chatstack/pkg/infra/hal"
)

// Tier is a discrete recommendation bucket: the largest model size class
// the host is expected to run comfortably.
type Tier struct {
	// Label is the operator-facing name, e.g. "up to 8B".
	Label string `json:"label"`
	// MaxParamsB is the upper bound of the size class in billions of
	// parameters.
	MaxParamsB int `json:"max_params_b"`
	// Caution is set when the host is below even the lowest comfortable
	// threshold and the recommendation comes with a caveat.
	Caution bool `json:"caution,omitempty"`
}

// ModelCheck is the per-model entry of a Report.
type ModelCheck struct {
	Model   string    `json:"model"`
	Spec    ModelSpec `json:"spec"`
	Warning string    `json:"warning,omitempty"`
}

// Report is the computed compatibility of a model selection against a
// hardware profile. It is derived, never stored; recompute it whenever the
// selection or the profile changes.
type Report struct {
	PerModel          []ModelCheck `json:"per_model"`
	TotalDownloadGB   float64      `json:"total_download_gb"`
	MaxRAMRequiredGB  int          `json:"max_ram_required_gb"`
	MaxVRAMRequiredGB int          `json:"max_vram_required_gb"`
	DiskInsufficient  bool         `json:"disk_insufficient"`
	// VRAMUnknown is set when a GPU is present but its memory could not be
	// queried, so per-model checks fell back to the RAM ladder.
	VRAMUnknown bool `json:"vram_unknown,omitempty"`
}

// Warnings returns the non-empty per-model warnings in selection order.
func (r Report) Warnings() []string {
	var out []string
	for _, m := range r.PerModel {
		if m.Warning != "" {
			out = append(out, m.Warning)
		}
	}
	return out
}

// RecommendTier picks a size-class recommendation for the host. VRAM drives
// the ladder when the GPU is present and queryable; otherwise RAM does.
// Unknown VRAM deliberately falls back to the RAM ladder rather than being
// read as zero.
func RecommendTier(p hal.Profile) Tier {
	if p.GPUUsable() {
		switch {
		case p.VRAMGB >= 24:
			return Tier{Label: "all sizes", MaxParamsB: 70}
		case p.VRAMGB >= 12:
			return Tier{Label: "up to 13B", MaxParamsB: 13}
		case p.VRAMGB >= 8:
			return Tier{Label: "up to 8B", MaxParamsB: 8}
		case p.VRAMGB >= 6:
			return Tier{Label: "up to 7B", MaxParamsB: 7}
		default:
			return Tier{Label: "3B only", MaxParamsB: 3}
		}
	}

	switch {
	case p.RAMGB >= 32:
		return Tier{Label: "up to 13B", MaxParamsB: 13}
	case p.RAMGB >= 16:
		return Tier{Label: "up to 8B", MaxParamsB: 8}
	case p.RAMGB >= 8:
		return Tier{Label: "3B only", MaxParamsB: 3}
	default:
		return Tier{Label: "3B only", MaxParamsB: 3, Caution: true}
	}
}

// Evaluate computes the compatibility report for a model selection. The
// function is pure: identical inputs produce identical reports, and
// PerModel follows the selection's own order (after deduplication).
func (c *Catalog) Evaluate(p hal.Profile, selection []string) Report {
	report := Report{
		VRAMUnknown: p.GPUPresent && !p.VRAMKnown,
	}

	for _, id := range Dedupe(selection) {
		spec := c.Resolve(id)

		check := ModelCheck{Model: id, Spec: spec}
		if p.GPUUsable() {
			if spec.VRAMRequiredGB > p.VRAMGB {
				check.Warning = fmt.Sprintf("%s needs ~%dGB VRAM, GPU has %dGB",
					id, spec.VRAMRequiredGB, p.VRAMGB)
			}
		} else if spec.RAMRequiredGB > p.RAMGB {
			check.Warning = fmt.Sprintf("%s needs ~%dGB RAM for CPU inference, host has %dGB",
				id, spec.RAMRequiredGB, p.RAMGB)
		}

		report.PerModel = append(report.PerModel, check)
		report.TotalDownloadGB += spec.SizeGB
		if spec.RAMRequiredGB > report.MaxRAMRequiredGB {
			report.MaxRAMRequiredGB = spec.RAMRequiredGB
		}
		if spec.VRAMRequiredGB > report.MaxVRAMRequiredGB {
			report.MaxVRAMRequiredGB = spec.VRAMRequiredGB
		}
	}

	report.DiskInsufficient = float64(p.DiskFreeGB) < report.TotalDownloadGB

	return report
}
