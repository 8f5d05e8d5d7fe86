// Package dispatch is the per-client action planner (spec.md §4.5):
// it resolves action + family + transport into concrete driver calls,
// honoring separate Load/Run offsets.
package dispatch

import (
	"fmt"
	"strings"

	"github.com/starscheduler/starscheduler/internal/model"
)

// i2Executable is the i2 command-line executable path on the target
// host, matching original_source/provision.py's i2exec. It is a fixed
// constant; it is not read from config.json.
const i2Executable = `C:\Program Files (x86)\TWC\I2\exec.exe`

// framesPerSecond converts duration_seconds to the frame count i2
// commands expect (spec.md §3/§4.5).
const framesPerSecond = 30

// Step is one concrete driver call produced by Plan.
type Step struct {
	Kind     StepKind
	Command  string
	OffsetAt string // "load" or "run", for SeparateLoadRun timing; "" otherwise
	Skip     bool   // true for unsupported action/family combos (warn, no-op)
	SkipWhy  string
}

// StepKind distinguishes how Step.Command should be transmitted.
type StepKind int

const (
	StepDatagram StepKind = iota
	StepCommandLine
)

// Plan produces the ordered driver calls for one (client, clientConfig)
// pair, matching spec.md §4.5's action table exactly. LoadRun produces
// two steps (Load then Run), except the non-separate i2 command-line
// form, which is one loadRunPres call; with SeparateLoadRun the two
// steps carry their load/run OffsetAt. Every other action produces one.
func Plan(cl model.Client, cc model.ClientConfig) []Step {
	presentationID := cc.PresentationID
	if presentationID == "" {
		presentationID = model.DefaultPresentationID(cl.Family)
	}

	if cl.Transport == model.TransportDatagram {
		return planDatagram(cc, presentationID)
	}
	if cl.Family.IsI1() {
		return planI1(cc, presentationID)
	}
	return planI2(cc, presentationID)
}

func planI2(cc model.ClientConfig, presentationID string) []Step {
	duration := cc.DurationSeconds * framesPerSecond

	switch cc.Action {
	case model.ActionLoadRun:
		if cc.SeparateLoadRun {
			return []Step{
				{Kind: StepCommandLine, OffsetAt: "load", Command: fmt.Sprintf(
					`"%s" loadPres(Flavor="%s",Duration="%d",PresentationId="%s")`,
					i2Executable, cc.Flavor, duration, presentationID)},
				{Kind: StepCommandLine, OffsetAt: "run", Command: fmt.Sprintf(
					`"%s" runPres(PresentationId="%s")`, i2Executable, presentationID)},
			}
		}
		return []Step{{Kind: StepCommandLine, Command: fmt.Sprintf(
			`"%s" loadRunPres(Flavor="%s",Duration="%d",PresentationId="%s")`,
			i2Executable, cc.Flavor, duration, presentationID)}}
	case model.ActionLoad:
		return []Step{{Kind: StepCommandLine, Command: fmt.Sprintf(
			`"%s" loadPres(Flavor="%s",Duration="%d",PresentationId="%s")`,
			i2Executable, cc.Flavor, duration, presentationID)}}
	case model.ActionRun:
		return []Step{{Kind: StepCommandLine, Command: fmt.Sprintf(
			`"%s" runPres(PresentationId="%s")`, i2Executable, presentationID)}}
	case model.ActionCancel:
		return []Step{{Kind: StepCommandLine, Command: fmt.Sprintf(
			`"%s" cancelPres(PresentationId="%s")`, i2Executable, presentationID)}}
	case model.ActionCustomCommand:
		return []Step{{Kind: StepCommandLine, Command: cc.Command}}
	case model.ActionLDLToggle:
		return []Step{{Skip: true, SkipWhy: "LDLToggle is unsupported on the i2 family"}}
	default:
		return []Step{{Skip: true, SkipWhy: fmt.Sprintf("unknown action %q", cc.Action)}}
	}
}

func planI1(cc model.ClientConfig, presentationID string) []Step {
	flavor := capitalize(cc.Flavor)

	switch cc.Action {
	case model.ActionLoadRun:
		load := fmt.Sprintf(`runomni /twc/util/load.pyc %s %s`, presentationID, flavor)
		run := fmt.Sprintf(`runomni /twc/util/run.pyc %s`, presentationID)
		if cc.SeparateLoadRun {
			return []Step{
				{Kind: StepCommandLine, OffsetAt: "load", Command: load},
				{Kind: StepCommandLine, OffsetAt: "run", Command: run},
			}
		}
		return []Step{
			{Kind: StepCommandLine, Command: load},
			{Kind: StepCommandLine, Command: run},
		}
	case model.ActionLoad:
		return []Step{{Kind: StepCommandLine, Command: fmt.Sprintf(
			`runomni /twc/util/load.pyc %s %s`, presentationID, flavor)}}
	case model.ActionRun:
		return []Step{{Kind: StepCommandLine, Command: fmt.Sprintf(
			`runomni /twc/util/run.pyc %s`, presentationID)}}
	case model.ActionCancel:
		return []Step{{Skip: true, SkipWhy: "Cancel is unsupported on the i1 family"}}
	case model.ActionCustomCommand:
		return []Step{{Kind: StepCommandLine, Command: cc.Command}}
	case model.ActionLDLToggle:
		return []Step{{Kind: StepCommandLine, Command: fmt.Sprintf(
			`runomni /twc/util/toggleNationalLDL.pyc %s`, cc.LDLState)}}
	default:
		return []Step{{Skip: true, SkipWhy: fmt.Sprintf("unknown action %q", cc.Action)}}
	}
}

// planDatagram builds the UDP envelope workRequest body. Load and
// LoadRun variants prepend File=0 and VideoBehind=000, matching
// spec.md §6's wire format.
func planDatagram(cc model.ClientConfig, presentationID string) []Step {
	duration := cc.DurationSeconds * framesPerSecond

	switch cc.Action {
	case model.ActionLoadRun:
		load := fmt.Sprintf(`loadPres(File=0,VideoBehind=000,Logo=%s,Flavor=%s,Duration=%d,PresentationId=%s)`,
			cc.Logo, cc.Flavor, duration, presentationID)
		run := fmt.Sprintf(`runPres(File=0,PresentationId=%s)`, presentationID)
		if cc.SeparateLoadRun {
			return []Step{
				{Kind: StepDatagram, OffsetAt: "load", Command: load},
				{Kind: StepDatagram, OffsetAt: "run", Command: run},
			}
		}
		return []Step{
			{Kind: StepDatagram, Command: load},
			{Kind: StepDatagram, Command: run},
		}
	case model.ActionLoad:
		return []Step{{Kind: StepDatagram, Command: fmt.Sprintf(
			`loadPres(File=0,VideoBehind=000,Logo=%s,Flavor=%s,Duration=%d,PresentationId=%s)`,
			cc.Logo, cc.Flavor, duration, presentationID)}}
	case model.ActionRun:
		return []Step{{Kind: StepDatagram, Command: fmt.Sprintf(
			`runPres(File=0,PresentationId=%s)`, presentationID)}}
	case model.ActionCancel:
		return []Step{{Kind: StepDatagram, Command: fmt.Sprintf(
			`cancelPres(File=0,PresentationId=%s)`, presentationID)}}
	case model.ActionCustomCommand:
		return []Step{{Kind: StepDatagram, Command: cc.Command}}
	default:
		return []Step{{Skip: true, SkipWhy: fmt.Sprintf("action %q has no datagram form", cc.Action)}}
	}
}

// capitalize matches Python's str.capitalize() for the i1 flavor
// argument: first rune upper, rest lower.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
