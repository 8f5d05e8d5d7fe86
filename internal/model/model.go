// Package model holds the configuration and timetable value types
// shared across the scheduler, registry, and dispatch packages.
package model

import (
	"fmt"
	"strings"
)

// Family identifies an endpoint product line. Unknown values are
// accepted verbatim; only "i1" changes dispatch and credential
// validation behavior.
type Family string

const (
	FamilyI1   Family = "i1"
	FamilyI2HD Family = "i2hd"
	FamilyI2JR Family = "i2jr"
	FamilyI2XD Family = "i2xd"
)

// IsI1 reports whether the family is the generation-1 box.
func (f Family) IsI1() bool {
	return f == FamilyI1
}

// Normalized strips the "hd"/"xd"/"jr" variant suffix, leaving "i1" or
// "i2" for command-table lookups (spec.md §4.5's normalized_star).
func (f Family) Normalized() string {
	s := string(f)
	s = strings.TrimSuffix(s, "hd")
	s = strings.TrimSuffix(s, "xd")
	s = strings.TrimSuffix(s, "jr")
	return s
}

// Transport identifies the wire protocol used to reach a Client.
type Transport string

const (
	TransportShell      Transport = "shell"
	TransportTelnet     Transport = "telnet"
	TransportDatagram   Transport = "datagram"
	TransportSubprocess Transport = "subprocess"
)

// DefaultPort returns the conventional port for a transport, or 0 for
// transports that have none (subprocess).
func (t Transport) DefaultPort() int {
	switch t {
	case TransportShell:
		return 22
	case TransportTelnet:
		return 23
	case TransportDatagram:
		return 7787
	default:
		return 0
	}
}

// Action is an endpoint lifecycle verb attached to a ClientConfig.
type Action string

const (
	ActionLoadRun       Action = "LoadRun"
	ActionLoad          Action = "Load"
	ActionRun           Action = "Run"
	ActionCancel        Action = "Cancel"
	ActionCustomCommand Action = "CustomCommand"
	ActionLDLToggle     Action = "LDLToggle"
)

// Client is a configured endpoint.
type Client struct {
	ID             string
	Family         Family
	Transport      Transport
	Hostname       string
	Port           int
	User           string
	Password       string
	SubstituteUser string
}

// DeriveID computes the stable id used when a Client record omits one:
// "{family}_{hostname-with-dots-to-underscores}".
func DeriveID(family Family, hostname string) string {
	return fmt.Sprintf("%s_%s", family, strings.ReplaceAll(hostname, ".", "_"))
}

// Validate checks the invariants from spec.md §3: for family i1, a
// substitute user is required on shell/telnet transports.
func (c Client) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("client: id is required")
	}
	if c.Family.IsI1() && (c.Transport == TransportShell || c.Transport == TransportTelnet) && c.SubstituteUser == "" {
		return fmt.Errorf("client %s: family i1 requires a substitute user on %s", c.ID, c.Transport)
	}
	return nil
}

// DefaultPresentationID returns the family-specific default presentation
// id used when a ClientConfig or event leaves one unset.
func DefaultPresentationID(f Family) string {
	if f.IsI1() {
		return "local"
	}
	return "1"
}

// ClientConfig is the per-endpoint action plan attached to an Event.
type ClientConfig struct {
	ClientID        string
	Action          Action
	Flavor          string
	PresentationID  string
	DurationSeconds int
	Logo            string
	Command         string
	SubstituteUser  string
	LDLState        string
	SeparateLoadRun bool
	LoadOffset      int
	RunOffset       int
}

// Validate enforces the SeparateLoadRun invariant from spec.md §3.
func (cc ClientConfig) Validate() error {
	if cc.SeparateLoadRun && cc.LoadOffset > cc.RunOffset {
		return fmt.Errorf("client config %s: load_offset (%d) must be <= run_offset (%d) when separate_load_run is set", cc.ClientID, cc.LoadOffset, cc.RunOffset)
	}
	return nil
}

// HourRule is one entry of an Event's Hours rule list.
type HourRule struct {
	Hour   int // 1-12
	Period string // "AM", "PM", or "AM/PM"
}

// Event is one timetable entry.
type Event struct {
	DisplayName    string
	Category       string
	Enabled        bool
	RunAtStartup   bool
	Hours          []HourRule
	TenMinuteBases []int
	MinuteOffset   int
	Days           []string
	Weeks          []int
	Months         []int
	CustomCommand  string
	TargetID       string
	ClientConfigs  map[string]ClientConfig // keyed by action-GUID
	Clients        []string
	Flavor         map[string]string
}

// Schedulable reports whether the event should be registered with the
// cron scheduler.
func (e Event) Schedulable() bool {
	return e.Enabled
}

// Validate enforces the Event invariant that a CuePresentation event
// must carry at least one client_config.
func (e Event) Validate() error {
	if e.DisplayName == "" {
		return fmt.Errorf("event: display_name is required")
	}
	if e.Category == CategoryCuePresentation && len(e.ClientConfigs) == 0 {
		return fmt.Errorf("event %s: category CuePresentation requires at least one client_config", e.DisplayName)
	}
	return nil
}

const (
	CategoryCuePresentation  = "CuePresentation"
	CategoryCustomCommand    = "CustomCommand"
	CategoryCancelPresentation = "CancelPresentation"
)
