package timetable

import (
	"strconv"

	"github.com/starscheduler/starscheduler/internal/model"
)

// fromXML converts one xmlEvent into the internal model.Event,
// synthesizing LoadRun client_configs from the legacy flavor mapping
// when ClientConfigs is absent but flavor is present (spec.md §6).
func fromXML(xe xmlEvent) model.Event {
	e := model.Event{
		DisplayName:   xe.DisplayName,
		Category:      categoryFromXML[xe.Category],
		Enabled:       xe.Enabled,
		RunAtStartup:  xe.RunAtStartup,
		MinuteOffset:  xe.MinuteInterval,
		CustomCommand: xe.CustomCommand,
		TargetID:      xe.TargetID,
		ClientConfigs: make(map[string]model.ClientConfig),
	}
	if e.Category == "" {
		e.Category = xe.Category
	}

	if xe.Hours != nil {
		for _, h := range xe.Hours.Hours {
			e.Hours = append(e.Hours, model.HourRule{Hour: h.Value, Period: h.Period})
		}
	}
	if xe.TenMinuteInterval != nil {
		for _, v := range xe.TenMinuteInterval.Values {
			if n, err := strconv.Atoi(v); err == nil {
				e.TenMinuteBases = append(e.TenMinuteBases, n)
			}
		}
	}
	if xe.Days != nil {
		e.Days = append(e.Days, xe.Days.Values...)
	}
	if xe.Weeks != nil {
		e.Weeks = append(e.Weeks, xe.Weeks.Values...)
	}
	if xe.Months != nil {
		e.Months = append(e.Months, xe.Months.Values...)
	}
	if xe.Clients != nil {
		e.Clients = append(e.Clients, xe.Clients.Values...)
	}

	switch {
	case xe.ClientConfigs != nil && len(xe.ClientConfigs.ClientConfigs) > 0:
		for _, cc := range xe.ClientConfigs.ClientConfigs {
			mc := clientConfigFromXML(cc)
			key := cc.ID
			if key == "" {
				key = model.ActionGUID(mc)
			}
			e.ClientConfigs[key] = mc
		}
	case xe.Flavor != nil && len(xe.Flavor.Flavors) > 0:
		e.Flavor = make(map[string]string, len(xe.Flavor.Flavors))
		for _, f := range xe.Flavor.Flavors {
			e.Flavor[f.Client] = f.Value
			mc := model.ClientConfig{
				ClientID:        f.Client,
				Action:          model.ActionLoadRun,
				Flavor:          f.Value,
				PresentationID:  xe.TargetID,
				DurationSeconds: legacySynthesisDuration,
			}
			e.ClientConfigs[model.ActionGUID(mc)] = mc
		}
	}

	return e
}

func clientConfigFromXML(cc xmlClientConfig) model.ClientConfig {
	return model.ClientConfig{
		ClientID:        cc.Client,
		Action:          actionFromXML(cc.Action),
		Flavor:          cc.Flavor,
		PresentationID:  cc.PresentationID,
		DurationSeconds: cc.Duration,
		Logo:            cc.Logo,
		Command:         cc.Command,
		SubstituteUser:  cc.SU,
		LDLState:        cc.LDLState,
		SeparateLoadRun: cc.SeparateLoadRun,
		LoadOffset:      cc.LoadOffset,
		RunOffset:       cc.RunOffset,
	}
}

var actionToXMLStr = map[model.Action]string{
	model.ActionLoadRun:       "LoadRun",
	model.ActionLoad:          "Load",
	model.ActionRun:           "Run",
	model.ActionCancel:        "Cancel",
	model.ActionCustomCommand: "Custom Command",
	model.ActionLDLToggle:     "LDL (On/Off)",
}

var actionFromXMLStr = map[string]model.Action{
	"LoadRun":        model.ActionLoadRun,
	"Load":           model.ActionLoad,
	"Run":            model.ActionRun,
	"Cancel":         model.ActionCancel,
	"Custom Command": model.ActionCustomCommand,
	"LDL (On/Off)":   model.ActionLDLToggle,
}

func actionFromXML(s string) model.Action {
	if a, ok := actionFromXMLStr[s]; ok {
		return a
	}
	return model.Action(s)
}

func actionToXML(a model.Action) string {
	if s, ok := actionToXMLStr[a]; ok {
		return s
	}
	return string(a)
}

// toXML converts one model.Event back into the XML document shape for
// persisting.
func toXML(e model.Event) xmlEvent {
	xe := xmlEvent{
		DisplayName:    e.DisplayName,
		Category:       categoryToXML[e.Category],
		TargetID:       e.TargetID,
		CustomCommand:  e.CustomCommand,
		MinuteInterval: e.MinuteOffset,
		RunAtStartup:   e.RunAtStartup,
		Enabled:        e.Enabled,
	}
	if xe.Category == "" {
		xe.Category = e.Category
	}

	if len(e.Hours) > 0 {
		xh := &xmlHours{}
		for _, h := range e.Hours {
			xh.Hours = append(xh.Hours, xmlHour{Period: h.Period, Value: h.Hour})
		}
		xe.Hours = xh
	}
	if len(e.TenMinuteBases) > 0 {
		xt := &xmlTenMinutes{}
		for _, v := range e.TenMinuteBases {
			xt.Values = append(xt.Values, twoDigit(v))
		}
		xe.TenMinuteInterval = xt
	}
	if len(e.Days) > 0 {
		xe.Days = &xmlDays{Values: append([]string(nil), e.Days...)}
	}
	if len(e.Weeks) > 0 {
		xe.Weeks = &xmlWeeks{Values: append([]int(nil), e.Weeks...)}
	}
	if len(e.Months) > 0 {
		xe.Months = &xmlMonths{Values: append([]int(nil), e.Months...)}
	}
	if len(e.Clients) > 0 {
		xe.Clients = &xmlClients{Values: append([]string(nil), e.Clients...)}
	}
	if len(e.ClientConfigs) > 0 {
		xc := &xmlClientConfigs{}
		for guid, cc := range e.ClientConfigs {
			xc.ClientConfigs = append(xc.ClientConfigs, xmlClientConfig{
				ID:              guid,
				Client:          cc.ClientID,
				Action:          actionToXML(cc.Action),
				Flavor:          cc.Flavor,
				PresentationID:  cc.PresentationID,
				Duration:        cc.DurationSeconds,
				Logo:            cc.Logo,
				Command:         cc.Command,
				SU:              cc.SubstituteUser,
				LDLState:        cc.LDLState,
				SeparateLoadRun: cc.SeparateLoadRun,
				LoadOffset:      cc.LoadOffset,
				RunOffset:       cc.RunOffset,
			})
		}
		xe.ClientConfigs = xc
	}

	return xe
}

func twoDigit(n int) string {
	s := strconv.Itoa(n)
	if len(s) < 2 {
		s = "0" + s
	}
	return s
}
