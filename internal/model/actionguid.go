package model

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
)

// ActionGUID computes the deterministic 128-bit digest over a
// ClientConfig's canonical field concatenation (spec.md §3/§9). The
// same fields always produce the same digest; any one field changing
// changes it. ActionGUID does not detect collisions: when the timetable
// loader meets two client configs with the same key in one event, the
// later one replaces the earlier one.
func ActionGUID(cc ClientConfig) string {
	parts := []string{
		cc.ClientID,
		string(cc.Action),
		cc.Flavor,
		cc.PresentationID,
		strconv.Itoa(cc.DurationSeconds),
		cc.Logo,
		cc.Command,
		cc.SubstituteUser,
		cc.LDLState,
	}
	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
