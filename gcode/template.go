package gcode

import (
	"fmt"
	"regexp"
	"strconv"
)

var placeholder = regexp.MustCompile(`\{(\w+)\}`)

// render performs a single substitution pass over template, resolving
// {name} placeholders from the state and print substitution maps. It never
// uses the host language's string interpolation so that operator
// configuration, not Go source, controls the controller dialect (Design
// Notes: "Template rendering as explicit substitution").
//
// An unresolved placeholder is a programming error, not a runtime fault: the
// orchestrator never configures a template referencing a substitution it
// doesn't also provide, so render panics loudly rather than emitting a
// half-rendered command to the hardware.
func render(template string, subs map[string]string) string {
	var missing string
	out := placeholder.ReplaceAllStringFunc(template, func(tok string) string {
		name := tok[1 : len(tok)-1]
		if v, ok := subs[name]; ok {
			return v
		}
		missing = name
		return tok
	})
	if missing != "" {
		panic(fmt.Sprintf("gcode: invalid template %q: unresolved substitution {%s}", template, missing))
	}
	return out
}

func formatMicronsAsMM(microns uint32) string {
	return strconv.FormatFloat(float64(microns)/1000.0, 'f', 3, 64)
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// mmPerSecToMMPerMin converts an operator-facing mm/s speed to the mm/min
// units most G-code dialects expect in a feedrate word.
func mmPerSecToMMPerMin(mmPerSec float64) string {
	return strconv.FormatFloat(mmPerSec*60.0, 'f', 2, 64)
}
