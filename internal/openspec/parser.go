package openspec

import (
	"fmt"
	"regexp"
	"strings"
)

// TaskGroup is one top-level numbered item from a tasks.md document and
// the indented steps beneath it. Becomes one feature on import.
type TaskGroup struct {
	Title string
	Steps []string
}

var (
	topLevelItemRe = regexp.MustCompile(`^(\d+)[.)]\s+(.*)$`)
	bulletRe       = regexp.MustCompile(`^\s+[-*]\s+(.*)$`)
	checkboxRe     = regexp.MustCompile(`^\[[ xX]\]\s*`)
)

// ParseTasks applies the spec's tasks.md parsing rules: a top-level
// numbered item starts a new task group; indented bullets beneath it
// become steps with checkbox markers stripped. A document with no
// parseable groups becomes a single group named changeName with no
// steps.
func ParseTasks(content, changeName string) []TaskGroup {
	var groups []TaskGroup
	var current *TaskGroup

	for _, line := range strings.Split(content, "\n") {
		if m := topLevelItemRe.FindStringSubmatch(line); m != nil {
			groups = append(groups, TaskGroup{Title: strings.TrimSpace(m[2])})
			current = &groups[len(groups)-1]
			continue
		}
		if current == nil {
			continue
		}
		if m := bulletRe.FindStringSubmatch(line); m != nil {
			step := checkboxRe.ReplaceAllString(strings.TrimSpace(m[1]), "")
			current.Steps = append(current.Steps, strings.TrimSpace(step))
		}
	}

	if len(groups) == 0 {
		return []TaskGroup{{Title: changeName}}
	}
	return groups
}

var (
	requirementRe = regexp.MustCompile(`(?i)^###\s*Requirement:\s*(.*)$`)
	scenarioRe    = regexp.MustCompile(`(?i)^\s*[-*]\s+(GIVEN|WHEN|THEN|AND)\b.*$`)
)

// ParseSpec applies the spec's spec.md parsing rules: "### Requirement:"
// lines produce requirement entries; bulleted GIVEN/WHEN/THEN/AND lines
// produce scenario entries, each contributing a verification step of
// the form "{scenario text} verified".
func ParseSpec(content string) (requirements, verificationSteps []string) {
	for _, rawLine := range strings.Split(content, "\n") {
		line := strings.TrimRight(rawLine, "\r")
		if m := requirementRe.FindStringSubmatch(line); m != nil {
			requirements = append(requirements, strings.TrimSpace(m[1]))
			continue
		}
		if scenarioRe.MatchString(line) {
			text := strings.TrimSpace(line)
			text = strings.TrimPrefix(text, "-")
			text = strings.TrimPrefix(text, "*")
			text = strings.TrimSpace(text)
			verificationSteps = append(verificationSteps, fmt.Sprintf("%s verified", text))
		}
	}
	return requirements, verificationSteps
}
