// Package extract pulls a structured object and a reasoning trace out of
// free-form model output.
package extract

import (
	"errors"
	"regexp"
	"strings"
)

// #region errors

// ErrNoObject means neither extraction stage found a candidate object.
var ErrNoObject = errors.New("no structured object found in response")

// #endregion errors

// #region stage

// Stage identifies which extraction stage produced the object.
type Stage string

const (
	StageNone   Stage = "none"
	StageFenced Stage = "fenced"
	StageBraces Stage = "braces"
)

// #endregion stage

// #region object

var fencedObject = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(\\{.*?\\})\\s*```")

// Object returns the first structured object embedded in raw.
// Stage 1 takes a markdown-fenced block; stage 2 falls back to the span from
// the first '{' to the last '}'. A closed reasoning block is removed before
// stage 2 so braces inside the trace are not mistaken for the object.
func Object(raw string) ([]byte, Stage, error) {
	if m := fencedObject.FindStringSubmatch(raw); m != nil {
		return []byte(strings.TrimSpace(m[1])), StageFenced, nil
	}

	body := stripClosedTrace(raw)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start == -1 || end == -1 || end < start {
		return nil, StageNone, ErrNoObject
	}
	return []byte(body[start : end+1]), StageBraces, nil
}

// #endregion object

// #region trace

var (
	traceOpenTags  = []string{"◁think▷", "<think>"}
	traceCloseTags = []string{"◁/think▷", "</think>"}
)

// Trace returns the text inside the reasoning tags. When the closing tag is
// missing the trace runs to the first code fence, or to the end of the text.
// Returns "" when raw carries no opening tag.
func Trace(raw string) string {
	start := -1
	for _, tag := range traceOpenTags {
		if i := strings.Index(raw, tag); i != -1 {
			start = i + len(tag)
			break
		}
	}
	if start == -1 {
		return ""
	}

	rest := raw[start:]
	end := -1
	for _, tag := range traceCloseTags {
		if i := strings.Index(rest, tag); i != -1 {
			end = i
			break
		}
	}
	if end == -1 {
		if i := strings.Index(rest, "```"); i != -1 {
			end = i
		} else {
			end = len(rest)
		}
	}
	return strings.TrimSpace(rest[:end])
}

func stripClosedTrace(raw string) string {
	for i, open := range traceOpenTags {
		s := strings.Index(raw, open)
		if s == -1 {
			continue
		}
		e := strings.Index(raw[s:], traceCloseTags[i])
		if e == -1 {
			continue
		}
		raw = raw[:s] + raw[s+e+len(traceCloseTags[i]):]
	}
	return raw
}

// #endregion trace

// #region prefix

// Prefix returns at most n runes of s.
func Prefix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// #endregion prefix
