package security

import (
	"regexp"
	"strings"
)

// Finding is one suspicious pattern matched in content.
type Finding struct {
	Name  string `json:"name"`
	Match string `json:"match"`
}

type suspiciousPattern struct {
	name    string
	pattern *regexp.Regexp
}

var suspiciousPatterns = []suspiciousPattern{
	// Instruction override attempts
	{name: "ignore_previous", pattern: regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|above|prior|earlier)\s+(instructions?|directives?|rules?)`)},
	{name: "forget_previous", pattern: regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|everything|your)\s*(instructions?)?`)},
	{name: "disregard_previous", pattern: regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|above|prior)`)},
	{name: "new_instructions", pattern: regexp.MustCompile(`(?i)(new|updated)\s+(system\s+)?instructions?\s*:`)},
	{name: "role_reassignment", pattern: regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|the)\s+`)},

	// System prompt extraction
	{name: "reveal_prompt", pattern: regexp.MustCompile(`(?i)(reveal|show|print|display|repeat)\s+(your\s+)?(system\s+)?prompt`)},

	// Fence escapes
	{name: "fake_system_turn", pattern: regexp.MustCompile(`(?im)^\s*(system|assistant)\s*:`)},

	// Code execution attempts
	{name: "curl_pipe_shell", pattern: regexp.MustCompile(`(?i)curl\s+\S+.*\|\s*(ba|z)?sh`)},
	{name: "wget_pipe_shell", pattern: regexp.MustCompile(`(?i)wget\s+\S+.*\|\s*(ba|z)?sh`)},
}

// Credential-looking words. Matches are reported, not blocked.
var sensitiveKeywords = []string{
	"api_key",
	"apikey",
	"private_key",
	"access_token",
	"password",
}

// Scan returns the suspicious patterns found in content, in pattern order.
func Scan(content string) []Finding {
	var findings []Finding
	for _, sp := range suspiciousPatterns {
		if m := sp.pattern.FindString(content); m != "" {
			findings = append(findings, Finding{Name: sp.name, Match: strings.TrimSpace(m)})
		}
	}
	lower := strings.ToLower(content)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			findings = append(findings, Finding{Name: "keyword:" + kw, Match: kw})
		}
	}
	return findings
}
