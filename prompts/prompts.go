package prompts

import _ "embed"

// Embedded prompt templates. The wording is load-bearing: analysis output and
// the chat "cannot find" convention are calibrated against these exact texts.

//go:embed compliance_analysis.txt
var complianceAnalysis string

//go:embed compliance_fix.txt
var complianceFix string

//go:embed chat_system.txt
var chatSystem string

//go:embed chat_prompt.txt
var chatPrompt string

//go:embed chat_fix.txt
var chatFix string

// ComplianceAnalysis has %s slots for question, rubric, and evidence block.
func ComplianceAnalysis() string { return complianceAnalysis }

// ComplianceFix has a %s slot for the truncated invalid output.
func ComplianceFix() string { return complianceFix }

func ChatSystem() string { return chatSystem }

// ChatPrompt has %s slots for the history block, evidence block, and question.
func ChatPrompt() string { return chatPrompt }

// ChatFix has a %s slot for the truncated invalid output.
func ChatFix() string { return chatFix }
