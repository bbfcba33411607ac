package router

import "strings"

// Kind enumerates the intents a line can classify into.
type Kind int

const (
	KindEmpty Kind = iota
	KindDeploy
	KindDeployPrompt
	KindCameraHint
	KindEcho
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindDeploy:
		return "deploy"
	case KindDeployPrompt:
		return "deploy_prompt"
	case KindCameraHint:
		return "camera_hint"
	case KindEcho:
		return "echo"
	default:
		return "unknown"
	}
}

// Intent is the classified meaning of one inbound line.
// Target is set for KindDeploy, Text for KindEcho.
type Intent struct {
	Kind   Kind
	Target string
	Text   string
}

const (
	deployKeyword   = "deploy"
	deploySeparator = " "

	// PlaceholderTarget stands in for a deploy command without a target.
	PlaceholderTarget = "your-domain.com"
)

// Synonyms compare against the lowercased line. The Arabic entries are the
// phrases the landing page suggests.
var (
	deploySynonyms = map[string]struct{}{
		"ابدأ النشر":       {},
		"ابدأ":             {},
		"انشر":             {},
		"deploy":           {},
		"start deploy":     {},
		"start deployment": {},
	}
	cameraSynonyms = map[string]struct{}{
		"فعّل الكاميرا": {},
		"الكاميرا":      {},
		"camera":        {},
		"enable camera": {},
	}
)

// Classify maps a line to exactly one intent. Priority order: the deploy
// keyword (case-sensitive), deploy synonyms, camera synonyms, then echo.
func Classify(line string) Intent {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Intent{Kind: KindEmpty}
	}

	if target, ok := deployTarget(line); ok {
		return Intent{Kind: KindDeploy, Target: target}
	}

	lowered := strings.ToLower(trimmed)
	if _, ok := deploySynonyms[lowered]; ok {
		return Intent{Kind: KindDeployPrompt}
	}
	if _, ok := cameraSynonyms[lowered]; ok {
		return Intent{Kind: KindCameraHint}
	}

	return Intent{Kind: KindEcho, Text: trimmed}
}

// deployTarget extracts the text after "deploy ". The keyword match is
// case-sensitive while synonym matches are not; callers rely on that.
func deployTarget(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, deployKeyword+deploySeparator)
	if !ok {
		return "", false
	}

	target := strings.TrimSpace(rest)
	if target == "" {
		target = PlaceholderTarget
	}

	return target, true
}
