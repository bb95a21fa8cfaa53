package classifier

import (
	"regexp"

	"github.com/sakif/fragments/internal/executor"
)

type riskRule struct {
	level       executor.RiskLevel
	kind        string
	description string
	re          *regexp.Regexp
}

// riskRules run against the original source; dynamic evaluation is case
// sensitive so that ordinary `function(` expressions are not flagged.
var riskRules = []riskRule{
	{executor.RiskCritical, "infinite-loop", "unbounded while(true) loop", regexp.MustCompile(`while\s*\(\s*(true|1)\s*\)`)},
	{executor.RiskCritical, "infinite-loop", "empty-condition for(;;) loop", regexp.MustCompile(`for\s*\(\s*;\s*;\s*\)`)},
	{executor.RiskHigh, "dynamic-evaluation", "eval() call", regexp.MustCompile(`(^|[^\w$.])eval\s*\(`)},
	{executor.RiskHigh, "dynamic-evaluation", "Function constructor", regexp.MustCompile(`(^|[^\w$.])(new\s+)?Function\s*\(`)},
	{executor.RiskHigh, "dynamic-evaluation", "string passed to setTimeout/setInterval", regexp.MustCompile("set(Timeout|Interval)\\s*\\(\\s*['\"`]")},
	{executor.RiskMedium, "network-access", "fetch() call", regexp.MustCompile(`(^|[^\w$])fetch\s*\(`)},
	{executor.RiskMedium, "network-access", "XMLHttpRequest", regexp.MustCompile(`XMLHttpRequest`)},
	{executor.RiskMedium, "network-access", "WebSocket", regexp.MustCompile(`\bWebSocket\b`)},
	{executor.RiskMedium, "network-access", "EventSource", regexp.MustCompile(`\bEventSource\b`)},
	{executor.RiskMedium, "network-access", "navigator.sendBeacon", regexp.MustCompile(`sendBeacon\s*\(`)},
	{executor.RiskMedium, "network-access", "importScripts", regexp.MustCompile(`importScripts\s*\(`)},
	{executor.RiskMedium, "storage-access", "document.cookie", regexp.MustCompile(`document\.cookie`)},
	{executor.RiskMedium, "storage-access", "web storage", regexp.MustCompile(`\b(localStorage|sessionStorage)\b`)},
	{executor.RiskMedium, "storage-access", "indexedDB", regexp.MustCompile(`\bindexedDB\b`)},
	{executor.RiskLow, "frame-escape", "access to an enclosing window", regexp.MustCompile(`window\.(top|parent|opener)\b`)},
}

// SecurityRisks flags risky constructs in code. It never blocks
// classification; callers decide what to refuse.
func SecurityRisks(code string) []executor.Risk {
	var risks []executor.Risk
	for _, r := range riskRules {
		if r.re.MatchString(code) {
			risks = append(risks, executor.Risk{
				Level:       r.level,
				Kind:        r.kind,
				Description: r.description,
			})
		}
	}
	return risks
}
