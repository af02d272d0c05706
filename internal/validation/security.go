package validation

import (
	"bufio"
	"os"
	"regexp"
)

// SecurityFinding is one match of a risky pattern in the workspace.
type SecurityFinding struct {
	File string
	Line int
	Rule string
}

type SecurityResult struct {
	Score    float64
	Findings []SecurityFinding
}

type securityRule struct {
	name string
	re   *regexp.Regexp
}

var securityRules = []securityRule{
	{"aws-access-key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"private-key", regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`)},
	{"hardcoded-secret", regexp.MustCompile(`(?i)(password|passwd|secret|api_?key|token)\s*[:=]\s*["'][^"'\s]{8,}["']`)},
	{"shell-injection", regexp.MustCompile(`exec\.Command\("(sh|bash)",\s*"-c",\s*[^"]`)},
	{"eval", regexp.MustCompile(`\beval\(`)},
	{"insecure-tls", regexp.MustCompile(`InsecureSkipVerify:\s*true`)},
	{"weak-hash", regexp.MustCompile(`\b(md5|sha1)\.New\(\)`)},
}

// securityPenalty is deducted from a perfect score per finding.
const securityPenalty = 0.2

// RunSecurityScan pattern-matches the workspace's source files (tests
// excluded) and maps the finding count to a [0,1] score.
func RunSecurityScan(workDir string) (*SecurityResult, error) {
	result := &SecurityResult{}
	err := walkSources(workDir, func(path, rel string) {
		if isTestFile(rel) {
			return
		}
		result.Findings = append(result.Findings, scanFile(path, rel)...)
	})
	if err != nil {
		return result, err
	}
	result.Score = 1.0 - float64(len(result.Findings))*securityPenalty
	if result.Score < 0 {
		result.Score = 0
	}
	return result, nil
}

func scanFile(path, rel string) []SecurityFinding {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var findings []SecurityFinding
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		for _, r := range securityRules {
			if r.re.MatchString(line) {
				findings = append(findings, SecurityFinding{File: rel, Line: n, Rule: r.name})
			}
		}
	}
	return findings
}
