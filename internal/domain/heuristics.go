package domain

import (
	"path/filepath"
	"strings"
)

// RansomwareExtensions are the suffixes treated as encrypted-by-ransomware
var RansomwareExtensions = []string{".encrypted", ".locked", ".crypted"}

var executableExtensions = map[string]bool{
	".exe": true,
	".dll": true,
	".sys": true,
}

// sensitiveProcesses are session manager, client/server runtime, logon,
// LSA, service control and shell processes
var sensitiveProcesses = []string{
	"smss.exe",
	"csrss.exe",
	"wininit.exe",
	"winlogon.exe",
	"lsass.exe",
	"services.exe",
	"explorer.exe",
}

// systemProcesses are exempt from the hidden-process check
var systemProcesses = map[string]bool{
	"svchost.exe":  true,
	"csrss.exe":    true,
	"wininit.exe":  true,
	"services.exe": true,
	"lsass.exe":    true,
	"winlogon.exe": true,
	"explorer.exe": true,
	"system":       true,
}

var suspiciousNameFragments = []string{"crypt", "lock", "decrypt"}

// HiddenProcessPIDLimit bounds the hidden-process heuristic
const HiddenProcessPIDLimit = 10000

// IsExecutableExtension reports .exe, .dll and .sys files
func IsExecutableExtension(path string) bool {
	return executableExtensions[strings.ToLower(filepath.Ext(LastPathComponent(path)))]
}

// IsTempPath reports whether path has a Temp/tmp directory segment or lies
// under one of the given roots
func IsTempPath(path string, roots ...string) bool {
	lower := strings.ToLower(path)
	for _, root := range roots {
		if root == "" {
			continue
		}
		if strings.HasPrefix(lower, strings.ToLower(root)) {
			return true
		}
	}

	segments := strings.FieldsFunc(lower, func(r rune) bool { return r == '\\' || r == '/' })
	// the last segment is the file itself
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == "temp" || segments[i] == "tmp" {
			return true
		}
	}
	return false
}

// IsSensitiveProcess matches the target name against the sensitive set
func IsSensitiveProcess(name string) bool {
	base := strings.ToLower(LastPathComponent(name))
	if base == "" {
		return false
	}
	for _, p := range sensitiveProcesses {
		if strings.Contains(base, p) {
			return true
		}
	}
	return false
}

// IsSystemProcess reports membership of the hidden-process exemption set
func IsSystemProcess(name string) bool {
	return systemProcesses[strings.ToLower(LastPathComponent(name))]
}

// IsSuspiciousProcessName looks for crypt/lock/decrypt in the image name
func IsSuspiciousProcessName(name string) bool {
	lower := strings.ToLower(name)
	for _, fragment := range suspiciousNameFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// HasRansomwareExtension checks the built-in suffixes plus any extras
func HasRansomwareExtension(path string, extra ...string) bool {
	return ransomwareSuffix(path, extra) != ""
}

// StripRansomwareSuffix removes a trailing ransomware suffix, reporting
// whether one was present
func StripRansomwareSuffix(path string, extra ...string) (string, bool) {
	suffix := ransomwareSuffix(path, extra)
	if suffix == "" {
		return path, false
	}
	return path[:len(path)-len(suffix)], true
}

// ransomwareSuffix returns the matching tail of path itself, so its length is
// always a valid cut point for path
func ransomwareSuffix(path string, extra []string) string {
	for _, list := range [][]string{RansomwareExtensions, extra} {
		for _, ext := range list {
			if ext == "" || len(path) <= len(ext) {
				continue
			}
			if tail := path[len(path)-len(ext):]; strings.EqualFold(tail, ext) {
				return tail
			}
		}
	}
	return ""
}
