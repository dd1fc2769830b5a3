package linker

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/wippyai/worlds/errors"
)

// SpecifierKind is the category of an import specifier.
type SpecifierKind uint8

const (
	SpecifierBare SpecifierKind = iota
	SpecifierRelative
	SpecifierAbsolute
	SpecifierInvalid
)

func (k SpecifierKind) String() string {
	switch k {
	case SpecifierBare:
		return "bare"
	case SpecifierRelative:
		return "relative"
	case SpecifierAbsolute:
		return "absolute"
	default:
		return "invalid"
	}
}

// Classify categorizes an import specifier.
//
//	"./x", "../x"                 relative
//	"/x", `C:\x`, "file:..", "s://" absolute
//	""                            invalid
//	anything else                 bare
func Classify(specifier string) SpecifierKind {
	switch {
	case specifier == "":
		return SpecifierInvalid
	case strings.HasPrefix(specifier, "./"), strings.HasPrefix(specifier, "../"):
		return SpecifierRelative
	case isAbsolutePath(specifier), isLocator(specifier):
		return SpecifierAbsolute
	}
	return SpecifierBare
}

// Canonicalize resolves a relative specifier against the directory of the
// referencing module's identifier.
func Canonicalize(specifier, referrer string) string {
	return path.Join(path.Dir(referrer), specifier)
}

// RootReferrer returns the referrer identifier to resolve entry points
// against, so that "./index.js" lands inside dir.
func RootReferrer(dir string) string {
	dir = filepath.ToSlash(dir)
	if strings.HasSuffix(dir, "/") {
		return dir
	}
	return dir + "/"
}

// checkSpecifier classifies specifier and turns the rejected kinds into
// configuration errors. referrer is only used for error context.
func checkSpecifier(specifier, referrer string) (SpecifierKind, error) {
	kind := Classify(specifier)
	switch kind {
	case SpecifierAbsolute:
		detail := "absolute paths are not supported"
		if isLocator(specifier) {
			detail = "URLs are not supported"
		}
		return kind, errors.New(errors.PhaseClassify, errors.KindConfiguration).
			Specifier(specifier).
			Identifier(referrer).
			Detail(detail).
			Build()
	case SpecifierInvalid:
		return kind, errors.New(errors.PhaseClassify, errors.KindConfiguration).
			Identifier(referrer).
			Detail("empty specifier").
			Build()
	}
	return kind, nil
}

func isAbsolutePath(s string) bool {
	if s[0] == '/' || s[0] == '\\' {
		return true
	}
	// Drive letters are checked on every platform so that a world behaves
	// the same wherever it is hosted.
	if len(s) >= 3 && isASCIILetter(s[0]) && s[1] == ':' && (s[2] == '/' || s[2] == '\\') {
		return true
	}
	return filepath.IsAbs(s)
}

// isLocator reports whether s is a fully qualified resource locator.
// Only file: and hierarchical "scheme://" forms count, so that bare names
// with a prefix such as "node:path" stay bare.
func isLocator(s string) bool {
	if len(s) >= 5 && strings.EqualFold(s[:5], "file:") {
		return true
	}
	scheme, _, ok := strings.Cut(s, "://")
	if !ok || scheme == "" || !isASCIILetter(scheme[0]) {
		return false
	}
	for i := 1; i < len(scheme); i++ {
		c := scheme[i]
		if !isASCIILetter(c) && (c < '0' || c > '9') && c != '+' && c != '-' && c != '.' {
			return false
		}
	}
	return true
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
