package builtin

import (
	"path"
	"strings"
)

// Path is the "path" package. It always uses forward slashes, whatever the
// host platform.
type Path struct{}

func (Path) Specifier() string { return "path" }

// Join joins the segments and cleans the result. Empty segments are
// ignored; joining nothing gives ".".
func (Path) Join(parts ...string) string {
	joined := path.Join(parts...)
	if joined == "" {
		return "."
	}
	return joined
}

func (Path) Dirname(p string) string {
	return path.Dir(p)
}

// Basename returns the last element of p, without ext when p ends in it.
func (Path) Basename(p string, ext ...string) string {
	base := path.Base(p)
	if p == "" {
		return ""
	}
	if len(ext) > 0 && ext[0] != "" && ext[0] != base {
		base = strings.TrimSuffix(base, ext[0])
	}
	return base
}

// Extname returns the extension of the last element, including the dot.
// Dot files have no extension.
func (Path) Extname(p string) string {
	base := path.Base(p)
	if strings.LastIndex(base, ".") <= 0 {
		return ""
	}
	return path.Ext(base)
}

// Normalize cleans p, keeping a trailing slash.
func (Path) Normalize(p string) string {
	if p == "" {
		return "."
	}
	clean := path.Clean(p)
	if strings.HasSuffix(p, "/") && clean != "/" {
		clean += "/"
	}
	return clean
}

func (Path) IsAbsolute(p string) bool {
	return path.IsAbs(p)
}

// Relative returns the path from "from" to "to".
func (Path) Relative(from, to string) string {
	f := splitClean(from)
	t := splitClean(to)
	i := 0
	for i < len(f) && i < len(t) && f[i] == t[i] {
		i++
	}
	var out []string
	for range f[i:] {
		out = append(out, "..")
	}
	out = append(out, t[i:]...)
	return strings.Join(out, "/")
}

func splitClean(p string) []string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
