package middleware

import (
	"net/http"
	"os"
	"path"
	"strings"
)

// Static serves regular files under root. Anything it cannot serve
// (missing files, directories without index.html, non-GET methods) falls
// through to next.
func Static(root string) func(http.Handler) http.Handler {
	fsys := http.Dir(root)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			name := path.Clean("/" + r.URL.Path)
			if Hidden(name) {
				next.ServeHTTP(w, r)
				return
			}

			f, info, ok := open(fsys, name)
			if !ok && strings.HasSuffix(r.URL.Path, "/") {
				f, info, ok = open(fsys, path.Join(name, "index.html"))
			}
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			defer f.Close()

			http.ServeContent(w, r, info.Name(), info.ModTime(), f)
		})
	}
}

func open(fsys http.FileSystem, name string) (http.File, os.FileInfo, bool) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, nil, false
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, false
	}
	return f, info, true
}

// Hidden reports whether a slash-separated path has a dot-prefixed
// segment. Such files are never served or built.
func Hidden(name string) bool {
	for _, seg := range strings.Split(name, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." {
			return true
		}
	}
	return false
}
