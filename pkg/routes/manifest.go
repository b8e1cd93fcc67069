package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/shashiranjanraj/appcore/pkg/errorhandler"
	"github.com/shashiranjanraj/appcore/pkg/response"
	"github.com/shashiranjanraj/appcore/pkg/router"
)

// Entry is one route in a manifest. Exactly one of View, Redirect and JSON
// must be set.
type Entry struct {
	Method   string         `yaml:"method" json:"method"`
	Path     string         `yaml:"path" json:"path"`
	Name     string         `yaml:"name" json:"name"`
	View     string         `yaml:"view" json:"view"`
	Data     map[string]any `yaml:"data" json:"data"`
	Redirect string         `yaml:"redirect" json:"redirect"`
	JSON     any            `yaml:"json" json:"json"`
	Status   int            `yaml:"status" json:"status"`
}

type manifest struct {
	file    string
	prefix  string
	entries []Entry
}

func discover(dir string) ([]manifest, error) {
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var out []manifest
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			return nil
		}
		mf, err := parse(dir, p)
		if err != nil {
			return err
		}
		out = append(out, mf)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].prefix < out[j].prefix })
	return out, nil
}

func parse(root, file string) (manifest, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return manifest{}, fmt.Errorf("routes: read %s: %w", file, err)
	}
	var entries []Entry
	if strings.EqualFold(filepath.Ext(file), ".json") {
		err = json.Unmarshal(raw, &entries)
	} else {
		err = yaml.Unmarshal(raw, &entries)
	}
	if err != nil {
		return manifest{}, fmt.Errorf("routes: parse %s: %w", file, err)
	}

	rel, err := filepath.Rel(root, file)
	if err != nil {
		return manifest{}, err
	}
	return manifest{file: file, prefix: prefixFor(rel), entries: entries}, nil
}

// prefixFor maps a manifest path relative to the route directory to its
// URL prefix.
func prefixFor(rel string) string {
	rel = filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))
	dir, base := "", rel
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		dir, base = rel[:i], rel[i+1:]
	}
	if base == "index" {
		return router.JoinPath(dir)
	}
	return router.JoinPath(dir, base)
}

func (mf manifest) mount(r *router.Router, d Deps) error {
	for i, e := range mf.entries {
		h, err := e.handler(d)
		if err != nil {
			return fmt.Errorf("routes: %s entry %d: %w", mf.file, i, err)
		}
		method := strings.ToUpper(e.Method)
		if method == "" {
			method = http.MethodGet
		}
		r.Handle(method, router.JoinPath(mf.prefix, e.Path), e.Name, h)
	}
	return nil
}

func (e Entry) handler(d Deps) (http.Handler, error) {
	kinds := 0
	for _, set := range []bool{e.View != "", e.Redirect != "", e.JSON != nil} {
		if set {
			kinds++
		}
	}
	if kinds != 1 {
		return nil, errors.New("exactly one of view, redirect or json is required")
	}

	switch {
	case e.View != "":
		if d.Views == nil {
			return nil, fmt.Errorf("view route %q needs a view engine", e.View)
		}
		status := e.Status
		if status == 0 {
			status = http.StatusOK
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data := make(map[string]any, len(e.Data)+1)
			for k, v := range e.Data {
				data[k] = v
			}
			data["params"] = urlParams(r)
			if err := d.Views.RenderStatus(w, r, status, e.View, data); err != nil {
				errorhandler.Fail(w, r, err)
			}
		}), nil

	case e.Redirect != "":
		status := e.Status
		if status == 0 {
			status = http.StatusFound
		}
		if status < 300 || status > 399 {
			return nil, fmt.Errorf("redirect status %d is not a 3xx", status)
		}
		target := e.Redirect
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, target, status)
		}), nil

	default:
		status := e.Status
		if status == 0 {
			status = http.StatusOK
		}
		body := e.JSON
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			response.JSON(w, status, body)
		}), nil
	}
}

func urlParams(r *http.Request) map[string]string {
	out := map[string]string{}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, k := range rctx.URLParams.Keys {
			if k != "*" {
				out[k] = rctx.URLParams.Values[i]
			}
		}
	}
	return out
}
