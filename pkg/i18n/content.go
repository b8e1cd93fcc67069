package i18n

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// LocaleCookie and LocaleParam let a client pin its locale.
const (
	LocaleCookie = "locale"
	LocaleParam  = "lang"
)

// bundle is one locale's flattened messages.
type bundle map[string]string

type catalog struct {
	tags     []language.Tag
	bundles  map[language.Tag]bundle
	matcher  language.Matcher
	fallback language.Tag
}

// Content serves messages from YAML or JSON files laid out as
// <contentPath>/<locale>/*.{yaml,yml,json}. Nested keys are flattened with
// dots. With Cache off the files are re-read on every request.
type Content struct {
	cfg Config

	mu     sync.RWMutex
	loaded *catalog
}

// NewContent loads the bundles once to validate them.
func NewContent(cfg Config) (*Content, error) {
	if cfg.ContentPath == "" {
		return nil, fmt.Errorf("i18n: contentPath is required")
	}
	c := &Content{cfg: cfg}
	cat, err := c.load()
	if err != nil {
		return nil, err
	}
	c.loaded = cat
	return c, nil
}

func (c *Content) catalog() *catalog {
	if c.cfg.Cache {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.loaded
	}
	cat, err := c.load()
	if err != nil {
		// keep serving the last good catalog while files are mid-edit
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.loaded
	}
	c.mu.Lock()
	c.loaded = cat
	c.mu.Unlock()
	return cat
}

func (c *Content) load() (*catalog, error) {
	entries, err := os.ReadDir(c.cfg.ContentPath)
	if err != nil {
		return nil, fmt.Errorf("i18n: read %s: %w", c.cfg.ContentPath, err)
	}

	cat := &catalog{bundles: map[language.Tag]bundle{}}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		tag, err := language.Parse(e.Name())
		if err != nil {
			continue
		}
		b, err := loadBundle(filepath.Join(c.cfg.ContentPath, e.Name()))
		if err != nil {
			return nil, err
		}
		cat.tags = append(cat.tags, tag)
		cat.bundles[tag] = b
	}
	if len(cat.tags) == 0 {
		return nil, fmt.Errorf("i18n: no locale directories under %s", c.cfg.ContentPath)
	}
	sort.Slice(cat.tags, func(i, j int) bool { return cat.tags[i].String() < cat.tags[j].String() })

	cat.fallback = cat.tags[0]
	if c.cfg.Fallback != "" {
		fb, err := language.Parse(c.cfg.Fallback)
		if err != nil {
			return nil, fmt.Errorf("i18n: fallback %q: %w", c.cfg.Fallback, err)
		}
		if _, ok := cat.bundles[fb]; !ok {
			return nil, fmt.Errorf("i18n: fallback %q has no content", c.cfg.Fallback)
		}
		cat.fallback = fb
	}

	// the fallback goes first so the matcher prefers it on a tie
	ordered := []language.Tag{cat.fallback}
	for _, t := range cat.tags {
		if t != cat.fallback {
			ordered = append(ordered, t)
		}
	}
	cat.matcher = language.NewMatcher(ordered)
	cat.tags = ordered
	return cat, nil
}

func loadBundle(dir string) (bundle, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("i18n: read %s: %w", dir, err)
	}
	b := bundle{}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		path := filepath.Join(dir, f.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("i18n: read %s: %w", path, err)
		}

		var tree map[string]any
		switch strings.ToLower(filepath.Ext(f.Name())) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(raw, &tree)
		case ".json":
			err = json.Unmarshal(raw, &tree)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("i18n: parse %s: %w", path, err)
		}
		flatten("", tree, b)
	}
	return b, nil
}

func flatten(prefix string, tree map[string]any, out bundle) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch x := v.(type) {
		case map[string]any:
			flatten(key, x, out)
		case nil:
		default:
			out[key] = fmt.Sprint(x)
		}
	}
}

// Locales lists the available locales, fallback first.
func (c *Content) Locales() []string {
	cat := c.catalog()
	out := make([]string, len(cat.tags))
	for i, t := range cat.tags {
		out[i] = t.String()
	}
	return out
}

// Negotiate picks the best locale for r: ?lang=, then the locale cookie,
// then Accept-Language.
func (c *Content) Negotiate(r *http.Request) language.Tag {
	return c.catalog().negotiate(r)
}

func (cat *catalog) negotiate(r *http.Request) language.Tag {
	var prefs []string
	if v := r.URL.Query().Get(LocaleParam); v != "" {
		prefs = append(prefs, v)
	}
	if ck, err := r.Cookie(LocaleCookie); err == nil && ck.Value != "" {
		prefs = append(prefs, ck.Value)
	}
	prefs = append(prefs, r.Header.Get("Accept-Language"))

	_, idx := language.MatchStrings(cat.matcher, prefs...)
	return cat.tags[idx]
}

// Translate returns the message for key in locale, falling back to the
// fallback locale and finally to the key itself. args are formatted with
// the locale's printer.
func (c *Content) Translate(locale language.Tag, key string, args ...any) string {
	return c.catalog().translate(locale, key, args...)
}

func (cat *catalog) translate(locale language.Tag, key string, args ...any) string {
	msg, ok := cat.bundles[locale][key]
	if !ok {
		msg, ok = cat.bundles[cat.fallback][key]
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return msg
	}
	return message.NewPrinter(locale).Sprintf(msg, args...)
}

// Locals exposes "locale" and "t" to views.
func (c *Content) Locals(r *http.Request) (map[string]any, map[string]any) {
	cat := c.catalog()
	tag := cat.negotiate(r)
	return map[string]any{"locale": tag.String()}, map[string]any{
		"t": func(key string, args ...any) string { return cat.translate(tag, key, args...) },
	}
}
