package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"modresolve/internal/alias"
	"modresolve/internal/cache/memory"
	"modresolve/internal/resolver"
)

// Config is the resolver configuration after file, .env and environment
// have been merged. Paths are absolute.
type Config struct {
	// ConfigPath is the file that was read, or "" when none was used.
	ConfigPath      string
	RootDir         string
	Roots           []string
	Aliases         []alias.Spec
	Extensions      []string
	OutsideRoot     resolver.OutsidePolicy
	CacheMaxEntries int
	CacheTTL        time.Duration
	Workers         int
	// IgnoreDirs are skipped by check runs in addition to scan.DefaultIgnoreDirs.
	IgnoreDirs []string
}

type fileConfig struct {
	RootDir      string    `yaml:"root_dir"`
	Roots        []string  `yaml:"roots"`
	Alias        yaml.Node `yaml:"alias"`
	Extensions   []string  `yaml:"extensions"`
	OutsideRoot  string    `yaml:"outside_root"`
	AllowOutside []string  `yaml:"allow_outside"`
	Cache        struct {
		MaxEntries int    `yaml:"max_entries"`
		TTL        string `yaml:"ttl"`
	} `yaml:"cache"`
	Workers    int      `yaml:"workers"`
	IgnoreDirs []string `yaml:"ignore_dirs"`
}

// Load reads .env (if present), then the YAML file at path (or
// RESOLVER_CONFIG when path is empty), then applies RESOLVER_* overrides.
// Without any file the root directory defaults to the working directory.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(os.Getenv("RESOLVER_CONFIG"))
	}
	var cfg *Config
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", abs, err)
		}
		cfg, err = Parse(data, filepath.Dir(abs))
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", abs, err)
		}
		cfg.ConfigPath = abs
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		cfg = defaults(wd)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	// Walks and reads go through safeio, which sees the real path.
	if resolvedRoot, err := filepath.EvalSymlinks(cfg.RootDir); err == nil {
		cfg.RootDir = resolvedRoot
	}
	return cfg, nil
}

func defaults(rootDir string) *Config {
	return &Config{
		RootDir:         rootDir,
		Extensions:      append([]string(nil), resolver.DefaultExtensions...),
		OutsideRoot:     resolver.OutsideError,
		CacheMaxEntries: memory.DefaultMaxEntries,
		Workers:         runtime.NumCPU(),
	}
}

// Parse decodes a YAML document. Relative root_dir is resolved against
// baseDir; alias order follows the document.
func Parse(data []byte, baseDir string) (*Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	root := strings.TrimSpace(fc.RootDir)
	if root == "" {
		root = "."
	}
	if !filepath.IsAbs(root) {
		root = filepath.Join(baseDir, root)
	}
	cfg := defaults(filepath.Clean(root))
	cfg.Roots = fc.Roots

	aliases, err := decodeAliases(&fc.Alias)
	if err != nil {
		return nil, err
	}
	// Both sides are compared in the form alias.Build stores, so "@vendor",
	// "@vendor/" and "@vendor/*" name the same alias.
	allow := make(map[string]bool, len(fc.AllowOutside))
	for _, p := range fc.AllowOutside {
		prefix, err := alias.NormalizePrefix(p)
		if err != nil {
			return nil, fmt.Errorf("allow_outside: %w", err)
		}
		allow[prefix] = true
	}
	for i := range aliases {
		// Invalid prefixes are reported by alias.Build.
		if prefix, err := alias.NormalizePrefix(aliases[i].Prefix); err == nil {
			aliases[i].AllowOutside = allow[prefix]
		}
	}
	cfg.Aliases = aliases

	if len(fc.Extensions) > 0 {
		cfg.Extensions = fc.Extensions
	}
	if fc.OutsideRoot != "" {
		p, err := resolver.ParseOutsidePolicy(fc.OutsideRoot)
		if err != nil {
			return nil, err
		}
		cfg.OutsideRoot = p
	}
	if fc.Cache.MaxEntries > 0 {
		cfg.CacheMaxEntries = fc.Cache.MaxEntries
	}
	if fc.Cache.TTL != "" {
		ttl, err := time.ParseDuration(fc.Cache.TTL)
		if err != nil {
			return nil, fmt.Errorf("cache.ttl: %w", err)
		}
		cfg.CacheTTL = ttl
	}
	if fc.Workers > 0 {
		cfg.Workers = fc.Workers
	}
	cfg.IgnoreDirs = fc.IgnoreDirs
	return cfg, nil
}

// decodeAliases keeps declaration order, which a Go map would lose.
func decodeAliases(node *yaml.Node) ([]alias.Spec, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("alias: line %d: expected a mapping of prefix to directory", node.Line)
	}
	out := make([]alias.Spec, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("alias: line %d: prefix and target must be strings", k.Line)
		}
		out = append(out, alias.Spec{Prefix: k.Value, Target: v.Value})
	}
	return out, nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv("RESOLVER_ROOT_DIR")); v != "" {
		abs, err := filepath.Abs(v)
		if err != nil {
			return fmt.Errorf("config: RESOLVER_ROOT_DIR: %w", err)
		}
		c.RootDir = abs
	}
	if v := strings.TrimSpace(os.Getenv("RESOLVER_EXTENSIONS")); v != "" {
		c.Extensions = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("RESOLVER_OUTSIDE_ROOT")); v != "" {
		p, err := resolver.ParseOutsidePolicy(v)
		if err != nil {
			return fmt.Errorf("config: RESOLVER_OUTSIDE_ROOT: %w", err)
		}
		c.OutsideRoot = p
	}
	if v := strings.TrimSpace(os.Getenv("RESOLVER_CACHE_MAX_ENTRIES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("config: RESOLVER_CACHE_MAX_ENTRIES must be a positive integer, got %q", v)
		}
		c.CacheMaxEntries = n
	}
	if v := strings.TrimSpace(os.Getenv("RESOLVER_CACHE_TTL")); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: RESOLVER_CACHE_TTL: %w", err)
		}
		c.CacheTTL = ttl
	}
	if v := strings.TrimSpace(os.Getenv("RESOLVER_WORKERS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("config: RESOLVER_WORKERS must be a positive integer, got %q", v)
		}
		c.Workers = n
	}
	if v := strings.TrimSpace(os.Getenv("RESOLVER_IGNORE_DIRS")); v != "" {
		c.IgnoreDirs = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// AliasConfig is the input for alias.Build.
func (c *Config) AliasConfig(logger *log.Logger) alias.Config {
	return alias.Config{
		RootDir: c.RootDir,
		Roots:   c.Roots,
		Aliases: c.Aliases,
		Logger:  logger,
	}
}

// ResolverOptions is the input for resolver.New.
func (c *Config) ResolverOptions(logger *log.Logger) resolver.Options {
	return resolver.Options{
		Extensions:  c.Extensions,
		OutsideRoot: c.OutsideRoot,
		Cache:       memory.Config{MaxEntries: c.CacheMaxEntries, TTL: c.CacheTTL},
		Logger:      logger,
	}
}

// Build constructs the alias table and resolver described by c.
func (c *Config) Build(logger *log.Logger) (*resolver.Resolver, error) {
	if c == nil {
		return nil, errors.New("config: nil config")
	}
	tbl, err := alias.Build(c.AliasConfig(logger))
	if err != nil {
		return nil, err
	}
	return resolver.New(tbl, c.ResolverOptions(logger))
}
