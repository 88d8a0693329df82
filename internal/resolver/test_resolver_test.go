package resolver

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modresolve/internal/alias"
	"modresolve/internal/safeio"
)

// countingFS records every Stat and can hold the first one until released.
type countingFS struct {
	calls   atomic.Int32
	gate    chan struct{}
	mu      sync.Mutex
	failFor map[string]error
}

func (c *countingFS) Stat(name string) (fs.FileInfo, error) {
	c.calls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	err := c.failFor[name]
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return os.Stat(name)
}

func writeFile(t *testing.T, root, rel string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("export {}\n"), 0o644))
	return p
}

func newProject(t *testing.T, aliases ...alias.Spec) (string, *alias.Table) {
	t.Helper()
	root := t.TempDir()
	if len(aliases) == 0 {
		aliases = []alias.Spec{{Prefix: "@", Target: "./src"}}
	}
	tbl, err := alias.Build(alias.Config{RootDir: root, Aliases: aliases})
	require.NoError(t, err)
	return root, tbl
}

func newResolver(t *testing.T, tbl *alias.Table, opts Options) *Resolver {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = log.New(&bytes.Buffer{}, "", 0)
	}
	r, err := New(tbl, opts)
	require.NoError(t, err)
	return r
}

func TestResolveAliasToExtension(t *testing.T) {
	root, tbl := newProject(t)
	want := writeFile(t, root, "src/shared/utils.ts")
	r := newResolver(t, tbl, Options{})

	res := r.ResolveFile(context.Background(), "@/shared/utils", filepath.Join(root, "src/app/index.ts"))
	require.True(t, res.Resolved(), "%v", res.Err())
	assert.Equal(t, want, res.Path)
	assert.Equal(t, KindAlias, res.Kind)
}

func TestResolveAliasNotFound(t *testing.T) {
	root, tbl := newProject(t)
	r := newResolver(t, tbl, Options{})

	res := r.ResolveFile(context.Background(), "@/missing/module", filepath.Join(root, "src/app/index.ts"))
	require.False(t, res.Resolved())
	assert.Equal(t, NotFound, res.Reason())
	assert.ErrorIs(t, res.Err(), ErrNotFound)

	base := filepath.Join(root, "src", "missing", "module")
	assert.Equal(t, []string{
		base, base + ".ts", base + ".tsx", base + ".js", base + ".jsx", base + ".json",
	}, res.Failure.Candidates)
	assert.Contains(t, res.Err().Error(), "@/missing/module")
}

func TestResolveRelativeUsesOnlyExistingExtension(t *testing.T) {
	root, tbl := newProject(t)
	want := writeFile(t, root, "src/app/sibling.tsx")
	r := newResolver(t, tbl, Options{})

	res := r.ResolveFile(context.Background(), "./sibling", filepath.Join(root, "src/app/index.ts"))
	require.True(t, res.Resolved(), "%v", res.Err())
	assert.Equal(t, want, res.Path)
	assert.Equal(t, KindRelative, res.Kind)
}

func TestResolveExtensionPriority(t *testing.T) {
	root, tbl := newProject(t)
	writeFile(t, root, "src/app/both.js")
	want := writeFile(t, root, "src/app/both.ts")
	r := newResolver(t, tbl, Options{})

	res := r.ResolveFile(context.Background(), "./both", filepath.Join(root, "src/app/index.ts"))
	require.True(t, res.Resolved())
	assert.Equal(t, want, res.Path)
}

func TestResolveLiteralAndIndexFiles(t *testing.T) {
	root, tbl := newProject(t)
	data := writeFile(t, root, "src/data.json")
	index := writeFile(t, root, "src/widgets/index.jsx")
	parent := writeFile(t, root, "src/lib.ts")
	r := newResolver(t, tbl, Options{})
	importer := filepath.Join(root, "src/app/index.ts")

	res := r.ResolveFile(context.Background(), "@/data.json", importer)
	require.True(t, res.Resolved())
	assert.Equal(t, data, res.Path)

	res = r.ResolveFile(context.Background(), "@/widgets", importer)
	require.True(t, res.Resolved())
	assert.Equal(t, index, res.Path)

	res = r.ResolveFile(context.Background(), "../lib", importer)
	require.True(t, res.Resolved())
	assert.Equal(t, parent, res.Path)
	assert.Equal(t, KindRelative, res.Kind)

	// ".." is resolved only after alias substitution.
	res = r.ResolveFile(context.Background(), "@/widgets/../lib", importer)
	require.True(t, res.Resolved())
	assert.Equal(t, parent, res.Path)
}

func TestResolveTrailingSlashMeansDirectory(t *testing.T) {
	root, tbl := newProject(t)
	sibling := writeFile(t, root, "src/app/components.ts")
	index := writeFile(t, root, "src/app/components/index.ts")
	appIndex := writeFile(t, root, "src/app/index.ts")
	r := newResolver(t, tbl, Options{})
	importer := filepath.Join(root, "src/app/screens/Home.tsx")
	ctx := context.Background()

	res := r.ResolveFile(ctx, "../components", importer)
	require.True(t, res.Resolved())
	assert.Equal(t, sibling, res.Path)

	res = r.ResolveFile(ctx, "../components/", importer)
	require.True(t, res.Resolved(), "%v", res.Err())
	assert.Equal(t, index, res.Path)

	res = r.ResolveFile(ctx, "@/app/components/", importer)
	require.True(t, res.Resolved(), "%v", res.Err())
	assert.Equal(t, index, res.Path)
	assert.Equal(t, KindAlias, res.Kind)

	res = r.ResolveFile(ctx, "..", importer)
	require.True(t, res.Resolved(), "%v", res.Err())
	assert.Equal(t, appIndex, res.Path)

	// A file cannot satisfy a directory specifier.
	res = r.ResolveFile(ctx, "@/app/index.ts/", importer)
	assert.Equal(t, NotFound, res.Reason())
}

func TestResolveCustomExtensions(t *testing.T) {
	root, tbl := newProject(t)
	writeFile(t, root, "src/app/style.ts")
	want := writeFile(t, root, "src/app/style.css")
	r := newResolver(t, tbl, Options{Extensions: []string{"css", ".ts"}})
	assert.Equal(t, []string{".css", ".ts"}, r.Extensions())

	res := r.ResolveFile(context.Background(), "./style", filepath.Join(root, "src/app/index.ts"))
	require.True(t, res.Resolved())
	assert.Equal(t, want, res.Path)
}

func TestResolveLongestPrefixWins(t *testing.T) {
	root, tbl := newProject(t,
		alias.Spec{Prefix: "@", Target: "./src"},
		alias.Spec{Prefix: "@/components", Target: "./src/shared/components"},
	)
	writeFile(t, root, "src/components/Button.tsx")
	want := writeFile(t, root, "src/shared/components/Button.tsx")
	r := newResolver(t, tbl, Options{})

	res := r.ResolveFile(context.Background(), "@/components/Button", filepath.Join(root, "src/app/index.ts"))
	require.True(t, res.Resolved())
	assert.Equal(t, want, res.Path)
}

func TestResolveBareFallsBackToRoots(t *testing.T) {
	root := t.TempDir()
	want := writeFile(t, root, "src/config/theme.ts")
	tbl, err := alias.Build(alias.Config{RootDir: root, Roots: []string{"./lib", "./src"}})
	require.NoError(t, err)
	r := newResolver(t, tbl, Options{})

	res := r.ResolveFile(context.Background(), "config/theme", filepath.Join(root, "src/app/index.ts"))
	require.True(t, res.Resolved(), "%v", res.Err())
	assert.Equal(t, want, res.Path)
	assert.Equal(t, KindPackageLookup, res.Kind)

	res = r.ResolveFile(context.Background(), "react", filepath.Join(root, "src/app/index.ts"))
	assert.Equal(t, NotFound, res.Reason())
}

func TestResolveScopedPackageIsNotCapturedByAtAlias(t *testing.T) {
	root, tbl := newProject(t)
	want := writeFile(t, root, "@scope/pkg.js")
	r := newResolver(t, tbl, Options{})

	res := r.ResolveFile(context.Background(), "@scope/pkg", filepath.Join(root, "src/index.ts"))
	require.True(t, res.Resolved(), "%v", res.Err())
	assert.Equal(t, KindPackageLookup, res.Kind)
	assert.Equal(t, want, res.Path)
}

func TestResolveAbsoluteSpecifier(t *testing.T) {
	root, tbl := newProject(t)
	want := writeFile(t, root, "src/abs.ts")
	r := newResolver(t, tbl, Options{})

	res := r.Resolve(context.Background(), Request{Specifier: filepath.Join(root, "src", "abs"), ImporterDir: root})
	require.True(t, res.Resolved(), "%v", res.Err())
	assert.Equal(t, KindAbsolute, res.Kind)
	assert.Equal(t, want, res.Path)
}

func TestResolveOutsideProjectRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "proj")
	require.NoError(t, os.MkdirAll(root, 0o755))
	outside := writeFile(t, parent, "shared/util.ts")
	writeFile(t, parent, "vendor/lib.ts")
	importer := filepath.Join(root, "src/index.ts")

	tbl, err := alias.Build(alias.Config{RootDir: root, Aliases: []alias.Spec{
		{Prefix: "~vendor", Target: "../vendor", AllowOutside: true},
	}})
	require.NoError(t, err)

	strict := newResolver(t, tbl, Options{})
	res := strict.ResolveFile(context.Background(), "../../shared/util", importer)
	assert.Equal(t, OutsideProjectRoot, res.Reason())
	assert.ErrorIs(t, res.Err(), ErrOutsideProjectRoot)

	res = strict.ResolveFile(context.Background(), "~vendor/lib", importer)
	require.True(t, res.Resolved(), "allowed alias must resolve: %v", res.Err())

	var buf bytes.Buffer
	lenient := newResolver(t, tbl, Options{OutsideRoot: OutsideWarn, Logger: log.New(&buf, "", 0)})
	res = lenient.ResolveFile(context.Background(), "../../shared/util", importer)
	require.True(t, res.Resolved())
	assert.Equal(t, outside, res.Path)
	assert.Contains(t, buf.String(), "outside project root")
}

func TestResolveIsDeterministicAndCached(t *testing.T) {
	root, tbl := newProject(t)
	writeFile(t, root, "src/shared/utils.ts")
	cfs := &countingFS{}
	r := newResolver(t, tbl, Options{FS: cfs})
	importer := filepath.Join(root, "src/app/index.ts")

	first := r.ResolveFile(context.Background(), "@/shared/utils", importer)
	probes := cfs.calls.Load()
	require.Positive(t, probes)

	second := r.ResolveFile(context.Background(), "@/shared/utils", importer)
	assert.Equal(t, first, second)
	assert.Equal(t, probes, cfs.calls.Load(), "second call must be served from cache")
	assert.Equal(t, uint64(1), r.CacheMetrics().Hits)
}

func TestReloadInvalidatesCachedResults(t *testing.T) {
	root, tbl := newProject(t)
	writeFile(t, root, "src/shared/utils.ts")
	want := writeFile(t, root, "next/shared/utils.ts")
	r := newResolver(t, tbl, Options{})
	importer := filepath.Join(root, "src/app/index.ts")

	before := r.ResolveFile(context.Background(), "@/shared/utils", importer)
	require.True(t, before.Resolved())

	next, err := alias.Build(alias.Config{RootDir: root, Aliases: []alias.Spec{{Prefix: "@", Target: "./next"}}})
	require.NoError(t, err)
	require.NoError(t, r.Reload(next))
	assert.Equal(t, next.Version(), r.Table().Version())

	after := r.ResolveFile(context.Background(), "@/shared/utils", importer)
	require.True(t, after.Resolved())
	assert.Equal(t, want, after.Path)
	assert.NotEqual(t, before.Path, after.Path)

	assert.Error(t, r.Reload(nil))
}

func TestConcurrentResolutionsProbeOnce(t *testing.T) {
	root, tbl := newProject(t)
	want := writeFile(t, root, "src/shared/utils.ts")
	cfs := &countingFS{gate: make(chan struct{})}
	r := newResolver(t, tbl, Options{FS: cfs})
	importer := filepath.Join(root, "src/app/index.ts")

	const n = 32
	var wg sync.WaitGroup
	results := make([]Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.ResolveFile(context.Background(), "@/shared/utils", importer)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(cfs.gate)
	wg.Wait()

	// utils (missing) + utils.ts (found): one probe sequence of two stats.
	assert.Equal(t, int32(2), cfs.calls.Load())
	for _, res := range results {
		assert.Equal(t, want, res.Path)
	}
}

func TestIOErrorsAreReportedAndNotCached(t *testing.T) {
	root, tbl := newProject(t)
	writeFile(t, root, "src/shared/utils.ts")
	base := filepath.Join(root, "src", "shared", "utils")
	cfs := &countingFS{failFor: map[string]error{base: errors.New("input/output error")}}
	r := newResolver(t, tbl, Options{FS: cfs})
	importer := filepath.Join(root, "src/app/index.ts")

	res := r.ResolveFile(context.Background(), "@/shared/utils", importer)
	require.Equal(t, IOError, res.Reason())
	assert.True(t, res.Failure.Transient())
	assert.ErrorIs(t, res.Err(), ErrIO)

	cfs.mu.Lock()
	delete(cfs.failFor, base)
	cfs.mu.Unlock()

	res = r.ResolveFile(context.Background(), "@/shared/utils", importer)
	require.True(t, res.Resolved(), "I/O failures must not be memoized: %v", res.Err())
}

func TestPermissionErrorIsNotTransient(t *testing.T) {
	root, tbl := newProject(t)
	base := filepath.Join(root, "src", "locked")
	cfs := &countingFS{failFor: map[string]error{base: fs.ErrPermission}}
	r := newResolver(t, tbl, Options{FS: cfs})

	res := r.ResolveFile(context.Background(), "@/locked", filepath.Join(root, "src/index.ts"))
	require.Equal(t, IOError, res.Reason())
	assert.False(t, res.Failure.Transient())
	assert.ErrorIs(t, res.Err(), fs.ErrPermission)
}

func TestResolveWithSafeFSConfinesProbes(t *testing.T) {
	root, tbl := newProject(t)
	want := writeFile(t, root, "src/a.ts")
	sfs, err := safeio.NewSafeFS(root)
	require.NoError(t, err)
	r := newResolver(t, tbl, Options{FS: sfs})

	res := r.ResolveFile(context.Background(), "@/a", filepath.Join(root, "src/index.ts"))
	require.True(t, res.Resolved(), "%v", res.Err())
	assert.Equal(t, want, res.Path)

	// The rooted reader refuses the probe itself, so this is not an I/O failure.
	res = r.ResolveFile(context.Background(), "../../elsewhere", filepath.Join(root, "src/index.ts"))
	assert.Equal(t, OutsideProjectRoot, res.Reason())
	assert.ErrorIs(t, res.Err(), safeio.ErrOutsideRoot)
	assert.False(t, res.Failure.Transient())
}

func TestResolveEmptySpecifierAndCancelledContext(t *testing.T) {
	root, tbl := newProject(t)
	gate := make(chan struct{})
	t.Cleanup(func() { close(gate) })
	r := newResolver(t, tbl, Options{FS: &countingFS{gate: gate}})

	res := r.Resolve(context.Background(), Request{Specifier: "  ", ImporterDir: root})
	assert.Equal(t, NotFound, res.Reason())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res = r.Resolve(ctx, Request{Specifier: "@/x", ImporterDir: root})
	assert.Equal(t, IOError, res.Reason())
	assert.ErrorIs(t, res.Err(), context.Canceled)
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, tbl := newProject(t)
	_, err := New(nil, Options{})
	assert.Error(t, err)
	_, err = New(tbl, Options{OutsideRoot: "ignore"})
	assert.Error(t, err)

	p, err := ParseOutsidePolicy(" WARN ")
	require.NoError(t, err)
	assert.Equal(t, OutsideWarn, p)
}
