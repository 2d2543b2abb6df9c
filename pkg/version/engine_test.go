package version

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/assetstore/pkg/layout"
	"github.com/nainya/assetstore/pkg/metadata"
)

var (
	ann = Identity{Login: "ann", RealName: "Ann Archer"}
	bob = Identity{Login: "bob", RealName: "Bob Baker"}
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type staticDirectory map[string]string

func (d staticDirectory) RealName(login string) (string, bool) {
	name, ok := d[login]
	return name, ok
}

type fixture struct {
	t        *testing.T
	fs       afero.Fs
	projects string
	root     string
	clock    *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	return &fixture{
		t:        t,
		fs:       afero.NewOsFs(),
		root:     root,
		projects: filepath.Join(root, "proj", "Assets"),
		clock:    &testClock{now: time.Date(2024, time.March, 5, 14, 0, 0, 0, time.Local)},
	}
}

// engine returns an engine working in the named user's workspace
func (f *fixture) engine(user string, opts ...func(*Config)) *Engine {
	f.t.Helper()
	cfg := Config{
		Fs:            f.fs,
		WorkspaceRoot: filepath.Join(f.root, "home", user, "checkout"),
		Now:           f.clock.Now,
		Directory:     staticDirectory{"ann": "Ann Archer", "bob": "Bob Baker"},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	e, err := NewEngine(cfg)
	require.NoError(f.t, err)
	return e
}

func (f *fixture) register(e *Engine, name string, keep int) string {
	f.t.Helper()
	e.cfg.DefaultVersionsToKeep = keep
	asset, err := e.Register(context.Background(), ann, f.projects, name)
	require.NoError(f.t, err)
	return asset
}

func (f *fixture) write(path, content string) {
	f.t.Helper()
	require.NoError(f.t, f.fs.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(f.t, afero.WriteFile(f.fs, path, []byte(content), 0644))
}

func (f *fixture) read(path string) string {
	f.t.Helper()
	data, err := afero.ReadFile(f.fs, path)
	require.NoError(f.t, err)
	return string(data)
}

func (f *fixture) node(asset string) *metadata.NodeInfo {
	f.t.Helper()
	info, err := metadata.NewStore(f.fs).ReadNodeInfo(asset)
	require.NoError(f.t, err)
	return info
}

// commit checks out exclusively, writes content and checks in
func (f *fixture) commit(e *Engine, user Identity, asset, content string) {
	f.t.Helper()
	ctx := context.Background()
	wc, err := e.Checkout(ctx, user, asset, true)
	require.NoError(f.t, err)
	f.write(filepath.Join(wc, "scene.ma"), content)
	f.clock.advance(time.Minute)
	_, err = e.Checkin(ctx, user, wc)
	require.NoError(f.t, err)
	f.clock.advance(time.Minute)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")

	asset := f.register(e, "Foo", 4)
	assert.Equal(t, filepath.Join(f.projects, "Foo"), asset)

	assert.DirExists(t, layout.VersionPath(asset, 0))
	assert.DirExists(t, layout.BackupsPath(asset))

	node := f.node(asset)
	assert.Equal(t, 0, node.LatestVersion)
	assert.Equal(t, 4, node.VersionsToKeep)
	assert.False(t, node.Locked)
	assert.Equal(t, "ann", node.LastCheckinUser)
	assert.True(t, node.LastCheckinTime.Equal(f.clock.now))
	c, ok := node.Comment(0)
	assert.True(t, ok)
	assert.Equal(t, "New", c)

	_, err := e.Register(context.Background(), ann, f.projects, "Foo")
	var exists *AlreadyExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, asset, exists.Path)
}

func TestScaffold(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")

	asset, err := e.Scaffold(context.Background(), ann, f.projects, "Chair")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.projects, "Chair", "model"), asset)
	assert.False(t, e.Store().HasNodeInfo(filepath.Dir(asset)))
	assert.Equal(t, ScaffoldVersionsToKeep, f.node(asset).VersionsToKeep)

	_, err = e.Scaffold(context.Background(), ann, f.projects, "Chair")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCheckoutCheckinScenario(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")
	ctx := context.Background()
	asset := f.register(e, "Foo", 0)
	f.write(filepath.Join(layout.VersionPath(asset, 0), "scene.ma"), "original")

	wc, err := e.Checkout(ctx, ann, asset, true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.root, "home", "ann", "checkout", "Assets_Foo_000"), wc)
	assert.Equal(t, "original", f.read(filepath.Join(wc, "scene.ma")))
	assert.True(t, f.node(asset).Locked)

	co, err := e.Store().ReadCheckoutInfo(wc)
	require.NoError(t, err)
	assert.Equal(t, asset, co.CheckedOutFrom)
	assert.True(t, co.LockedByMe)
	assert.Equal(t, 0, co.Version)

	f.write(filepath.Join(wc, "scene.ma"), "fixed uvs")
	f.write(filepath.Join(wc, "tex", "diffuse.png"), "pixels")

	f.clock.advance(5 * time.Minute)
	commentTime := f.clock.now
	require.NoError(t, e.SetComment(ctx, ann, wc, "fix UVs"))

	f.clock.advance(time.Minute)
	got, err := e.Checkin(ctx, ann, wc)
	require.NoError(t, err)
	assert.Equal(t, asset, got)

	node := f.node(asset)
	assert.Equal(t, 1, node.LatestVersion)
	assert.False(t, node.Locked)
	c, _ := node.Comment(1)
	assert.Equal(t, `ann: `+metadata.FormatTime(commentTime)+`: "fix UVs"`, c)
	assert.NoDirExists(t, wc)

	v1 := layout.VersionPath(asset, 1)
	assert.Equal(t, "fixed uvs", f.read(filepath.Join(v1, "scene.ma")))
	assert.Equal(t, "pixels", f.read(filepath.Join(v1, "tex", "diffuse.png")))
	assert.NoFileExists(t, filepath.Join(v1, metadata.CheckoutInfoFile))
	assert.Equal(t, "original", f.read(filepath.Join(layout.VersionPath(asset, 0), "scene.ma")))
}

func TestNonExclusiveCheckout(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")
	asset := f.register(e, "Foo", 0)

	wc, err := e.Checkout(context.Background(), bob, asset, false)
	require.NoError(t, err)

	node := f.node(asset)
	assert.False(t, node.Locked)
	assert.Equal(t, "bob", node.LastCheckoutUser)

	co, err := e.Store().ReadCheckoutInfo(wc)
	require.NoError(t, err)
	assert.False(t, co.LockedByMe)
}

func TestCheckoutLockedByOther(t *testing.T) {
	f := newFixture(t)
	annEngine := f.engine("ann")
	bobEngine := f.engine("bob")
	asset := f.register(annEngine, "Foo", 0)

	_, err := annEngine.Checkout(context.Background(), ann, asset, true)
	require.NoError(t, err)
	lockedAt := f.clock.now

	f.clock.advance(time.Hour)
	for _, exclusive := range []bool{true, false} {
		_, err = bobEngine.Checkout(context.Background(), bob, asset, exclusive)
		var locked *LockedError
		require.ErrorAs(t, err, &locked)
		assert.Equal(t, "ann", locked.Holder)
		assert.Equal(t, "Ann Archer", locked.HolderName)
		assert.True(t, locked.Since.Equal(lockedAt))
		assert.Contains(t, err.Error(), metadata.FormatTime(lockedAt))
	}

	assert.NoDirExists(t, bobEngine.Resolver().CheckoutDestination(asset, 0))
	assert.Equal(t, "ann", f.node(asset).LastCheckoutUser)
}

func TestCheckoutDestinationTaken(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")
	asset := f.register(e, "Foo", 0)
	before := f.node(asset)

	require.NoError(t, f.fs.MkdirAll(e.Resolver().CheckoutDestination(asset, 0), 0755))
	f.clock.advance(time.Minute)

	_, err := e.Checkout(context.Background(), ann, asset, true)
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, before, f.node(asset))
}

func TestCheckoutVersionMissing(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")
	asset := f.register(e, "Foo", 0)
	require.NoError(t, f.fs.RemoveAll(layout.VersionPath(asset, 0)))

	_, err := e.Checkout(context.Background(), ann, asset, true)
	var missing *VersionMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, 0, missing.Version)
	assert.False(t, f.node(asset).Locked)
}

func TestCheckoutNotAsset(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")

	_, err := e.Checkout(context.Background(), ann, filepath.Join(f.root, "nothing"), true)
	assert.ErrorIs(t, err, metadata.ErrNotAsset)
}

func TestCheckinStaleBase(t *testing.T) {
	f := newFixture(t)
	annEngine := f.engine("ann")
	bobEngine := f.engine("bob")
	ctx := context.Background()
	asset := f.register(annEngine, "Foo", 0)

	annWC, err := annEngine.Checkout(ctx, ann, asset, false)
	require.NoError(t, err)
	bobWC, err := bobEngine.Checkout(ctx, bob, asset, false)
	require.NoError(t, err)

	_, err = bobEngine.Checkin(ctx, bob, bobWC)
	require.NoError(t, err)

	_, err = annEngine.Checkin(ctx, ann, annWC)
	var rejected *CheckinRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, StaleBase, rejected.Reason)
	assert.Equal(t, 0, rejected.Base)
	assert.Equal(t, 1, rejected.Latest)

	assert.DirExists(t, annWC)
	assert.Equal(t, 1, f.node(asset).LatestVersion)
	assert.NoDirExists(t, layout.VersionPath(asset, 2))
}

func TestCheckinLockedByOther(t *testing.T) {
	f := newFixture(t)
	annEngine := f.engine("ann")
	bobEngine := f.engine("bob")
	ctx := context.Background()
	asset := f.register(annEngine, "Foo", 0)

	annWC, err := annEngine.Checkout(ctx, ann, asset, false)
	require.NoError(t, err)
	f.clock.advance(time.Minute)
	_, err = bobEngine.Checkout(ctx, bob, asset, true)
	require.NoError(t, err)

	_, err = annEngine.Checkin(ctx, ann, annWC)
	var rejected *CheckinRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, LockedByOther, rejected.Reason)
	assert.Equal(t, "bob", rejected.Holder)

	err = annEngine.SetComment(ctx, ann, annWC, "sneaky")
	assert.ErrorIs(t, err, ErrCheckinRejected)
	_, ok := f.node(asset).Comment(1)
	assert.False(t, ok)
}

func TestCheckinIncrementsByOne(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")
	asset := f.register(e, "Foo", 0)

	for i := 1; i <= 4; i++ {
		f.commit(e, ann, asset, "content")
		node := f.node(asset)
		assert.Equal(t, i, node.LatestVersion)
		versions, err := storedVersions(f.fs, asset)
		require.NoError(t, err)
		assert.Len(t, versions, i+1)
	}
}

func TestRetention(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")
	ctx := context.Background()
	asset := f.register(e, "Foo", 3)

	for i := 1; i <= 6; i++ {
		wc, err := e.Checkout(ctx, ann, asset, true)
		require.NoError(t, err)
		require.NoError(t, e.SetComment(ctx, ann, wc, "step"))
		_, err = e.Checkin(ctx, ann, wc)
		require.NoError(t, err)
		f.clock.advance(time.Minute)

		versions, err := storedVersions(f.fs, asset)
		require.NoError(t, err)
		if i+1 >= 3 {
			assert.Equal(t, []int{i - 2, i - 1, i}, versions, "after checkin %d", i)
		}
	}

	node := f.node(asset)
	assert.Equal(t, 6, node.LatestVersion)
	assert.Equal(t, []int{4, 5, 6}, node.CommentVersions())
}

func TestDiscard(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")
	ctx := context.Background()
	asset := f.register(e, "Foo", 0)

	wc, err := e.Checkout(ctx, ann, asset, true)
	require.NoError(t, err)

	require.NoError(t, e.Discard(ctx, ann, wc))
	assert.NoDirExists(t, wc)
	node := f.node(asset)
	assert.False(t, node.Locked)
	assert.Equal(t, 0, node.LatestVersion)

	// already gone
	require.NoError(t, e.Discard(ctx, ann, wc))
}

func TestDiscardKeepsOthersLock(t *testing.T) {
	f := newFixture(t)
	annEngine := f.engine("ann")
	bobEngine := f.engine("bob")
	ctx := context.Background()
	asset := f.register(annEngine, "Foo", 0)

	annWC, err := annEngine.Checkout(ctx, ann, asset, false)
	require.NoError(t, err)
	f.clock.advance(time.Minute)
	_, err = bobEngine.Checkout(ctx, bob, asset, true)
	require.NoError(t, err)

	require.NoError(t, annEngine.Discard(ctx, ann, annWC))
	assert.NoDirExists(t, annWC)
	assert.True(t, f.node(asset).Locked)
}

func TestDiscardNotWorkingCopy(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")
	dir := filepath.Join(f.root, "random")
	require.NoError(t, f.fs.MkdirAll(dir, 0755))

	err := e.Discard(context.Background(), ann, dir)
	assert.ErrorIs(t, err, metadata.ErrNotWorkingCopy)
	assert.DirExists(t, dir)
}

func TestUnlockQuarantines(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")
	ctx := context.Background()
	asset := f.register(e, "Foo", 0)

	wc, err := e.Checkout(ctx, ann, asset, true)
	require.NoError(t, err)
	f.write(filepath.Join(wc, "scene.ma"), "unsaved work")

	moved, err := e.Unlock(ctx, bob, asset)
	require.NoError(t, err)
	assert.Equal(t, e.Resolver().QuarantinePath(wc), moved)
	assert.Equal(t, "unsaved work", f.read(filepath.Join(moved, "scene.ma")))
	assert.NoDirExists(t, wc)
	assert.False(t, f.node(asset).Locked)

	// a second quarantine of the same name gets a suffix
	wc, err = e.Checkout(ctx, ann, asset, true)
	require.NoError(t, err)
	second, err := e.Unlock(ctx, ann, asset)
	require.NoError(t, err)
	assert.NotEqual(t, moved, second)
	assert.DirExists(t, moved)
	assert.DirExists(t, second)
}

func TestUnlockWithoutWorkingCopy(t *testing.T) {
	f := newFixture(t)
	annEngine := f.engine("ann")
	bobEngine := f.engine("bob")
	ctx := context.Background()
	asset := f.register(annEngine, "Foo", 0)

	annWC, err := annEngine.Checkout(ctx, ann, asset, true)
	require.NoError(t, err)

	moved, err := bobEngine.Unlock(ctx, bob, asset)
	require.NoError(t, err)
	assert.Empty(t, moved)
	assert.DirExists(t, annWC)
	assert.False(t, f.node(asset).Locked)
}

func TestRollbackScenario(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")
	ctx := context.Background()
	asset := f.register(e, "Foo", 0)

	for i := 1; i <= 5; i++ {
		f.commit(e, ann, asset, "content v"+string(rune('0'+i)))
	}
	require.Equal(t, 5, f.node(asset).LatestVersion)

	wc, err := e.Rollback(ctx, ann, asset, 1)
	require.NoError(t, err)
	assert.Equal(t, e.Resolver().CheckoutDestination(asset, 5), wc)
	assert.Equal(t, "content v1", f.read(filepath.Join(wc, "scene.ma")))

	co, err := e.Store().ReadCheckoutInfo(wc)
	require.NoError(t, err)
	assert.Equal(t, 5, co.Version)
	assert.Equal(t, 1, co.RestoredFrom)
	assert.True(t, f.node(asset).Locked)
	assert.Equal(t, 5, f.node(asset).LatestVersion)

	_, err = e.Checkin(ctx, ann, wc)
	require.NoError(t, err)

	node := f.node(asset)
	assert.Equal(t, 6, node.LatestVersion)
	assert.Equal(t, "content v1", f.read(filepath.Join(layout.VersionPath(asset, 6), "scene.ma")))
	for i := 1; i <= 5; i++ {
		assert.Equal(t, "content v"+string(rune('0'+i)), f.read(filepath.Join(layout.VersionPath(asset, i), "scene.ma")))
	}
}

func TestRollbackReplacesOwnCheckout(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")
	ctx := context.Background()
	asset := f.register(e, "Foo", 0)
	f.commit(e, ann, asset, "one")
	f.commit(e, ann, asset, "two")

	wc, err := e.Checkout(ctx, ann, asset, true)
	require.NoError(t, err)
	f.write(filepath.Join(wc, "scene.ma"), "abandoned edit")
	f.clock.advance(time.Minute)

	rolled, err := e.Rollback(ctx, ann, asset, 1)
	require.NoError(t, err)
	assert.Equal(t, wc, rolled)
	assert.Equal(t, "one", f.read(filepath.Join(rolled, "scene.ma")))

	co, err := e.Store().ReadCheckoutInfo(rolled)
	require.NoError(t, err)
	assert.True(t, metadata.HoldsLock(f.node(asset), co))
}

// hookFs lets a test fail file creation or observe renames
type hookFs struct {
	afero.Fs
	failOpen func(name string) bool
	onRename func(oldname, newname string)
}

func (h *hookFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if h.failOpen != nil && h.failOpen(name) {
		return nil, &os.PathError{Op: "open", Path: name, Err: syscall.ENOSPC}
	}
	return h.Fs.OpenFile(name, flag, perm)
}

func (h *hookFs) Rename(oldname, newname string) error {
	if h.onRename != nil {
		h.onRename(oldname, newname)
	}
	return h.Fs.Rename(oldname, newname)
}

func TestRollbackCopyFailureKeepsWorkingCopy(t *testing.T) {
	f := newFixture(t)
	hooked := &hookFs{Fs: f.fs}
	e := f.engine("ann", func(c *Config) { c.Fs = hooked })
	ctx := context.Background()
	asset := f.register(e, "Foo", 0)
	f.commit(e, ann, asset, "one")

	wc, err := e.Checkout(ctx, ann, asset, true)
	require.NoError(t, err)
	f.write(filepath.Join(wc, "scene.ma"), "unsaved edit")

	hooked.failOpen = func(name string) bool { return strings.Contains(name, ".rollback-") }
	_, err = e.Rollback(ctx, ann, asset, 0)
	require.Error(t, err)
	hooked.failOpen = nil

	assert.Equal(t, "unsaved edit", f.read(filepath.Join(wc, "scene.ma")))
	co, err := e.Store().ReadCheckoutInfo(wc)
	require.NoError(t, err)
	assert.True(t, metadata.HoldsLock(f.node(asset), co))

	leftovers, err := afero.Glob(f.fs, filepath.Join(filepath.Dir(wc), ".*rollback-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestRollbackLockedByOther(t *testing.T) {
	f := newFixture(t)
	annEngine := f.engine("ann")
	bobEngine := f.engine("bob")
	ctx := context.Background()
	asset := f.register(annEngine, "Foo", 0)
	f.commit(annEngine, ann, asset, "one")

	_, err := annEngine.Checkout(ctx, ann, asset, true)
	require.NoError(t, err)
	before := f.node(asset)

	_, err = bobEngine.Rollback(ctx, bob, asset, 0)
	var locked *LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, "ann", locked.Holder)
	assert.Equal(t, before, f.node(asset))
	assert.NoDirExists(t, bobEngine.Resolver().CheckoutDestination(asset, 1))
}

func TestRollbackInvalidTarget(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")
	asset := f.register(e, "Foo", 2)
	for i := 0; i < 3; i++ {
		f.commit(e, ann, asset, "x")
	}

	_, err := e.Rollback(context.Background(), ann, asset, 7)
	assert.ErrorIs(t, err, ErrInvalidVersion)

	// v000 was purged by retention
	_, err = e.Rollback(context.Background(), ann, asset, 0)
	assert.ErrorIs(t, err, ErrVersionMissing)
	assert.False(t, f.node(asset).Locked)
}

func TestSetVersion(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")
	ctx := context.Background()
	asset := f.register(e, "Foo", 0)
	for i := 0; i < 3; i++ {
		f.commit(e, ann, asset, "x")
	}

	err := e.SetVersion(ctx, ann, asset, 1)
	var notLocked *NotLockedError
	require.ErrorAs(t, err, &notLocked)
	assert.Equal(t, 3, f.node(asset).LatestVersion)

	wc, err := e.Checkout(ctx, ann, asset, true)
	require.NoError(t, err)

	// another user cannot use ann's lock
	err = f.engine("bob").SetVersion(ctx, bob, asset, 1)
	assert.ErrorIs(t, err, ErrNotLocked)

	require.NoError(t, e.SetVersion(ctx, ann, asset, 1))

	node := f.node(asset)
	assert.Equal(t, 1, node.LatestVersion)
	assert.False(t, node.Locked)
	assert.NoDirExists(t, wc)
	versions, err := storedVersions(f.fs, asset)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, versions)

	// history continues from the reset point
	f.commit(e, ann, asset, "after reset")
	assert.Equal(t, 2, f.node(asset).LatestVersion)
}

func TestPurgeHelpers(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")
	ctx := context.Background()
	asset := f.register(e, "Foo", 0)
	for i := 0; i < 5; i++ {
		f.commit(e, ann, asset, "x")
	}
	node := f.node(asset)
	node.SetComment(2, "two")
	node.SetComment(4, "four")
	require.NoError(t, e.Store().WriteNodeInfo(asset, node))

	purged, err := e.PurgeUpTo(ctx, asset, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, purged)

	purged, err = e.PurgeAfter(ctx, asset, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, purged)

	versions, err := storedVersions(f.fs, asset)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, versions)

	node = f.node(asset)
	assert.Equal(t, 3, node.LatestVersion)
	assert.Equal(t, []int{2}, node.CommentVersions())

	_, err = e.PurgeUpTo(ctx, asset, 9)
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

func TestNextVersionFolder(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")
	dir := filepath.Join(f.root, "renders")

	first, err := e.NextVersionFolder(dir, "shot_")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "shot_v001"), first)

	again, err := e.NextVersionFolder(dir, "shot_")
	require.NoError(t, err)
	assert.Equal(t, first, again, "empty newest folder is reused")

	f.write(filepath.Join(first, "frame.exr"), "data")
	next, err := e.NextVersionFolder(dir, "shot_")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "shot_v002"), next)
	assert.DirExists(t, next)
}

func TestNextVersionFolderReusesEmptyV000(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")
	dir := filepath.Join(f.root, "renders")
	v000 := filepath.Join(dir, "shot_v000")
	require.NoError(t, f.fs.MkdirAll(v000, 0755))

	got, err := e.NextVersionFolder(dir, "shot_")
	require.NoError(t, err)
	assert.Equal(t, v000, got)

	f.write(filepath.Join(v000, "frame.exr"), "data")
	got, err = e.NextVersionFolder(dir, "shot_")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "shot_v001"), got)
}

func TestLatestVersionNeverDecreasesThroughCheckin(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")
	asset := f.register(e, "Foo", 2)

	prev := 0
	for i := 0; i < 6; i++ {
		f.commit(e, ann, asset, "x")
		latest := f.node(asset).LatestVersion
		assert.GreaterOrEqual(t, latest, prev)
		prev = latest
	}
}

func TestCanceledContext(t *testing.T) {
	f := newFixture(t)
	e := f.engine("ann")
	asset := f.register(e, "Foo", 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Checkout(ctx, ann, asset, true)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.node(asset).Locked)
}

func TestEvaluateCheckin(t *testing.T) {
	at := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.Local)
	node := &metadata.NodeInfo{LatestVersion: 2, Locked: true, LastCheckoutUser: "ann", LastCheckoutTime: at}
	co := &metadata.CheckoutInfo{Version: 2, CheckoutTime: at, LockedByMe: true, CheckoutUser: "ann", RestoredFrom: -1}

	assert.NoError(t, EvaluateCheckin(node, co, "ann", "/wc"))
	assert.ErrorIs(t, EvaluateCheckin(node, co, "bob", "/wc"), ErrCheckinRejected)

	node.Locked = false
	co.LockedByMe = false
	assert.NoError(t, EvaluateCheckin(node, co, "bob", "/wc"))

	co.Version = 1
	err := EvaluateCheckin(node, co, "ann", "/wc")
	var rejected *CheckinRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, StaleBase, rejected.Reason)
}
