package chasm_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/all-in-one-of/chasm-version-system/internal/chasm"
	"github.com/all-in-one-of/chasm-version-system/internal/testutil"
)

func TestService_Checkin(t *testing.T) {
	ctx := context.Background()

	t.Run("commits the next version and unlocks", func(t *testing.T) {
		p := testutil.NewTestProject(t)
		shot := newShot(t, p, chasm.KindGeneric)
		testutil.WriteFile(t, payloadFile(shot, 0, "scene.ma"), "v0 scene")
		wc, err := p.Service.Checkout(ctx, shot, true)
		if err != nil {
			t.Fatalf("Checkout() error = %v", err)
		}
		testutil.WriteFile(t, filepath.Join(wc, "scene.ma"), "v1 scene")
		testutil.WriteFile(t, filepath.Join(wc, "textures", "wood.tx"), "wood")

		v, err := p.Service.Checkin(ctx, wc)
		if err != nil {
			t.Fatalf("Checkin() error = %v", err)
		}
		if v != 1 {
			t.Errorf("Checkin() = %d, want 1", v)
		}

		if got := testutil.ReadFile(t, payloadFile(shot, 1, "scene.ma")); got != "v1 scene" {
			t.Errorf("v1/scene.ma = %q", got)
		}
		if got := testutil.ReadFile(t, payloadFile(shot, 1, filepath.Join("textures", "wood.tx"))); got != "wood" {
			t.Errorf("v1/textures/wood.tx = %q", got)
		}
		if got := testutil.ReadFile(t, payloadFile(shot, 0, "scene.ma")); got != "v0 scene" {
			t.Errorf("v0/scene.ma = %q, earlier versions must not change", got)
		}
		if exists(payloadFile(shot, 1, chasm.CheckoutInfoFile)) {
			t.Error("checkout record was committed into the version")
		}

		rec := folderRecord(t, p, shot)
		if rec.LatestVersion != 1 || rec.Locked || rec.LockToken != "" || rec.LockOwner != "" {
			t.Errorf("folder record = %+v, want version 1 unlocked", rec)
		}
		if rec.LastCheckinUser != "alice" || !rec.LastCheckinTime.Equal(p.Clock.Now()) {
			t.Errorf("last checkin = %s at %v", rec.LastCheckinUser, rec.LastCheckinTime)
		}
		if exists(wc) {
			t.Error("working copy still exists after checkin")
		}
	})

	t.Run("latest version names an existing payload after every checkin", func(t *testing.T) {
		p := testutil.NewTestProject(t)
		shot := newShot(t, p, chasm.KindGeneric)

		for want := 1; want <= 3; want++ {
			wc, err := p.Service.Checkout(ctx, shot, want%2 == 1)
			if err != nil {
				t.Fatalf("Checkout() error = %v", err)
			}
			v, err := p.Service.Checkin(ctx, wc)
			if err != nil {
				t.Fatalf("Checkin() error = %v", err)
			}
			if v != want {
				t.Errorf("Checkin() = %d, want %d", v, want)
			}
			rec := folderRecord(t, p, shot)
			if rec.LatestVersion != want {
				t.Errorf("LatestVersion = %d, want %d", rec.LatestVersion, want)
			}
			if !exists(chasm.VersionPath(shot, rec.LatestVersion)) {
				t.Errorf("src/v%d missing", rec.LatestVersion)
			}
		}
	})

	t.Run("leaves ignored files out", func(t *testing.T) {
		p := testutil.NewTestProject(t, testutil.WithIgnore("*.tmp"))
		shot := newShot(t, p, chasm.KindGeneric)
		wc, err := p.Service.Checkout(ctx, shot, true)
		if err != nil {
			t.Fatalf("Checkout() error = %v", err)
		}
		testutil.WriteFile(t, filepath.Join(wc, "keep.ma"), "keep")
		testutil.WriteFile(t, filepath.Join(wc, "scratch.tmp"), "scratch")
		testutil.WriteFile(t, filepath.Join(wc, "renders", "frame.0001.exr"), "frame")
		testutil.WriteFile(t, filepath.Join(wc, chasm.IgnoreFile), "# local renders\nrenders/\n")

		if _, err := p.Service.Checkin(ctx, wc); err != nil {
			t.Fatalf("Checkin() error = %v", err)
		}

		if !exists(payloadFile(shot, 1, "keep.ma")) {
			t.Error("keep.ma was not committed")
		}
		for _, name := range []string{"scratch.tmp", "renders", chasm.IgnoreFile} {
			if exists(payloadFile(shot, 1, name)) {
				t.Errorf("%s was committed", name)
			}
		}
	})

	t.Run("refuses a stale unlocked checkout", func(t *testing.T) {
		p := testutil.NewTestProject(t)
		shot := newShot(t, p, chasm.KindGeneric)
		bob := p.As(t, "bob")

		aliceWC, err := p.Service.Checkout(ctx, shot, false)
		if err != nil {
			t.Fatalf("alice Checkout() error = %v", err)
		}
		bobWC, err := bob.Service.Checkout(ctx, shot, false)
		if err != nil {
			t.Fatalf("bob Checkout() error = %v", err)
		}
		if _, err := bob.Service.Checkin(ctx, bobWC); err != nil {
			t.Fatalf("bob Checkin() error = %v", err)
		}

		ok, err := p.Service.CanCheckin(aliceWC)
		if err != nil {
			t.Fatalf("CanCheckin() error = %v", err)
		}
		if ok {
			t.Error("CanCheckin() = true for a stale working copy")
		}
		_, err = p.Service.Checkin(ctx, aliceWC)
		if !errors.Is(err, chasm.ErrCheckinRejected) {
			t.Fatalf("Checkin() error = %v, want ErrCheckinRejected", err)
		}
		if !strings.Contains(err.Error(), "version 0") {
			t.Errorf("Checkin() error = %q, want the stale version named", err)
		}
		if !exists(aliceWC) {
			t.Error("rejected working copy was removed")
		}
		if rec := folderRecord(t, p, shot); rec.LatestVersion != 1 {
			t.Errorf("LatestVersion = %d, want 1", rec.LatestVersion)
		}
	})

	t.Run("refuses an unlocked checkout while someone holds the lock", func(t *testing.T) {
		p := testutil.NewTestProject(t)
		shot := newShot(t, p, chasm.KindGeneric)
		bob := p.As(t, "bob")

		aliceWC, err := p.Service.Checkout(ctx, shot, false)
		if err != nil {
			t.Fatalf("alice Checkout() error = %v", err)
		}
		if _, err := bob.Service.Checkout(ctx, shot, true); err != nil {
			t.Fatalf("bob Checkout() error = %v", err)
		}

		if ok, _ := p.Service.CanCheckin(aliceWC); ok {
			t.Error("CanCheckin() = true while bob holds the lock")
		}
		if _, err := p.Service.Checkin(ctx, aliceWC); !errors.Is(err, chasm.ErrCheckinRejected) {
			t.Errorf("Checkin() error = %v, want ErrCheckinRejected", err)
		}
	})

	t.Run("refuses a lock token that no longer matches", func(t *testing.T) {
		p := testutil.NewTestProject(t)
		shot := newShot(t, p, chasm.KindGeneric)
		wc, err := p.Service.Checkout(ctx, shot, true)
		if err != nil {
			t.Fatalf("Checkout() error = %v", err)
		}

		// Someone cleared the lock by hand and a new checkout took it.
		rec := folderRecord(t, p, shot)
		rec.LockToken = "token-99"
		rec.LockOwner = "bob"
		if err := p.Metadata.WriteFolderRecord(shot, rec); err != nil {
			t.Fatal(err)
		}

		if ok, _ := p.Service.CanCheckin(wc); ok {
			t.Error("CanCheckin() = true with a foreign lock token")
		}
		if _, err := p.Service.Checkin(ctx, wc); !errors.Is(err, chasm.ErrCheckinRejected) {
			t.Errorf("Checkin() error = %v, want ErrCheckinRejected", err)
		}
	})

	t.Run("accepts a lock recorded without a token", func(t *testing.T) {
		p := testutil.NewTestProject(t)
		shot := newShot(t, p, chasm.KindGeneric)
		wc, err := p.Service.Checkout(ctx, shot, true)
		if err != nil {
			t.Fatalf("Checkout() error = %v", err)
		}
		co := checkoutRecord(t, p, wc)
		co.LockToken = ""
		if err := p.Metadata.WriteCheckoutRecord(wc, co); err != nil {
			t.Fatal(err)
		}

		if v, err := p.Service.Checkin(ctx, wc); err != nil || v != 1 {
			t.Errorf("Checkin() = %d, %v; want 1", v, err)
		}
	})

	t.Run("failed commit keeps the working copy and the next checkin recovers", func(t *testing.T) {
		var store *testutil.FaultyMetadataStore
		p := testutil.NewTestProject(t, testutil.WithMetadata(func(inner chasm.MetadataStore) chasm.MetadataStore {
			store = testutil.NewFaultyMetadataStore(inner)
			return store
		}))
		shot := newShot(t, p, chasm.KindGeneric)
		wc, err := p.Service.Checkout(ctx, shot, true)
		if err != nil {
			t.Fatalf("Checkout() error = %v", err)
		}
		testutil.WriteFile(t, filepath.Join(wc, "scene.ma"), "edited")

		store.FolderWriteErr = errors.New("disk full")
		if _, err := p.Service.Checkin(ctx, wc); err == nil {
			t.Fatal("Checkin() expected error")
		}
		if !exists(filepath.Join(wc, "scene.ma")) {
			t.Fatal("working copy removed after failed checkin")
		}
		rec := folderRecord(t, p, shot)
		if rec.LatestVersion != 0 || !rec.Locked {
			t.Errorf("folder record = %+v, want version 0 still locked", rec)
		}

		store.FolderWriteErr = nil
		v, err := p.Service.Checkin(ctx, wc)
		if err != nil {
			t.Fatalf("retried Checkin() error = %v", err)
		}
		if v != 1 {
			t.Errorf("retried Checkin() = %d, want 1", v)
		}
		if got := testutil.ReadFile(t, payloadFile(shot, 1, "scene.ma")); got != "edited" {
			t.Errorf("v1/scene.ma = %q", got)
		}
		entries, err := os.ReadDir(filepath.Join(shot, chasm.SrcDir))
		if err != nil {
			t.Fatal(err)
		}
		var orphans int
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".orphan-v1-") {
				orphans++
			}
		}
		if orphans != 1 {
			t.Errorf("found %d orphaned versions, want 1", orphans)
		}
	})

	t.Run("not a working copy", func(t *testing.T) {
		p := testutil.NewTestProject(t)
		dir := filepath.Join(p.Project.LocalDir, "scratch")
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}

		if _, err := p.Service.Checkin(ctx, dir); !errors.Is(err, chasm.ErrNotWorkingCopy) {
			t.Errorf("Checkin() error = %v, want ErrNotWorkingCopy", err)
		}
		if _, err := p.Service.CanCheckin(dir); !errors.Is(err, chasm.ErrNotWorkingCopy) {
			t.Errorf("CanCheckin() error = %v, want ErrNotWorkingCopy", err)
		}
	})
}

func TestShotWorkflow(t *testing.T) {
	ctx := context.Background()
	alice := testutil.NewTestProject(t)
	bob := alice.As(t, "bob")

	seq, err := alice.Service.AddProjectFolder(alice.Project.Root, "Seq")
	if err != nil {
		t.Fatalf("AddProjectFolder() error = %v", err)
	}
	shot, err := alice.Service.AddVersionedFolder(seq, "Shot010", chasm.KindGeneric)
	if err != nil {
		t.Fatalf("AddVersionedFolder() error = %v", err)
	}

	wc, err := alice.Service.Checkout(ctx, shot, true)
	if err != nil {
		t.Fatalf("alice Checkout() error = %v", err)
	}
	if filepath.Base(wc) != "Seq_Shot010_0" {
		t.Errorf("working copy = %q, want Seq_Shot010_0", filepath.Base(wc))
	}

	_, err = bob.Service.Checkout(ctx, shot, true)
	var locked *chasm.AlreadyLockedError
	if !errors.As(err, &locked) {
		t.Fatalf("bob Checkout() error = %v, want AlreadyLockedError", err)
	}
	if locked.User != "alice" {
		t.Errorf("locked by %q, want alice", locked.User)
	}

	testutil.WriteFile(t, filepath.Join(wc, "layout.ma"), "blocking")
	v, err := alice.Service.Checkin(ctx, wc)
	if err != nil {
		t.Fatalf("alice Checkin() error = %v", err)
	}
	if v != 1 {
		t.Errorf("Checkin() = %d, want 1", v)
	}

	bobWC, err := bob.Service.Checkout(ctx, shot, true)
	if err != nil {
		t.Fatalf("bob Checkout() error = %v", err)
	}
	if filepath.Base(bobWC) != "Seq_Shot010_1" {
		t.Errorf("bob working copy = %q, want Seq_Shot010_1", filepath.Base(bobWC))
	}
	if got := testutil.ReadFile(t, filepath.Join(bobWC, "layout.ma")); got != "blocking" {
		t.Errorf("layout.ma = %q", got)
	}
	if rec := folderRecord(t, bob, shot); rec.LockOwner != "bob" || rec.LastCheckinUser != "alice" {
		t.Errorf("folder record = %+v", rec)
	}
}
