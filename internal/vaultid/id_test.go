package vaultid

import "testing"

func TestPathsChain(t *testing.T) {
	chain := PathsChain(RemotePath("/a/b/c"))
	want := []RemotePath{"/a", "/a/b", "/a/b/c"}

	if len(chain) != len(want) {
		t.Fatalf("len = %d, want %d", len(chain), len(want))
	}

	for i, p := range chain {
		if p != want[i] {
			t.Errorf("chain[%d] = %q, want %q", i, p, want[i])
		}
	}
}

func TestPathsChainRoot(t *testing.T) {
	if chain := PathsChain(Root); chain != nil {
		t.Errorf("PathsChain(root) = %v, want nil", chain)
	}
}

func TestParentPath(t *testing.T) {
	cases := []struct {
		path   RemotePath
		parent RemotePath
		ok     bool
	}{
		{"/", "", false},
		{"/a", "/", true},
		{"/a/b", "/a", true},
		{"/a/b/c", "/a/b", true},
	}

	for _, c := range cases {
		parent, ok := ParentPath(c.path)
		if ok != c.ok || parent != c.parent {
			t.Errorf("ParentPath(%q) = (%q, %v), want (%q, %v)", c.path, parent, ok, c.parent, c.ok)
		}
	}
}

func TestJoinPathName(t *testing.T) {
	if got := JoinPathName(Root, "a"); got != "/a" {
		t.Errorf("got %q, want /a", got)
	}

	if got := JoinPathName("/a", "b"); got != "/a/b" {
		t.Errorf("got %q, want /a/b", got)
	}
}

func TestUniqueIDChangesOnlyWithFields(t *testing.T) {
	mount := MountId("m1")
	path := RemotePath("/a").Lower()

	size1, size2 := int64(1), int64(2)
	mod := int64(100)
	hash := "h1"

	base := UniqueID(mount, path, &size1, &mod, &hash)
	sameAgain := UniqueID(mount, path, &size1, &mod, &hash)

	if base != sameAgain {
		t.Errorf("unique id not stable for identical inputs")
	}

	if diff := UniqueID(mount, path, &size2, &mod, &hash); diff == base {
		t.Errorf("unique id did not change when size changed")
	}

	mod2 := int64(200)
	if diff := UniqueID(mount, path, &size1, &mod2, &hash); diff == base {
		t.Errorf("unique id did not change when modified changed")
	}

	hash2 := "h2"
	if diff := UniqueID(mount, path, &size1, &mod, &hash2); diff == base {
		t.Errorf("unique id did not change when hash changed")
	}
}

func TestIsUnderOrEqual(t *testing.T) {
	if !IsUnderOrEqual(Root, "/anything/deep") {
		t.Errorf("root should contain everything")
	}

	if !IsUnderOrEqual("/a", "/a") {
		t.Errorf("path should be under-or-equal to itself")
	}

	if !IsUnderOrEqual("/a", "/a/b") {
		t.Errorf("/a/b should be under /a")
	}

	if IsUnderOrEqual("/a", "/ab") {
		t.Errorf("/ab should not be considered under /a")
	}
}
