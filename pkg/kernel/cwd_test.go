package kernel

import "testing"

func TestSetCwdThenGetCwdRoundTrips(t *testing.T) {
	k := newTestKernel()
	resolver := k.FS
	resolver.(interface{ Mkdir(string) }).Mkdir("/a")

	a, err := k.Create(nil, "a", true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if status := a.SetCwd(resolver, "/a"); status != StatusSuccess {
		t.Fatalf("SetCwd: %v", status)
	}
	if got, want := a.Cwd(), "/a"; got != want {
		t.Fatalf("Cwd() = %q, want %q", got, want)
	}
}

func TestSetCwdRejectsFiles(t *testing.T) {
	k := newTestKernel()
	resolver := k.FS.(interface {
		Mkdir(string)
	})
	resolver.Mkdir("/a")

	a, err := k.Create(nil, "a", true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if status := a.SetCwd(k.FS, "/a/not-a-directory"); status != StatusNotADirectory {
		t.Fatalf("SetCwd of a file = %v, want NOT_A_DIRECTORY", status)
	}
	if status := a.SetCwd(k.FS, "/missing/entirely"); status != StatusNoSuchFileOrDirectory {
		t.Fatalf("SetCwd of a nonexistent path = %v, want NO_SUCH_FILE_OR_DIRECTORY", status)
	}
}

func TestChildInheritsParentCwd(t *testing.T) {
	k := newTestKernel()

	parent, err := k.Create(nil, "parent", true)
	if err != nil {
		t.Fatalf("Create parent: %v", err)
	}
	if status := parent.SetCwd(k.FS, "/"); status != StatusSuccess {
		t.Fatalf("SetCwd: %v", status)
	}

	child, err := k.Create(parent, "child", true)
	if err != nil {
		t.Fatalf("Create child: %v", err)
	}
	if got, want := child.Cwd(), parent.Cwd(); got != want {
		t.Fatalf("child cwd = %q, want inherited %q", got, want)
	}
}
