package kernel

import "github.com/JakeChampion/skift/pkg/fsnode"

// ResolveCwd combines buffer with t's current working directory when
// buffer is relative, then normalizes the result. It never mutates t's
// cwd; callers that want to change it go through SetCwd.
func (t *Task) ResolveCwd(buffer string) *fsnode.Path {
	p := fsnode.NewPath(buffer)

	if p.IsRelative() {
		t.cwdMu.Lock()
		combined := fsnode.Combine(t.cwdPath, p)
		t.cwdMu.Unlock()
		p = combined
	}

	p.Normalize()
	return p
}

// SetCwd resolves buffer against t's current directory and, if it names a
// directory, makes it t's new cwd. On any failure the resolved path and
// filesystem node are released before returning, matching §7's cleanup
// guarantee without goto.
func (t *Task) SetCwd(resolver fsnode.Resolver, buffer string) Status {
	path := t.ResolveCwd(buffer)

	node, ok := resolver.FindAndRef(path)
	if !ok {
		return StatusNoSuchFileOrDirectory
	}
	defer node.Deref()

	if node.Type != fsnode.TypeDirectory {
		return StatusNotADirectory
	}

	t.cwdMu.Lock()
	t.cwdPath = path
	t.cwdMu.Unlock()

	return StatusSuccess
}

// Cwd returns t's current working directory as a string.
func (t *Task) Cwd() string {
	t.cwdMu.Lock()
	defer t.cwdMu.Unlock()
	return t.cwdPath.String()
}
