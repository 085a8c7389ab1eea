package fetch

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"go.ngs.io/antgrid/internal/domain"
)

// ListMembers returns the regular files of a zip archive in the order a
// top-down walk of the extracted tree visits them: within each directory its
// files by name, then its subdirectories by name. Directory entries are not
// members, so documented indices count files only.
func ListMembers(archive string) ([]string, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = r.Close() }()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		names = append(names, path.Clean(strings.ReplaceAll(f.Name, "\\", "/")))
	}
	return walkOrder(names), nil
}

type dirNode struct {
	files []string
	dirs  map[string]*dirNode
}

func walkOrder(names []string) []string {
	root := &dirNode{dirs: map[string]*dirNode{}}
	for _, name := range names {
		n := root
		parts := strings.Split(strings.TrimPrefix(name, "/"), "/")
		for _, dir := range parts[:len(parts)-1] {
			child, ok := n.dirs[dir]
			if !ok {
				child = &dirNode{dirs: map[string]*dirNode{}}
				n.dirs[dir] = child
			}
			n = child
		}
		n.files = append(n.files, name)
	}

	out := make([]string, 0, len(names))
	var walk func(n *dirNode)
	walk = func(n *dirNode) {
		sort.Slice(n.files, func(i, j int) bool { return path.Base(n.files[i]) < path.Base(n.files[j]) })
		out = append(out, n.files...)
		dirs := make([]string, 0, len(n.dirs))
		for d := range n.dirs {
			dirs = append(dirs, d)
		}
		sort.Strings(dirs)
		for _, d := range dirs {
			walk(n.dirs[d])
		}
	}
	walk(root)
	return out
}

// Extract unpacks archive into dest and returns its members. An existing
// dest is reused. Extraction goes through a temporary directory renamed into
// place, so a concurrent reader never sees a partial tree.
func Extract(archive, dest string) ([]string, error) {
	members, err := ListMembers(archive)
	if err != nil {
		return nil, err
	}
	if st, err := os.Stat(dest); err == nil && st.IsDir() {
		return members, nil
	}

	tmp := dest + "." + uuid.NewString() + ".part"
	if err := unzip(archive, tmp); err != nil {
		_ = os.RemoveAll(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.RemoveAll(tmp)
		// Another process finished first.
		if st, statErr := os.Stat(dest); statErr == nil && st.IsDir() {
			return members, nil
		}
		return nil, fmt.Errorf("failed to move extracted archive into place: %w", err)
	}
	return members, nil
}

func unzip(archive, dest string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = r.Close() }()

	if err := os.MkdirAll(dest, 0o750); err != nil {
		return err
	}
	for _, f := range r.File {
		target, err := memberPath(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o750); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	//nolint:gosec // G304: target is confined to dest by memberPath.
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	//nolint:gosec // G110: archives come from fixed catalog URLs.
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// memberPath joins name to dest, rejecting entries that escape it.
func memberPath(dest, name string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	if clean == "/" {
		return "", fmt.Errorf("invalid archive member %q", name)
	}
	target := filepath.Join(dest, filepath.FromSlash(clean))
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive member %q escapes extraction directory", name)
	}
	return target, nil
}

// SelectMember picks the member sel describes. Name matches the base name
// case-insensitively; Suffix matches the end of the member path. A name or
// suffix that matches exactly one member wins wherever it sits; Index then
// only disambiguates several matches. A selector with neither selects by
// Index alone.
func SelectMember(archive string, members []string, sel domain.Selector) (string, error) {
	fail := func(format string, args ...any) (string, error) {
		return "", &domain.SelectionError{Archive: archive, Selector: sel, Reason: fmt.Sprintf(format, args...)}
	}

	if sel.Name == "" && sel.Suffix == "" {
		if sel.Index < 0 || sel.Index >= len(members) {
			return fail("index %d out of range (archive has %d members)", sel.Index, len(members))
		}
		return members[sel.Index], nil
	}

	var matches []int
	for i, m := range members {
		switch {
		case sel.Name != "" && strings.EqualFold(path.Base(m), sel.Name):
			matches = append(matches, i)
		case sel.Name == "" && strings.HasSuffix(strings.ToLower(m), strings.ToLower(sel.Suffix)):
			matches = append(matches, i)
		}
	}

	switch len(matches) {
	case 0:
		return fail("no member matches; archive layout changed")
	case 1:
		return members[matches[0]], nil
	}
	for _, i := range matches {
		if i == sel.Index {
			return members[i], nil
		}
	}
	return fail("%d members match: %v", len(matches), pick(members, matches))
}

func pick(members []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, k := range idx {
		out[i] = members[k]
	}
	return out
}
