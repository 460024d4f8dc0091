// Package pathutil resolves two distinct kinds of path: local filesystem
// paths for the copy pipeline's file arguments, and the virtual
// forward-slash-delimited blob paths a container handle's prefix addresses
// (§3 Container Handle, addprefix/normpath).
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveAbsolutePath converts a relative path to an absolute path.
// v4.4.2: Resolves symlinks/junctions in the EXISTING portion of the path,
// then appends any non-existent components. This handles the case where
// user folders (like Downloads) are junction points but the target subdirectory
// doesn't exist yet.
//
// Within this module the copy pipeline (internal/copy) resolves the local
// path of every upload and download through this function.
func ResolveAbsolutePath(path string) (string, error) {
	if path == "" {
		return os.Getwd()
	}

	// Expand ~ to home directory
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = home + path[1:]
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	// Try to resolve the full path first (fast path if it exists)
	resolved, err := filepath.EvalSymlinks(absPath)
	if err == nil {
		return resolved, nil
	}

	// Path doesn't fully exist - find the deepest existing ancestor
	// and resolve junctions there, then append the rest
	current := absPath
	var remainder []string

	for {
		if _, err := os.Stat(current); err == nil {
			// Found an existing directory - resolve it
			resolved, err := filepath.EvalSymlinks(current)
			if err != nil {
				resolved = current // fallback if resolution fails
			}
			// Append the non-existent remainder
			if len(remainder) > 0 {
				// Reverse remainder (we collected bottom-up)
				for i := len(remainder) - 1; i >= 0; i-- {
					resolved = filepath.Join(resolved, remainder[i])
				}
			}
			return resolved, nil
		}

		// Move up one directory
		parent := filepath.Dir(current)
		if parent == current {
			// Reached root without finding existing dir
			return absPath, nil
		}
		remainder = append(remainder, filepath.Base(current))
		current = parent
	}
}

// NormPath collapses "." and ".." segments and rewrites backslashes to
// forward slashes in a virtual blob path, the way the POSIX-like facade
// normalizes a container's prefix joined with an object name (§3). Unlike
// filepath.Clean, this never consults the filesystem and always uses "/" as
// the separator regardless of host OS.
func NormPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")

	leadingSlash := strings.HasPrefix(p, "/")
	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 && out[len(out)-1] != ".." {
				out = out[:len(out)-1]
			} else if !leadingSlash {
				out = append(out, seg)
			}
		default:
			out = append(out, seg)
		}
	}

	joined := strings.Join(out, "/")
	if leadingSlash {
		joined = "/" + joined
	}
	if joined == "" {
		joined = "."
	}
	return joined
}

// AddPrefix implements §3's addprefix: addprefix(c, o) = o if c.prefix ==
// "", else normpath(prefix + "/" + o) with backslashes rewritten to forward
// slashes.
func AddPrefix(prefix, objectName string) string {
	if prefix == "" {
		return objectName
	}
	return NormPath(prefix + "/" + objectName)
}

// SplitContainerPrefix implements the Container Handle construction rule:
// "if container_name itself contains '/', the segment before the first '/'
// becomes the container and the remainder is appended to prefix." Returns
// the bare container name and the (possibly empty) remainder to prepend to
// an explicit prefix.
func SplitContainerPrefix(containerName string) (container, remainder string) {
	i := strings.IndexByte(containerName, '/')
	if i < 0 {
		return containerName, ""
	}
	return containerName[:i], containerName[i+1:]
}
