//go:build windows

package metadata

func fileOwner(path string) string {
	return ""
}
