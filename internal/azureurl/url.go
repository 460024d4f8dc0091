// Package azureurl builds the handful of Azure Blob Storage REST endpoint
// URLs named in §6, so every component constructs them the same way instead
// of hand-formatting strings at each call site.
package azureurl

import (
	"fmt"
	"net/url"
	"strings"
)

// Account returns the storage-account-scoped base URL.
func Account(storageAccount string) string {
	return fmt.Sprintf("https://%s.blob.core.windows.net", storageAccount)
}

// Container returns the container-scoped base URL.
func Container(storageAccount, container string) string {
	return Account(storageAccount) + "/" + pathEscape(container)
}

// Blob returns the blob's base URL, with no query string.
func Blob(storageAccount, container, blobName string) string {
	return Container(storageAccount, container) + "/" + escapeBlobName(blobName)
}

// WithQuery appends the given query parameters to base, which may already
// end in a path but must not already carry a query string.
func WithQuery(base string, params url.Values) string {
	if len(params) == 0 {
		return base
	}
	return base + "?" + params.Encode()
}

// pathEscape escapes a single path segment (container name has no slashes).
func pathEscape(s string) string {
	return url.PathEscape(s)
}

// escapeBlobName escapes a blob name segment-by-segment so that forward
// slashes in the (virtual-directory) name remain literal slashes in the URL
// rather than being percent-encoded.
func escapeBlobName(name string) string {
	segments := strings.Split(name, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
