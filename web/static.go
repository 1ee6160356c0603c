package web

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
)

// ETagFileServer serves files from root with content-based ETags.
type ETagFileServer struct {
	root http.FileSystem
}

// NewETagFileServer creates a new file server with ETag support.
func NewETagFileServer(root http.FileSystem) *ETagFileServer {
	return &ETagFileServer{root}
}

// ServeHTTP implements the http.Handler interface.
func (fs *ETagFileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upath := r.URL.Path
	if !strings.HasPrefix(upath, "/") {
		upath = "/" + upath
	}
	upath = path.Clean(upath)

	f, err := fs.root.Open(upath)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	// Directory listings are not served.
	if fi.IsDir() {
		http.NotFound(w, r)
		return
	}

	content, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	etag := generateETag(fi.Name(), content)
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=0")
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), bytes.NewReader(content))
}

// generateETag creates a strong ETag from the file name and content.
// Embedded files carry no modification time, so the content is hashed.
func generateETag(name string, content []byte) string {
	h := md5.New()
	fmt.Fprintf(h, "%s:%d:", name, len(content))
	h.Write(content)
	return fmt.Sprintf("%q", fmt.Sprintf("%x", h.Sum(nil)))
}
