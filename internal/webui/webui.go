package webui

import (
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"os"
)

//go:embed static
var staticFS embed.FS

// Handler serves the bundled assets. When dir is set, files found there take
// precedence, which is how a vendored fixi.js is supplied.
func Handler(dir string) (http.Handler, error) {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return http.FileServer(http.FS(sub)), nil
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	return http.FileServer(http.FS(overlay{os.DirFS(dir), sub})), nil
}

// overlay opens name from the first layer that has it.
type overlay []fs.FS

func (o overlay) Open(name string) (fs.File, error) {
	for _, layer := range o {
		f, err := layer.Open(name)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}
