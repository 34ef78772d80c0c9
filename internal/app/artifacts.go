package app

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	fileutil "dlclient/internal/file"
	"dlclient/internal/render"
)

// savingRenderer downloads an artifact before passing the navigation on.
type savingRenderer struct {
	render.Renderer
	app *App
}

func (r *savingRenderer) Navigate(path string) {
	dest, err := r.app.SaveArtifact(r.app.ctx, path)
	if err != nil {
		log.Warn().Str("path", path).Err(err).Msg("saving artifact failed")
		r.Renderer.Notify("Error saving file: " + err.Error())
	} else {
		r.Renderer.Notify("Saved " + dest)
	}
	r.Renderer.Navigate(path)
}

// SaveArtifact fetches a site-relative artifact path into the download
// directory and returns the local file path.
func (a *App) SaveArtifact(ctx context.Context, path string) (string, error) {
	name, err := artifactName(path)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(a.cfg.DownloadDir, name)

	pr, pw := io.Pipe()
	go func() {
		_, err := a.client.Fetch(ctx, path, pw)
		pw.CloseWithError(err)
	}()
	if err := fileutil.CopyAtomic(dest, pr); err != nil {
		_ = pr.CloseWithError(err)
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	log.Info().Str("path", dest).Msg("artifact saved")
	return dest, nil
}

func artifactName(path string) (string, error) {
	escaped := path[strings.LastIndex(path, "/")+1:]
	name, err := url.PathUnescape(escaped)
	if err != nil {
		return "", fmt.Errorf("artifact name %q: %w", path, err)
	}
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." || name == "" {
		return "", fmt.Errorf("artifact name %q is empty", path)
	}
	return name, nil
}
