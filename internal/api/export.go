package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/ivannakotyk/SDT/internal/codec"
	"github.com/ivannakotyk/SDT/internal/model"
	"golang.org/x/text/unicode/norm"
)

// ErrUnsupportedContainer is returned for export formats with no encoder.
var ErrUnsupportedContainer = errors.New("api: unsupported export container")

const defaultNameTemplate = "{{ .Name | snakecase }}"

// nameData is the input of the export file-name template.
type nameData struct {
	Name      string
	Container string
	Time      time.Time
}

// exporter writes components to files named by a sprig template.
type exporter struct {
	dir  string
	tmpl *template.Template
	enc  model.Encoder
	now  func() time.Time
}

func newExporter(dir, nameTemplate string, enc model.Encoder) (*exporter, error) {
	if dir == "" {
		dir = "."
	}
	if nameTemplate == "" {
		nameTemplate = defaultNameTemplate
	}
	tmpl, err := template.New("export").Funcs(sprig.TxtFuncMap()).Parse(nameTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse export name template: %w", err)
	}
	return &exporter{dir: dir, tmpl: tmpl, enc: enc, now: time.Now}, nil
}

// FileName renders the template for a component name, without extension.
func (e *exporter) FileName(name, container string) (string, error) {
	var b bytes.Buffer
	data := nameData{Name: name, Container: container, Time: e.now()}
	if err := e.tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render export name: %w", err)
	}
	return cleanFileName(b.String()), nil
}

// Export writes c into the export directory and returns the file path.
func (e *exporter) Export(ctx context.Context, c model.Component, container string) (string, error) {
	container = strings.ToLower(strings.TrimPrefix(container, "."))
	if container == "" {
		container = "wav"
	}
	if container != "wav" && !slices.Contains(codec.Containers(), container) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContainer, container)
	}
	name, err := e.FileName(c.Name(), container)
	if err != nil {
		return "", err
	}
	path := filepath.Join(e.dir, name+"."+container)
	if err := c.ExportTo(ctx, path, e.enc); err != nil {
		return "", err
	}
	logger.Infof("Exported %s to %s", c.Name(), path)
	return path, nil
}

// cleanFileName keeps a rendered name inside the export directory.
func cleanFileName(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, s)
	s = strings.Trim(s, ". ")
	if s == "" {
		return "export"
	}
	return s
}
