// Package summary provides the summary reporter: at post-process it writes
// a Markdown overview of the run and its HTML rendering to the artifacts
// directory.
package summary

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
	"git.home.luguber.info/inful/loadcore/internal/logfields"
	"git.home.luguber.info/inful/loadcore/internal/module"
)

// Implementation is the catalog name of the reporter.
const Implementation = "summary"

const (
	keyTitle     = "title"
	defaultTitle = "Run summary"
)

// Reporter writes summary.md and summary.html.
type Reporter struct {
	module.Base

	now     func() time.Time
	started time.Time
}

var _ module.Module = (*Reporter)(nil)

// New creates the reporter.
func New() module.Module {
	return &Reporter{now: time.Now}
}

func (r *Reporter) Startup(context.Context) error {
	r.started = r.now()
	return nil
}

// PostProcess renders the summary.
func (r *Reporter) PostProcess(context.Context) error {
	title, err := r.OptionString(keyTitle, defaultTitle)
	if err != nil {
		return err
	}
	source := r.Markdown(title)

	var html bytes.Buffer
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert(source, &html); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to render summary").Build()
	}

	for _, out := range []struct {
		suffix string
		data   []byte
	}{
		{".md", source},
		{".html", html.Bytes()},
	} {
		path, err := r.Host().Artifacts().CreateArtifact("summary", out.suffix)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, out.data, 0o600); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write summary").
				WithContext("path", path).
				Build()
		}
		r.Log().Info("Wrote summary", logfields.Artifact(path))
	}
	return nil
}

// Markdown builds the summary document.
func (r *Reporter) Markdown(title string) []byte {
	host := r.Host()
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", title)
	b.WriteString("| Field | Value |\n|---|---|\n")
	row(&b, "Run ID", host.RunID())
	if !r.started.IsZero() {
		finished := r.now()
		row(&b, "Started", r.started.UTC().Format(time.RFC3339))
		row(&b, "Duration", finished.Sub(r.started).Round(time.Millisecond).String())
	}
	reason := "none"
	if err := host.StoppingReason(); err != nil {
		reason = err.Error()
	}
	row(&b, "Stopping reason", reason)
	row(&b, "Loop utilization", fmt.Sprintf("%.2f", host.LoopUtilization()))

	b.WriteString("\n## Modules\n\n| Alias | Implementation |\n|---|---|\n")
	for _, m := range host.Modules() {
		impl := "-"
		if v, ok := host.Config().Lookup("modules", m.Alias(), "implementation"); ok {
			impl = fmt.Sprint(v)
		}
		row(&b, m.Alias(), impl)
	}

	b.WriteString("\n## Artifacts\n\n")
	for _, name := range r.artifactNames() {
		fmt.Fprintf(&b, "- `%s`\n", name)
	}
	return []byte(b.String())
}

func (r *Reporter) artifactNames() []string {
	dir := r.Host().Artifacts().Dir()
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		r.Log().Warn("Cannot list artifacts", logfields.Path(dir), logfields.Error(err))
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names
}

func row(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "| %s | %s |\n", cell(key), cell(value))
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
