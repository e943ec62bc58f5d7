package engine

import (
	"errors"
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/loadcore/internal/logfields"
	"git.home.luguber.info/inful/loadcore/internal/module"
)

// moduleError pairs a module alias with the error it raised.
type moduleError struct {
	alias string
	err   error
}

// stageErrors collects module failures of one best-effort stage in the
// order they occurred.
type stageErrors struct {
	stage  string
	errors []moduleError
}

func newStageErrors(stage string) *stageErrors {
	return &stageErrors{stage: stage}
}

func (s *stageErrors) add(alias string, err error) {
	s.errors = append(s.errors, moduleError{alias: alias, err: err})
}

func (s *stageErrors) Len() int { return len(s.errors) }

// First returns the earliest error, or nil.
func (s *stageErrors) First() error {
	if len(s.errors) == 0 {
		return nil
	}
	return s.errors[0].err
}

// FirstMatching returns the earliest error for which match is true, or nil.
func (s *stageErrors) FirstMatching(match func(error) bool) error {
	for _, e := range s.errors {
		if match(e.err) {
			return e.err
		}
	}
	return nil
}

// All returns every collected error in order.
func (s *stageErrors) All() []error {
	out := make([]error, len(s.errors))
	for i, e := range s.errors {
		out[i] = e.err
	}
	return out
}

// logSummary writes one line naming every failed alias of the stage.
func (s *stageErrors) logSummary(logger *slog.Logger) {
	if len(s.errors) == 0 {
		return
	}
	aliases := make([]string, len(s.errors))
	for i, e := range s.errors {
		aliases[i] = e.alias
	}
	logger.Warn("Stage finished with module failures",
		logfields.Stage(s.stage),
		logfields.Alias(strings.Join(aliases, ",")),
		slog.Int("failures", len(s.errors)),
		logfields.Error(errors.Join(s.All()...)))
}

// slot is a module the engine owns, with the lifecycle marks the
// best-effort stages filter on.
type slot struct {
	group    string
	mod      module.Module
	prepared bool
	started  bool
}

func (s *slot) alias() string {
	return s.mod.Alias()
}
