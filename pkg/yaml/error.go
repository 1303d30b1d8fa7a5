package yaml

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/printer"
	"github.com/goccy/go-yaml/token"
)

func NewPathBuilder() *yaml.PathBuilder {
	return &yaml.PathBuilder{}
}

// ErrorWrapper attaches shared context (typically the source document) to
// [Error]s produced while handling one document.
type ErrorWrapper struct {
	Opts []ErrorOpt
}

func NewErrorWrapper(opts ...ErrorOpt) *ErrorWrapper {
	return &ErrorWrapper{
		Opts: opts,
	}
}

// Wrap wraps an error with additional context for [Error]s.
// If the error isn't an [Error], it returns the original error unmodified.
func (ew *ErrorWrapper) Wrap(err error, opts ...ErrorOpt) error {
	if err == nil {
		return nil
	}

	var yamlErr *Error
	if errors.As(err, &yamlErr) {
		for _, opt := range ew.Opts {
			opt(yamlErr)
		}

		for _, opt := range opts {
			opt(yamlErr)
		}

		return yamlErr
	}

	return err
}

// Error represents a YAML error. It includes the original error, and the
// [*token.Token] or [*yaml.Path] where the error occurred.
type Error struct {
	Err    error
	Path   *yaml.Path
	Token  *token.Token
	Source []byte
}

func NewError(err error, opts ...ErrorOpt) *Error {
	e := &Error{
		Err: err,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

type ErrorOpt func(e *Error)

func WithPath(path *yaml.Path) ErrorOpt {
	return func(e *Error) {
		e.Path = path
	}
}

func WithToken(tk *token.Token) ErrorOpt {
	return func(e *Error) {
		e.Token = tk
	}
}

func WithSource(source []byte) ErrorOpt {
	return func(e *Error) {
		e.Source = source
	}
}

func (e Error) Error() string {
	if e.Err == nil {
		return ""
	}

	tk := e.Token
	if tk == nil && e.Path != nil && len(e.Source) > 0 {
		tk = tokenFromPath(e.Source, e.Path)
	}

	if tk == nil {
		if e.Path != nil {
			return fmt.Sprintf("error at %s: %v", e.Path.String(), e.Err)
		}

		return e.Err.Error()
	}

	pos := tk.Position
	errMsg := fmt.Sprintf("[%d:%d] %v", pos.Line, pos.Column, e.Err)

	p := printer.Printer{}
	errSource := p.PrintErrorToken(tk, false)
	if errSource == "" {
		return errMsg
	}

	return fmt.Sprintf("%s:\n%s", errMsg, errSource)
}

func (e Error) Unwrap() error {
	return e.Err
}

// tokenFromPath resolves a YAML path to the token of its node in source.
// Returns nil when the path cannot be resolved.
func tokenFromPath(source []byte, path *yaml.Path) *token.Token {
	node, err := path.ReadNode(bytes.NewReader(source))
	if err != nil {
		return nil
	}

	return node.GetToken()
}
