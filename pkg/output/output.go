// Package output renders tokens and auth results for the azauth CLI.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"gopkg.in/yaml.v3"

	"github.com/telekom/azauth/pkg/authflow"
)

type Format string

const (
	FormatStatus   Format = "status"
	FormatToken    Format = "token"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatSID      Format = "sid"
	FormatNone     Format = "none"
	FormatTemplate Format = "template"
)

// templatePrefix introduces an inline template in an output spec.
const templatePrefix = string(FormatTemplate) + "="

// Formats lists the output formats for flag help and completion.
func Formats() []string {
	return []string{
		string(FormatStatus), string(FormatToken), string(FormatJSON), string(FormatYAML),
		string(FormatSID), string(FormatNone), templatePrefix + "<go template>",
	}
}

// TokenView is the serialized form of a token.
type TokenView struct {
	User        string `json:"user" yaml:"user"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Token       string `json:"token" yaml:"token"`
	// ExpirationDate is the expiry in unix seconds.
	ExpirationDate string    `json:"expiration_date" yaml:"expiration_date"`
	AuthType       string    `json:"auth_type,omitempty" yaml:"auth_type,omitempty"`
	SID            string    `json:"sid,omitempty" yaml:"sid,omitempty"`
	ExpiresOn      time.Time `json:"-" yaml:"-"`
}

// NewTokenView converts tok for printing.
func NewTokenView(tok *authflow.Token) TokenView {
	view := TokenView{
		User:        tok.User,
		DisplayName: tok.DisplayName,
		Token:       tok.AccessToken,
		AuthType:    tok.AuthType.String(),
		SID:         tok.SID,
		ExpiresOn:   tok.ExpiresOn,
	}
	if !tok.ExpiresOn.IsZero() {
		view.ExpirationDate = strconv.FormatInt(tok.ExpiresOn.Unix(), 10)
	}
	return view
}

// Printer writes a token in one output format.
type Printer struct {
	Format   Format
	template *template.Template
}

// NewPrinter parses an output spec: a format name, or "template=<text>"
// for a Go template with the sprig functions over TokenView.
func NewPrinter(spec string) (*Printer, error) {
	spec = strings.TrimSpace(spec)
	if strings.HasPrefix(spec, templatePrefix) {
		text := strings.TrimPrefix(spec, templatePrefix)
		if text == "" {
			return nil, errors.New("template output requires a template")
		}
		tmpl, err := template.New("token").Funcs(sprig.TxtFuncMap()).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("invalid output template: %w", err)
		}
		return &Printer{Format: FormatTemplate, template: tmpl}, nil
	}
	switch f := Format(strings.ToLower(spec)); f {
	case "":
		return &Printer{Format: FormatStatus}, nil
	case FormatStatus, FormatToken, FormatJSON, FormatYAML, FormatSID, FormatNone:
		return &Printer{Format: f}, nil
	case FormatTemplate:
		return nil, errors.New("template output requires a template, use template=<go template>")
	default:
		return nil, fmt.Errorf("unknown output format: %s", spec)
	}
}

// PrintToken writes tok to w.
func (p *Printer) PrintToken(w io.Writer, tok *authflow.Token) error {
	if tok == nil {
		return errors.New("no token to print")
	}
	switch p.Format {
	case FormatStatus:
		_, err := fmt.Fprintln(w, tok.String())
		return err
	case FormatToken:
		_, err := fmt.Fprintln(w, tok.AccessToken)
		return err
	case FormatSID:
		_, err := fmt.Fprintln(w, tok.SID)
		return err
	case FormatNone:
		return nil
	case FormatJSON, FormatYAML:
		return WriteObject(w, p.Format, NewTokenView(tok))
	case FormatTemplate:
		if err := p.template.Execute(w, NewTokenView(tok)); err != nil {
			return fmt.Errorf("failed to render output template: %w", err)
		}
		_, err := fmt.Fprintln(w)
		return err
	default:
		return fmt.Errorf("unknown output format: %s", p.Format)
	}
}

func WriteObject(w io.Writer, format Format, obj any) error {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(obj, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case FormatYAML:
		data, err := yaml.Marshal(obj)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(w, string(data))
		return err
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
