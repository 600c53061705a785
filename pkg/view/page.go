package view

import (
	"errors"

	"github.com/imbecility/vkr-gateway/pkg/models"
)

// Page is the state of the single page UI: input, submit control, loading
// indicator, error banner and results container.
type Page struct {
	Input            string
	Error            Text
	Detail           Text
	Loading          bool
	SubmitDisabled   bool
	ContainerVisible bool
	Result           *Result
}

// ShowError is the one place errors reach the banner.
func (p *Page) ShowError(msg string) {
	p.Error = Sanitize(msg)
	p.Loading = false
}

// Begin marks a submission in flight.
func (p *Page) Begin(input string) {
	p.Input = input
	p.Loading = true
	p.SubmitDisabled = true
	p.Error = Text{}
	p.Detail = Text{}
}

// Finish re-enables the submit control.
func (p *Page) Finish() {
	p.Loading = false
	p.SubmitDisabled = false
}

// Apply renders a successful payload into the page.
func (p *Page) Apply(env *models.Envelope, opts Options) {
	p.ContainerVisible = true
	p.Loading = false

	res, err := Render(env, p.Input, opts)
	switch {
	case errors.Is(err, ErrMissingEnvelope):
		p.ShowError(MsgMissingEnvelope)
	case errors.Is(err, ErrServerOverloaded):
		p.Result = res
		p.ShowError(MsgServerOverloaded)
		p.ContainerVisible = false
	case err == nil:
		p.Result = res
	}
}
