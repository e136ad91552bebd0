package flow

// EffectType names the interaction an effect asks for.
type EffectType string

const (
	TypeResponse         EffectType = "response"
	TypeResponseMarkdown EffectType = "response_markdown"
	TypeString           EffectType = "string"
	TypeChoice           EffectType = "choice"
	TypeDate             EffectType = "date"
	TypeCancel           EffectType = "cancel"
)

// State is the mutable bag threaded through a flow.
type State map[string]any

// Effect is a declarative interaction yielded by a flow.
// The set of implementations is closed.
type Effect interface {
	Step
	Type() EffectType
}

// ResponseEffect sends plain text.
type ResponseEffect struct {
	Text  string
	Extra any
	State State
}

// MarkdownEffect sends markdown-formatted text.
type MarkdownEffect struct {
	Text  string
	Extra any
	State State
}

// StringRequest asks the user for free text.
type StringRequest struct {
	Prompt         string
	Validator      func(string) bool
	Cancellable    bool
	DeletePrevious bool
	State          State
}

// ChoiceRequest asks the user to pick one of Options.
type ChoiceRequest struct {
	Prompt         string
	Options        Options
	AllowCustom    bool
	DeletePrevious bool
	State          State
}

// DateRequest asks the user to pick a day on an inline calendar.
type DateRequest struct {
	Prompt string
	// Prefix binds calendar tokens to the issuing flow. Empty means the session id.
	Prefix string
	State  State
}

// CancelEffect ends the flow with a cancellation notice.
type CancelEffect struct {
	Text  string
	State State
}

func (ResponseEffect) isStep() {}
func (MarkdownEffect) isStep() {}
func (StringRequest) isStep()  {}
func (ChoiceRequest) isStep()  {}
func (DateRequest) isStep()    {}
func (CancelEffect) isStep()   {}

func (ResponseEffect) Type() EffectType { return TypeResponse }
func (MarkdownEffect) Type() EffectType { return TypeResponseMarkdown }
func (StringRequest) Type() EffectType  { return TypeString }
func (ChoiceRequest) Type() EffectType  { return TypeChoice }
func (DateRequest) Type() EffectType    { return TypeDate }
func (CancelEffect) Type() EffectType   { return TypeCancel }

// Option is one selectable entry of a choice.
type Option struct {
	Key   string
	Label string
}

// Options keeps choice entries in display order.
type Options []Option

// Opt builds an Option.
func Opt(key, label string) Option {
	return Option{Key: key, Label: label}
}

// Has reports whether key is one of the options.
func (o Options) Has(key string) bool {
	_, ok := o.Label(key)
	return ok
}

// Label returns the display label for key.
func (o Options) Label(key string) (string, bool) {
	for _, opt := range o {
		if opt.Key == key {
			return opt.Label, true
		}
	}
	return "", false
}

// Keys returns option keys in order.
func (o Options) Keys() []string {
	keys := make([]string, len(o))
	for i, opt := range o {
		keys[i] = opt.Key
	}
	return keys
}

// RequestOption tunes a request effect.
type RequestOption func(*requestConfig)

type requestConfig struct {
	validator      func(string) bool
	cancellable    bool
	deletePrevious bool
	allowCustom    bool
	prefix         string
}

// WithValidator rejects free text for which fn returns false.
func WithValidator(fn func(string) bool) RequestOption {
	return func(c *requestConfig) { c.validator = fn }
}

// Cancellable attaches a cancel button to a string prompt.
func Cancellable() RequestOption {
	return func(c *requestConfig) { c.cancellable = true }
}

// DeletePrevious deletes the prompt message once answered instead of clearing its buttons.
func DeletePrevious() RequestOption {
	return func(c *requestConfig) { c.deletePrevious = true }
}

// AllowCustom accepts typed text in addition to the choice buttons.
func AllowCustom() RequestOption {
	return func(c *requestConfig) { c.allowCustom = true }
}

// WithPrefix sets the calendar token prefix. It must not contain '_'.
func WithPrefix(prefix string) RequestOption {
	return func(c *requestConfig) { c.prefix = prefix }
}

func buildConfig(opts []RequestOption) requestConfig {
	var cfg requestConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// RequestString asks for free text. An empty prompt uses the localized default.
func RequestString(state State, prompt string, opts ...RequestOption) StringRequest {
	cfg := buildConfig(opts)
	return StringRequest{
		Prompt:         prompt,
		Validator:      cfg.validator,
		Cancellable:    cfg.cancellable,
		DeletePrevious: cfg.deletePrevious,
		State:          state,
	}
}

// RequestChoice asks the user to pick one of options.
func RequestChoice(state State, options Options, prompt string, opts ...RequestOption) ChoiceRequest {
	cfg := buildConfig(opts)
	copied := make(Options, len(options))
	copy(copied, options)
	return ChoiceRequest{
		Prompt:         prompt,
		Options:        copied,
		AllowCustom:    cfg.allowCustom,
		DeletePrevious: cfg.deletePrevious,
		State:          state,
	}
}

// RequestDate asks for a calendar day.
func RequestDate(state State, prompt string, opts ...RequestOption) DateRequest {
	cfg := buildConfig(opts)
	return DateRequest{Prompt: prompt, Prefix: cfg.prefix, State: state}
}

// Response sends text; extra is passed to the transport as is.
func Response(state State, text string, extra ...any) ResponseEffect {
	return ResponseEffect{Text: text, Extra: firstExtra(extra), State: state}
}

// ResponseMarkdown sends markdown text.
func ResponseMarkdown(state State, text string, extra ...any) MarkdownEffect {
	return MarkdownEffect{Text: text, Extra: firstExtra(extra), State: state}
}

// Cancelled ends the flow. An empty text uses the localized default notice.
func Cancelled(state State, text string) CancelEffect {
	return CancelEffect{Text: text, State: state}
}

func firstExtra(extra []any) any {
	if len(extra) == 0 {
		return nil
	}
	return extra[0]
}
